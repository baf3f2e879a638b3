package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/sakif/user-auth/internal/config"
	sqliteRepo "github.com/sakif/user-auth/internal/repository/sqlite"
	"github.com/sakif/user-auth/internal/server"
)

// browser is an HTTP client with a cookie jar that does not follow
// redirects, so every 303 can be asserted on.
type browser struct {
	client *http.Client
	base   string
}

func newBrowser(base string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) get(path string) *http.Response {
	resp, err := b.client.Get(b.base + path)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

func (b *browser) post(path string, form url.Values) *http.Response {
	resp, err := b.client.PostForm(b.base+path, form)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(resp.Body.Close)
	return resp
}

// page GETs path, expects 200 and decodes the JSON view.
func (b *browser) page(path string) map[string]any {
	resp := b.get(path)
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	var view map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
	return view
}

func (b *browser) sessionCookie() *http.Cookie {
	u, err := url.Parse(b.base)
	Expect(err).NotTo(HaveOccurred())
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func flashOf(view map[string]any) (text, severity string) {
	f, ok := view["flash"].(map[string]any)
	if !ok {
		return "", ""
	}
	return f["text"].(string), f["severity"].(string)
}

func expectRedirect(resp *http.Response, location string) {
	ExpectWithOffset(1, resp.StatusCode).To(Equal(http.StatusSeeOther))
	ExpectWithOffset(1, resp.Header.Get("Location")).To(Equal(location))
}

func registration(username, email, password, confirm string) url.Values {
	return url.Values{
		"username":         {username},
		"email":            {email},
		"password":         {password},
		"confirm_password": {confirm},
	}
}

func credentials(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

var _ = Describe("Server", func() {
	var (
		srv *server.Server
		ts  *httptest.Server
		b   *browser
	)

	BeforeEach(func() {
		cfg := config.Default()
		cfg.Store.DSN = sqliteRepo.MemoryPath
		cfg.Session.Secret = "e2e-secret-0123456789abcdef"
		cfg.Auth.BcryptCost = 4

		var err error
		srv, err = server.New(context.Background(), cfg, slog.New(slog.DiscardHandler))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(srv.Close)

		ts = httptest.NewServer(srv.Handler())
		DeferCleanup(ts.Close)

		b = newBrowser(ts.URL)
	})

	Describe("anonymous visitor", func() {
		It("gets a session cookie and an unauthenticated welcome page", func() {
			view := b.page("/")
			Expect(view["authenticated"]).To(BeFalse())
			Expect(view["links"]).To(HaveKeyWithValue("login", "/login"))

			c := b.sessionCookie()
			Expect(c).NotTo(BeNil())
		})

		It("keeps the same session across requests", func() {
			b.page("/")
			first := b.sessionCookie().Value
			b.page("/login")
			Expect(b.sessionCookie().Value).To(Equal(first))
		})

		It("is redirected from the dashboard to the login page", func() {
			expectRedirect(b.get("/dashboard"), "/login")
		})

		It("gets a fresh session when the cookie is forged", func() {
			b.page("/")
			u, _ := url.Parse(ts.URL)
			b.client.Jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "forged.token.value", Path: "/"}})

			b.page("/")
			Expect(b.sessionCookie().Value).NotTo(Equal("forged.token.value"))
		})
	})

	Describe("register, login and logout", func() {
		It("walks the whole flow", func() {
			By("rejecting mismatched passwords")
			expectRedirect(b.post("/register", registration("alice", "alice@example.com", "pw1", "pw2")), "/register")
			text, severity := flashOf(b.page("/register"))
			Expect(text).To(Equal("Passwords do not match!"))
			Expect(severity).To(Equal("error"))

			By("consuming the flash on first display")
			text, _ = flashOf(b.page("/register"))
			Expect(text).To(BeEmpty())

			By("registering")
			expectRedirect(b.post("/register", registration("alice", "alice@example.com", "pw1", "pw1")), "/login")
			text, severity = flashOf(b.page("/login"))
			Expect(text).To(Equal("Registration successful! Please login."))
			Expect(severity).To(Equal("success"))

			By("rejecting a wrong password")
			expectRedirect(b.post("/login", credentials("alice", "wrong")), "/login")
			text, _ = flashOf(b.page("/login"))
			Expect(text).To(Equal("Invalid credentials!"))
			expectRedirect(b.get("/dashboard"), "/login")

			By("rejecting an unknown user with the same message")
			expectRedirect(b.post("/login", credentials("mallory", "pw1")), "/login")
			text, _ = flashOf(b.page("/login"))
			Expect(text).To(Equal("Invalid credentials!"))

			By("logging in")
			expectRedirect(b.post("/login", credentials("alice", "pw1")), "/dashboard")
			view := b.page("/dashboard")
			Expect(view["greeting"]).To(Equal("Hello alice!"))
			Expect(view["email"]).To(Equal("alice@example.com"))
			Expect(b.page("/")["authenticated"]).To(BeTrue())

			By("skipping the login form while logged in")
			expectRedirect(b.get("/login"), "/dashboard")
			expectRedirect(b.get("/register"), "/dashboard")

			By("logging out")
			expectRedirect(b.post("/logout", nil), "/login")
			Expect(b.sessionCookie()).To(BeNil())
			expectRedirect(b.get("/dashboard"), "/login")
		})

		It("reports missing fields", func() {
			expectRedirect(b.post("/login", credentials("  ", "pw")), "/login")
			text, _ := flashOf(b.page("/login"))
			Expect(text).To(Equal("Username and Password are required!"))

			expectRedirect(b.post("/register", registration("bob", "", "pw", "pw")), "/register")
			text, _ = flashOf(b.page("/register"))
			Expect(text).To(Equal("All fields are required!"))
		})

		It("rejects a duplicate username or email", func() {
			expectRedirect(b.post("/register", registration("alice", "alice@example.com", "pw", "pw")), "/login")

			expectRedirect(b.post("/register", registration("alice", "other@example.com", "pw", "pw")), "/register")
			text, _ := flashOf(b.page("/register"))
			Expect(text).To(Equal("Username or Email already exists!"))

			expectRedirect(b.post("/register", registration("alice2", "alice@example.com", "pw", "pw")), "/register")
			text, _ = flashOf(b.page("/register"))
			Expect(text).To(Equal("Username or Email already exists!"))
		})

		It("keeps sessions of different browsers apart", func() {
			expectRedirect(b.post("/register", registration("alice", "alice@example.com", "pw", "pw")), "/login")
			expectRedirect(b.post("/login", credentials("alice", "pw")), "/dashboard")

			other := newBrowser(ts.URL)
			expectRedirect(other.get("/dashboard"), "/login")
			Expect(b.page("/dashboard")["username"]).To(Equal("alice"))
		})
	})

	Describe("operational endpoints", func() {
		It("answers the liveness probe without creating a session", func() {
			Expect(b.page("/healthz")).To(HaveKeyWithValue("status", "ok"))
			Expect(b.sessionCookie()).To(BeNil())
		})

		It("exports authentication metrics", func() {
			expectRedirect(b.post("/register", registration("alice", "alice@example.com", "pw", "pw")), "/login")
			expectRedirect(b.post("/login", credentials("alice", "pw")), "/dashboard")
			expectRedirect(b.post("/logout", nil), "/login")

			resp := b.get("/metrics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())

			metrics := string(body)
			Expect(metrics).To(ContainSubstring(`user_auth_registrations_total{result="success"} 1`))
			Expect(metrics).To(ContainSubstring(`user_auth_logins_total{result="success"} 1`))
			Expect(metrics).To(ContainSubstring("user_auth_logouts_total 1"))
			Expect(strings.Contains(metrics, "user_auth_sessions_active")).To(BeTrue())
		})
	})
})
