package model

// Severity classifies a flash message for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Flash is a one-shot message stored in a session and consumed by the next
// page render.
type Flash struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}
