package tools

// TurnContext carries the request-scoped identity every tool call needs.
// It is passed explicitly down the call chain; nothing here is ambient.
type TurnContext struct {
	SessionID string
	OrgID     string
	APIKey    string // upstream model credential assigned to the session
	UserInfo  map[string]string
}
