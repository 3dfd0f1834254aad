package auth

// Kind discriminates session lifecycle events.
type Kind string

const (
	// EventInit reports that a provider finished initializing.
	EventInit Kind = "init"
	// EventSuccess carries the session of a finished login or logout.
	EventSuccess Kind = "success"
	// EventCancel reports a user-cancelled operation.
	EventCancel Kind = "cancel"
	// EventError carries a wrapped provider failure.
	EventError Kind = "error"
)

// Session is the outcome of an authentication attempt: who is logged
// in, under which provider. A session without a token is logged out.
// The token is never persisted.
type Session struct {
	ProviderID  string `json:"provider_id"`
	Token       string `json:"-"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (s Session) LoggedIn() bool {
	return s.Token != ""
}

// Event is the single terminal or init notification of a provider
// operation. Session is set on EventSuccess, Err on EventError.
type Event struct {
	Kind       Kind     `json:"kind"`
	ProviderID string   `json:"provider_id"`
	Session    *Session `json:"session,omitempty"`
	Err        error    `json:"-"`
}

// Callback receives provider events. Implementations must be pointer
// types: a provider identifies its registered callback by comparing
// interface values.
type Callback interface {
	OnAuthEvent(Event)
}
