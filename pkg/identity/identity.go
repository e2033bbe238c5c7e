// Package identity wraps an external auth provider and exposes the current
// signed-in identity to the rest of the application.
//
// The Resolver is the only component that talks to the provider directly.
// Consumers observe identity transitions through Subscribe and fetch a fresh
// bearer credential right before every remote call; the provider is assumed
// to handle caching and refresh internally.
package identity

// Identity is the authenticated user reference used to scope conversations
// and remote calls. The ID is stable and unique; display attributes are
// optional.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarURL,omitempty"`
}

// State describes the resolver's view of the auth provider.
type State string

const (
	// StateUnknown is the initial state, before the provider has reported
	// anything.
	StateUnknown       State = "unknown"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)
