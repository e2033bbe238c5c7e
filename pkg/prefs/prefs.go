// Package prefs holds per-user presentation preferences: theme, font size,
// message layout and accent color. Preferences live in a local file cache
// for fast startup and are synced against the remote store when a credential
// is available; remote failures are logged and never surfaced.
package prefs

import "context"

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

type FontSize string

const (
	FontSizeSmall  FontSize = "small"
	FontSizeMedium FontSize = "medium"
	FontSizeLarge  FontSize = "large"
)

type MessageLayout string

const (
	LayoutCompact     MessageLayout = "compact"
	LayoutComfortable MessageLayout = "comfortable"
)

type AccentColor string

const (
	AccentIndigo AccentColor = "indigo"
	AccentBlue   AccentColor = "blue"
	AccentPurple AccentColor = "purple"
	AccentGreen  AccentColor = "green"
)

type Preferences struct {
	Theme         Theme         `json:"theme" yaml:"theme"`
	FontSize      FontSize      `json:"fontSize" yaml:"font-size"`
	MessageLayout MessageLayout `json:"messageLayout" yaml:"message-layout"`
	AccentColor   AccentColor   `json:"accentColor" yaml:"accent-color"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:         ThemeSystem,
		FontSize:      FontSizeMedium,
		MessageLayout: LayoutComfortable,
		AccentColor:   AccentIndigo,
	}
}

// Store loads and saves a user's preferences.
type Store interface {
	Load(ctx context.Context, userID string) (Preferences, error)
	Save(ctx context.Context, userID string, p Preferences) error
}

// Remote is the remote half of preference storage, implemented by the HTTP
// client. The bool result of FetchPreferences is false when the store holds
// nothing for the user yet.
type Remote interface {
	FetchPreferences(ctx context.Context, userID string, token string) (Preferences, bool, error)
	SavePreferences(ctx context.Context, userID string, token string, p Preferences) error
}
