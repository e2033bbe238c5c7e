package main

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	FocusInput       key.Binding
	UnfocusInput     key.Binding
	SubmitMessage    key.Binding
	NewConversation  key.Binding
	NextConversation key.Binding
	PrevConversation key.Binding
	CycleAccent      key.Binding
	Quit             key.Binding
}

var DefaultKeyMap = KeyMap{
	FocusInput:       key.NewBinding(key.WithKeys("enter")),
	UnfocusInput:     key.NewBinding(key.WithKeys("esc", "ctrl+g")),
	SubmitMessage:    key.NewBinding(key.WithKeys("tab")),
	NewConversation:  key.NewBinding(key.WithKeys("ctrl+n")),
	NextConversation: key.NewBinding(key.WithKeys("ctrl+down")),
	PrevConversation: key.NewBinding(key.WithKeys("ctrl+up")),
	CycleAccent:      key.NewBinding(key.WithKeys("ctrl+t")),
	Quit:             key.NewBinding(key.WithKeys("ctrl+c")),
}
