package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/prefs"
)

type sendDoneMsg struct{ err error }

type prefsSavedMsg struct{ err error }

var accentCycle = []prefs.AccentColor{
	prefs.AccentIndigo,
	prefs.AccentBlue,
	prefs.AccentPurple,
	prefs.AccentGreen,
}

type model struct {
	ctx     context.Context
	manager chat.Manager
	prefs   prefs.Preferences
	store   prefs.Store
	userID  string

	conversations []events.ConversationView
	activeID      string
	busy          bool
	errText       string

	textArea textarea.Model
	focused  bool
	keyMap   KeyMap
	style    *Style
	width    int
	height   int
}

func initialModel(ctx context.Context, manager chat.Manager, store prefs.Store, p prefs.Preferences, userID string) model {
	ret := model{
		ctx:     ctx,
		manager: manager,
		prefs:   p,
		store:   store,
		userID:  userID,
		keyMap:  DefaultKeyMap,
		style:   NewStyles(p),
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask a question..."
	ret.textArea.SetHeight(3)
	ret.textArea.Focus()
	ret.focused = true
	ret.updateKeyBindings()

	return ret
}

func (m *model) updateKeyBindings() {
	m.keyMap.FocusInput.SetEnabled(!m.focused)
	m.keyMap.UnfocusInput.SetEnabled(m.focused)
	m.keyMap.SubmitMessage.SetEnabled(m.focused && !m.busy)
}

func (m model) active() (events.ConversationView, bool) {
	for _, conv := range m.conversations {
		if conv.ID == m.activeID {
			return conv, true
		}
	}
	return events.ConversationView{}, false
}

// activeIndex returns the position of the active conversation, -1 when none.
func (m model) activeIndex() int {
	for i, conv := range m.conversations {
		if conv.ID == m.activeID {
			return i
		}
	}
	return -1
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) submit() (model, tea.Cmd) {
	text := m.textArea.Value()
	m.textArea.Reset()
	manager := m.manager
	ctx := m.ctx
	return m, func() tea.Msg {
		return sendDoneMsg{err: manager.SendMessage(ctx, text)}
	}
}

func (m model) cycleAccent() (model, tea.Cmd) {
	next := accentCycle[0]
	for i, accent := range accentCycle {
		if accent == m.prefs.AccentColor {
			next = accentCycle[(i+1)%len(accentCycle)]
			break
		}
	}
	m.prefs.AccentColor = next
	m.style = NewStyles(m.prefs)

	store, ctx, userID, p := m.store, m.ctx, m.userID, m.prefs
	return m, func() tea.Msg {
		return prefsSavedMsg{err: store.Save(ctx, userID, p)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.UnfocusInput):
			if m.focused {
				m.textArea.Blur()
				m.focused = false
				m.updateKeyBindings()
			}

		case key.Matches(msg, m.keyMap.FocusInput):
			if !m.focused {
				cmd = m.textArea.Focus()
				cmds = append(cmds, cmd)
				m.focused = true
				m.updateKeyBindings()
			}

		case key.Matches(msg, m.keyMap.SubmitMessage):
			return m.submit()

		case key.Matches(msg, m.keyMap.NewConversation):
			m.manager.StartNewConversation()

		case key.Matches(msg, m.keyMap.NextConversation):
			if idx := m.activeIndex(); idx >= 0 && idx < len(m.conversations)-1 {
				m.manager.SelectConversation(m.conversations[idx+1].ID)
			}

		case key.Matches(msg, m.keyMap.PrevConversation):
			if idx := m.activeIndex(); idx > 0 {
				m.manager.SelectConversation(m.conversations[idx-1].ID)
			}

		case key.Matches(msg, m.keyMap.CycleAccent):
			return m.cycleAccent()

		default:
			if m.focused {
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		w, _ := m.style.UserMessage.GetFrameSize()
		m.textArea.SetWidth(msg.Width - w)
		m.width = msg.Width
		m.height = msg.Height

	case *events.EventConversationsUpdated:
		m.conversations = msg.Conversations
		m.activeID = msg.ActiveID

	case *events.EventBusy:
		m.busy = msg.Busy
		m.updateKeyBindings()

	case *events.EventError:
		m.errText = msg.Message

	case *events.EventIdentityChanged:
		m.userID = msg.UserID
		m.errText = ""

	case sendDoneMsg:
		if msg.err == nil {
			m.errText = ""
		}

	case prefsSavedMsg:
		if msg.err != nil {
			m.errText = "could not save preferences: " + msg.err.Error()
		}

	default:
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	ret := ""

	active, ok := m.active()
	title := "no conversation"
	if ok {
		title = active.Title
	}
	ret += m.style.TitleBar.Render(title) + "\n"

	w, _ := m.style.UserMessage.GetFrameSize()
	wrapWidth := m.width - w
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	for _, message := range active.Messages {
		v := wordwrap.String(message.Content, wrapWidth)
		if message.Role == "user" {
			v = m.style.UserMessage.Render(v)
		} else {
			v = m.style.AssistantMessage.Render(v)
		}
		ret += v + "\n"
	}

	v := m.textArea.View()
	if m.focused {
		v = m.style.FocusedInput.Render(v)
	} else {
		v = m.style.Input.Render(v)
	}
	ret += v + "\n"

	switch {
	case m.errText != "":
		ret += m.style.ErrorBar.Render(m.errText) + "\n"
	case m.busy:
		ret += m.style.StatusBar.Render("thinking...") + "\n"
	default:
		status := ""
		if idx := m.activeIndex(); idx >= 0 {
			status = m.style.StatusBar.Render(fmt.Sprintf(
				"conversation %d/%d  ctrl+n new  tab send  ctrl+c quit",
				idx+1, len(m.conversations)))
		}
		ret += status + "\n"
	}

	return ret
}
