package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/identity"
)

// historyOrderingDelta is added to the assistant message timestamp when the
// store only supplies second-granularity record timestamps, so the pair
// always renders in question/answer order.
const historyOrderingDelta = int64(1000)

type ManagerImpl struct {
	mu sync.Mutex

	resolver  *identity.Resolver
	store     Store
	publisher *events.PublisherManager

	conversations []Conversation
	activeID      string
	owner         *identity.Identity
	inflight      map[string]bool
	loading       bool
	lastError     *ChatError
	lastSend      *sendAttempt

	// generation invalidates in-flight continuations across identity
	// transitions
	generation  uint64
	unsubscribe func()
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

// WithPublisherManager makes the manager publish snapshot events after each
// mutation. Without it the manager is query-only.
func WithPublisherManager(publisher *events.PublisherManager) ManagerOption {
	return func(m *ManagerImpl) {
		m.publisher = publisher
	}
}

func NewManager(resolver *identity.Resolver, store Store, options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{
		resolver: resolver,
		store:    store,
		inflight: make(map[string]bool),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Start bootstraps from the resolver's current identity and follows
// subsequent transitions. ctx outlives Start; it is the context bootstrap
// fetches run under.
func (m *ManagerImpl) Start(ctx context.Context) {
	if ident := m.resolver.Current(); ident != nil {
		m.bootstrap(ctx, ident)
	}
	m.unsubscribe = m.resolver.Subscribe(func(ident *identity.Identity) {
		m.bootstrap(ctx, ident)
	})
}

func (m *ManagerImpl) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *ManagerImpl) Conversations() []Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		ret = append(ret, conv.clone())
	}
	return ret
}

func (m *ManagerImpl) Active() (Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.findLocked(m.activeID)
	if !ok {
		return Conversation{}, false
	}
	return conv.clone(), true
}

func (m *ManagerImpl) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading || len(m.inflight) > 0
}

func (m *ManagerImpl) LastError() *ChatError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// LastSendPhase reports where the most recent send attempt stopped.
func (m *ManagerImpl) LastSendPhase() SendPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSend == nil {
		return PhaseIdle
	}
	return m.lastSend.phase
}

func (m *ManagerImpl) StartNewConversation() {
	m.mu.Lock()
	if m.owner == nil {
		m.mu.Unlock()
		return
	}
	m.startNewConversationLocked()
	m.mu.Unlock()
	m.publishSnapshot()
}

func (m *ManagerImpl) SelectConversation(id string) {
	m.mu.Lock()
	_, ok := m.findLocked(id)
	if !ok || m.activeID == id {
		m.mu.Unlock()
		return
	}
	m.activeID = id
	m.mu.Unlock()
	m.publishSnapshot()
}

func (m *ManagerImpl) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.mu.Lock()
	if m.owner == nil {
		m.mu.Unlock()
		return nil
	}
	conv, ok := m.findLocked(m.activeID)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if m.inflight[conv.ID] {
		m.mu.Unlock()
		log.Debug().Str("conversation_id", conv.ID).Msg("send already in flight, ignoring")
		return nil
	}

	gen := m.generation
	owner := *m.owner
	convID := conv.ID
	m.inflight[convID] = true

	attempt := &sendAttempt{conversationID: convID, phase: PhaseIdle}
	m.lastSend = attempt

	// optimistic append, visible before any network call is issued
	userMsg := NewMessage(RoleUser, text)
	m.replaceLocked(convID, conv.AppendMessage(userMsg))
	m.activeID = convID
	m.lastError = nil
	attempt.phase = PhaseUserMessageAppended
	m.mu.Unlock()

	m.publishSnapshot()
	m.publishBusy()

	finalID := convID
	defer func() {
		m.mu.Lock()
		delete(m.inflight, convID)
		delete(m.inflight, finalID)
		m.mu.Unlock()
		m.publishBusy()
	}()

	token := m.resolver.AcquireCredential(ctx)
	if token == "" {
		chatErr := NewAuthenticationUnavailableError()
		if !m.failSend(gen, attempt, chatErr) {
			return nil
		}
		return chatErr
	}

	m.setPhase(attempt, PhaseAwaitingAnswer)
	resp, err := m.store.Answer(ctx, AnswerRequest{Question: text, UserID: owner.ID}, token)
	if err != nil {
		chatErr := asChatError(err)
		if !m.failSend(gen, attempt, chatErr) {
			return nil
		}
		return chatErr
	}

	assistantTS := time.Now().UnixMilli()
	if assistantTS <= userMsg.Timestamp {
		assistantTS = userMsg.Timestamp + 1
	}
	assistantMsg := NewMessage(RoleAssistant, resp.Answer, WithTimestamp(assistantTS))

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		log.Debug().Str("conversation_id", convID).Msg("identity changed mid-send, discarding answer")
		return nil
	}
	current, ok := m.findLocked(convID)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.replaceLocked(convID, current.AppendMessage(assistantMsg))
	m.activeID = convID
	attempt.phase = PhaseAnswerAppended
	m.mu.Unlock()
	m.publishSnapshot()

	// write-behind persistence; failure here must stay invisible so it
	// cannot be mistaken for a failed answer
	record := HistoryRecord{
		Question:  text,
		Answer:    resp.Answer,
		UserID:    owner.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	savedID, err := m.store.SaveHistory(ctx, record, token)
	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", convID).
			Str("kind", string(ErrHistoryPersistFailed)).
			Msg("failed to persist exchange to history")
		return nil
	}

	if IsProvisionalID(convID) && savedID != "" {
		m.mu.Lock()
		if m.generation == gen {
			if current, ok := m.findLocked(convID); ok {
				m.replaceLocked(convID, current.WithID(savedID))
				if m.activeID == convID {
					m.activeID = savedID
				}
				delete(m.inflight, convID)
				m.inflight[savedID] = true
				finalID = savedID
			}
		}
		m.mu.Unlock()
		m.publishSnapshot()
	}

	return nil
}

// bootstrap discards all state and, for a present identity, rebuilds the
// conversation set from remote history. Fetch failures degrade to a single
// fresh conversation; the error is logged, never surfaced, to keep first
// load quiet.
func (m *ManagerImpl) bootstrap(ctx context.Context, ident *identity.Identity) {
	m.mu.Lock()
	if ident != nil && m.owner != nil && ident.ID == m.owner.ID {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	m.conversations = nil
	m.activeID = ""
	m.inflight = make(map[string]bool)
	m.lastError = nil
	m.lastSend = nil
	if ident != nil {
		owner := *ident
		m.owner = &owner
		m.loading = true
	} else {
		m.owner = nil
		m.loading = false
	}
	m.mu.Unlock()

	if ident == nil {
		m.publish(events.NewIdentityChangedEvent(""))
		m.publishSnapshot()
		return
	}

	m.publish(events.NewIdentityChangedEvent(ident.ID))
	m.publishBusy()

	token := m.resolver.AcquireCredential(ctx)
	var records []HistoryRecord
	var err error
	if token == "" {
		err = errors.New("authentication token not available")
	} else {
		records, err = m.store.History(ctx, ident.ID, token)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.loading = false
	if err != nil {
		log.Warn().Err(err).Str("user_id", ident.ID).Msg("failed to fetch history, starting with an empty conversation")
		m.conversations = nil
		m.startNewConversationLocked()
	} else {
		m.conversations = conversationsFromHistory(records)
		if len(m.conversations) > 0 {
			m.activeID = m.conversations[0].ID
		} else {
			m.startNewConversationLocked()
		}
	}
	m.mu.Unlock()

	m.publishBusy()
	m.publishSnapshot()
}

func (m *ManagerImpl) startNewConversationLocked() {
	conv := Conversation{
		ID:        NewProvisionalID(),
		Title:     DefaultTitle,
		Timestamp: time.Now().UnixMilli(),
		OwnerID:   m.owner.ID,
	}
	m.conversations = append([]Conversation{conv}, m.conversations...)
	m.activeID = conv.ID
}

func (m *ManagerImpl) findLocked(id string) (Conversation, bool) {
	if id == "" {
		return Conversation{}, false
	}
	for _, conv := range m.conversations {
		if conv.ID == id {
			return conv, true
		}
	}
	return Conversation{}, false
}

// replaceLocked swaps the conversation stored under id for conv, preserving
// its position. Mutations are always keyed by id so interleaved sends on
// different conversations cannot clobber each other.
func (m *ManagerImpl) replaceLocked(id string, conv Conversation) {
	for i := range m.conversations {
		if m.conversations[i].ID == id {
			m.conversations[i] = conv
			return
		}
	}
}

func (m *ManagerImpl) setPhase(attempt *sendAttempt, phase SendPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.phase = phase
}

// failSend stores the error and reports whether it was applied; a failure
// resolving after an identity transition is discarded like a stale success.
func (m *ManagerImpl) failSend(gen uint64, attempt *sendAttempt, chatErr *ChatError) bool {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		log.Debug().Str("conversation_id", attempt.conversationID).Msg("identity changed mid-send, discarding error")
		return false
	}
	m.lastError = chatErr
	attempt.phase = PhaseFailed
	m.mu.Unlock()

	log.Warn().
		Str("conversation_id", attempt.conversationID).
		Str("kind", string(chatErr.Kind)).
		Int("status", chatErr.Status).
		Msg(chatErr.Message)
	m.publish(events.NewErrorEvent(string(chatErr.Kind), chatErr.Status, chatErr.Message))
	return true
}

func asChatError(err error) *ChatError {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}
	return NewRemoteRequestFailedError(0, err.Error())
}

func conversationsFromHistory(records []HistoryRecord) []Conversation {
	ret := make([]Conversation, 0, len(records))
	for _, rec := range records {
		ts := int64(0)
		parsed, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			log.Warn().Str("timestamp", rec.Timestamp).Str("record_id", rec.ID).Msg("unparseable history timestamp")
		} else {
			ts = parsed.UnixMilli()
		}

		ret = append(ret, Conversation{
			ID:    rec.ID,
			Title: TitleFromContent(rec.Question),
			Messages: []Message{
				NewMessage(RoleUser, rec.Question,
					WithMessageID("user-"+rec.ID), WithTimestamp(ts)),
				NewMessage(RoleAssistant, rec.Answer,
					WithMessageID("assistant-"+rec.ID), WithTimestamp(ts+historyOrderingDelta)),
			},
			Timestamp: ts,
			OwnerID:   rec.UserID,
		})
	}

	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Timestamp > ret[j].Timestamp
	})
	return ret
}

func (m *ManagerImpl) publish(ev events.Event) {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishBlind(ev)
}

func (m *ManagerImpl) publishSnapshot() {
	if m.publisher == nil {
		return
	}
	m.mu.Lock()
	views := make([]events.ConversationView, 0, len(m.conversations))
	for _, conv := range m.conversations {
		views = append(views, conv.View())
	}
	activeID := m.activeID
	m.mu.Unlock()
	m.publisher.PublishBlind(events.NewConversationsUpdatedEvent(views, activeID))
}

func (m *ManagerImpl) publishBusy() {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishBlind(events.NewBusyEvent(m.Busy()))
}
