package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/identity"
)

type fakeStore struct {
	mu sync.Mutex

	historyRecords []HistoryRecord
	historyErr     error

	answerFn func(req AnswerRequest) (*AnswerResponse, error)

	saved   []HistoryRecord
	saveID  string
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		answerFn: func(req AnswerRequest) (*AnswerResponse, error) {
			return &AnswerResponse{Answer: "answer to: " + req.Question}, nil
		},
	}
}

func (s *fakeStore) History(_ context.Context, _ string, _ string) ([]HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.historyRecords, nil
}

func (s *fakeStore) Answer(_ context.Context, req AnswerRequest, _ string) (*AnswerResponse, error) {
	s.mu.Lock()
	fn := s.answerFn
	s.mu.Unlock()
	return fn(req)
}

func (s *fakeStore) SaveHistory(_ context.Context, record HistoryRecord, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, record)
	return s.saveID, nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

var _ Store = (*fakeStore)(nil)

func newTestManager(t *testing.T, store Store) (*ManagerImpl, *identity.StaticProvider) {
	t.Helper()
	provider := identity.NewStaticProvider()
	resolver := identity.NewResolver(provider)
	t.Cleanup(resolver.Close)

	m := NewManager(resolver, store)
	m.Start(context.Background())
	t.Cleanup(m.Close)

	return m, provider
}

func signIn(provider *identity.StaticProvider, userID string) {
	provider.SignIn(&identity.Identity{ID: userID}, "tok-"+userID)
}

func TestBootstrapBuildsConversationsFromHistory(t *testing.T) {
	store := newFakeStore()
	store.historyRecords = []HistoryRecord{
		{ID: "h1", Question: "older question", Answer: "older answer", UserID: "user-1", Timestamp: "2024-05-01T10:00:00Z"},
		{ID: "h2", Question: "newer question", Answer: "newer answer", UserID: "user-1", Timestamp: "2024-05-02T10:00:00Z"},
	}
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	convs := m.Conversations()
	require.Len(t, convs, 2)

	// newest first
	assert.Equal(t, "h2", convs[0].ID)
	assert.Equal(t, "h1", convs[1].ID)
	assert.Equal(t, "newer question", convs[0].Title)

	// each record becomes a question/answer pair with the answer strictly
	// after the question
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, RoleUser, convs[0].Messages[0].Role)
	assert.Equal(t, RoleAssistant, convs[0].Messages[1].Role)
	assert.Greater(t, convs[0].Messages[1].Timestamp, convs[0].Messages[0].Timestamp)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "h2", active.ID)
}

func TestBootstrapFailureDegradesToEmptyConversation(t *testing.T) {
	store := newFakeStore()
	store.historyErr = errors.New("service unavailable")
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	// no error surfaces; the user gets one fresh conversation instead
	assert.Nil(t, m.LastError())
	convs := m.Conversations()
	require.Len(t, convs, 1)
	assert.True(t, IsProvisionalID(convs[0].ID))
	assert.Len(t, convs[0].Messages, 0)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, convs[0].ID, active.ID)
}

func TestBootstrapEmptyHistoryStartsFreshConversation(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")

	convs := m.Conversations()
	require.Len(t, convs, 1)
	assert.True(t, IsProvisionalID(convs[0].ID))
	assert.Equal(t, DefaultTitle, convs[0].Title)
}

func TestSignOutClearsEverything(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")
	require.NotEmpty(t, m.Conversations())

	provider.SignOut()

	assert.Empty(t, m.Conversations())
	_, ok := m.Active()
	assert.False(t, ok)
}

func TestIdentitySwitchDiscardsPriorConversations(t *testing.T) {
	store := newFakeStore()
	store.historyRecords = []HistoryRecord{
		{ID: "h1", Question: "q", Answer: "a", UserID: "user-1", Timestamp: "2024-05-01T10:00:00Z"},
	}
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")
	require.Equal(t, "h1", m.Conversations()[0].ID)

	store.mu.Lock()
	store.historyRecords = []HistoryRecord{
		{ID: "h9", Question: "other user q", Answer: "a", UserID: "user-2", Timestamp: "2024-05-03T10:00:00Z"},
	}
	store.mu.Unlock()

	signIn(provider, "user-2")

	convs := m.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "h9", convs[0].ID)
	assert.Equal(t, "user-2", convs[0].OwnerID)
}

func TestStartNewConversationRequiresIdentity(t *testing.T) {
	m, _ := newTestManager(t, newFakeStore())

	m.StartNewConversation()

	assert.Empty(t, m.Conversations())
}

func TestStartNewConversationProducesUniqueIDs(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")

	for i := 0; i < 100; i++ {
		m.StartNewConversation()
	}

	convs := m.Conversations()
	seen := map[string]bool{}
	for _, conv := range convs {
		assert.False(t, seen[conv.ID], "duplicate conversation id %s", conv.ID)
		seen[conv.ID] = true
	}
	// 100 new ones plus the bootstrap conversation
	assert.Len(t, convs, 101)

	// newest insertion is active and at the front
	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, convs[0].ID, active.ID)
}

func TestSelectConversation(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")
	m.StartNewConversation()

	convs := m.Conversations()
	require.Len(t, convs, 2)

	m.SelectConversation(convs[1].ID)
	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, convs[1].ID, active.ID)

	// unknown ids are ignored
	m.SelectConversation("no-such-id")
	active, _ = m.Active()
	assert.Equal(t, convs[1].ID, active.ID)
}

func TestSelectActiveConversationIsIdempotent(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")
	require.NoError(t, m.SendMessage(context.Background(), "hello"))

	before, ok := m.Active()
	require.True(t, ok)

	m.SelectConversation(before.ID)

	after, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID)
	require.Len(t, after.Messages, len(before.Messages))
	for i := range before.Messages {
		assert.Equal(t, before.Messages[i].ID, after.Messages[i].ID)
	}
}

func TestSendMessageAppendsUserAndAssistant(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")

	require.NoError(t, m.SendMessage(context.Background(), "hello there"))

	active, ok := m.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, RoleUser, active.Messages[0].Role)
	assert.Equal(t, RoleAssistant, active.Messages[1].Role)
	assert.Greater(t, active.Messages[1].Timestamp, active.Messages[0].Timestamp)
	assert.Equal(t, "hello there", active.Messages[0].Content)
	assert.Equal(t, "answer to: hello there", active.Messages[1].Content)
	assert.Equal(t, PhaseAnswerAppended, m.LastSendPhase())
	assert.Nil(t, m.LastError())
}

func TestSendMessageEmptyTextIsNoOp(t *testing.T) {
	m, provider := newTestManager(t, newFakeStore())
	signIn(provider, "user-1")

	require.NoError(t, m.SendMessage(context.Background(), "   \n\t"))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Len(t, active.Messages, 0)
}

func TestSendMessageWithoutIdentityIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, newFakeStore())
	require.NoError(t, m.SendMessage(context.Background(), "hello"))
	assert.Empty(t, m.Conversations())
}

func TestFailedAnswerKeepsUserMessageAndSetsError(t *testing.T) {
	store := newFakeStore()
	store.answerFn = func(AnswerRequest) (*AnswerResponse, error) {
		return nil, NewRemoteRequestFailedError(503, "overloaded")
	}
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	err := m.SendMessage(context.Background(), "doomed question")
	require.Error(t, err)

	active, ok := m.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, 1)
	assert.Equal(t, RoleUser, active.Messages[0].Role)

	chatErr := m.LastError()
	require.NotNil(t, chatErr)
	assert.Equal(t, ErrRemoteRequestFailed, chatErr.Kind)
	assert.Equal(t, 503, chatErr.Status)
	assert.Equal(t, PhaseFailed, m.LastSendPhase())

	// no history write happened
	assert.Equal(t, 0, store.savedCount())
}

func TestMissingCredentialAbortsSend(t *testing.T) {
	provider := identity.NewStaticProvider()
	resolver := identity.NewResolver(provider)
	t.Cleanup(resolver.Close)
	store := newFakeStore()
	m := NewManager(resolver, store)
	m.Start(context.Background())
	t.Cleanup(m.Close)

	provider.SignIn(&identity.Identity{ID: "user-1"}, "tok")
	// token disappears after bootstrap, e.g. session expired provider-side
	provider.SignIn(&identity.Identity{ID: "user-1"}, "")

	err := m.SendMessage(context.Background(), "hello")
	require.Error(t, err)

	chatErr := m.LastError()
	require.NotNil(t, chatErr)
	assert.Equal(t, ErrAuthenticationUnavailable, chatErr.Kind)

	// optimistic user message stays in place
	active, ok := m.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, 1)
	assert.Equal(t, RoleUser, active.Messages[0].Role)
}

func TestHistoryWriteFailureIsInvisible(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("history store down")
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	require.NoError(t, m.SendMessage(context.Background(), "hello"))

	// the assistant answer stays and no error surfaces
	active, ok := m.Active()
	require.True(t, ok)
	assert.Len(t, active.Messages, 2)
	assert.Nil(t, m.LastError())

	// the conversation keeps its provisional id until a later write succeeds
	assert.True(t, IsProvisionalID(active.ID))
}

func TestReconciliationSwapsProvisionalID(t *testing.T) {
	store := newFakeStore()
	store.saveID = "srv-1"
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	active, ok := m.Active()
	require.True(t, ok)
	tempID := active.ID
	require.True(t, IsProvisionalID(tempID))

	require.NoError(t, m.SendMessage(context.Background(), "What is a B-tree?"))

	active, ok = m.Active()
	require.True(t, ok)
	assert.Equal(t, "srv-1", active.ID)

	// the provisional id no longer selects anything
	m.SelectConversation(tempID)
	active, _ = m.Active()
	assert.Equal(t, "srv-1", active.ID)

	m.SelectConversation("srv-1")
	active, _ = m.Active()
	assert.Equal(t, "srv-1", active.ID)
}

func TestStableIDIsNotReconciled(t *testing.T) {
	store := newFakeStore()
	store.historyRecords = []HistoryRecord{
		{ID: "h1", Question: "q", Answer: "a", UserID: "user-1", Timestamp: "2024-05-01T10:00:00Z"},
	}
	store.saveID = "srv-9"
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	require.NoError(t, m.SendMessage(context.Background(), "follow-up"))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "h1", active.ID)
}

func TestSendsToDistinctConversationsStayIsolated(t *testing.T) {
	store := newFakeStore()
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	m.StartNewConversation()
	convs := m.Conversations()
	require.Len(t, convs, 2)
	first, second := convs[1].ID, convs[0].ID

	m.SelectConversation(first)
	require.NoError(t, m.SendMessage(context.Background(), "first conversation question"))

	m.SelectConversation(second)
	require.NoError(t, m.SendMessage(context.Background(), "second conversation question"))

	m.SelectConversation(first)
	active, _ := m.Active()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "first conversation question", active.Messages[0].Content)

	m.SelectConversation(second)
	active, _ = m.Active()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "second conversation question", active.Messages[0].Content)
}

func TestConcurrentSendOnSameConversationIsRejected(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	release := make(chan struct{})
	store.answerFn = func(req AnswerRequest) (*AnswerResponse, error) {
		close(started)
		<-release
		return &AnswerResponse{Answer: "slow answer"}, nil
	}

	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	done := make(chan error, 1)
	go func() {
		done <- m.SendMessage(context.Background(), "slow question")
	}()
	<-started

	// second send on the same conversation is silently rejected
	require.NoError(t, m.SendMessage(context.Background(), "impatient question"))

	close(release)
	require.NoError(t, <-done)

	active, ok := m.Active()
	require.True(t, ok)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "slow question", active.Messages[0].Content)
	assert.Equal(t, "slow answer", active.Messages[1].Content)
	assert.Equal(t, 1, store.savedCount())
}

func TestInFlightResultDiscardedAfterIdentityChange(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	release := make(chan struct{})
	store.answerFn = func(AnswerRequest) (*AnswerResponse, error) {
		close(started)
		<-release
		return &AnswerResponse{Answer: "stale answer"}, nil
	}

	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	done := make(chan error, 1)
	go func() {
		done <- m.SendMessage(context.Background(), "question before sign-out")
	}()
	<-started

	provider.SignOut()

	close(release)
	require.NoError(t, <-done)

	// the stale answer must not have been applied anywhere
	assert.Empty(t, m.Conversations())
	assert.Nil(t, m.LastError())
	assert.False(t, m.Busy())
}

func TestInFlightFailureDiscardedAfterIdentityChange(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	release := make(chan struct{})
	store.answerFn = func(AnswerRequest) (*AnswerResponse, error) {
		close(started)
		<-release
		return nil, NewRemoteRequestFailedError(500, "stale failure")
	}

	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	done := make(chan error, 1)
	go func() {
		done <- m.SendMessage(context.Background(), "question before sign-out")
	}()
	<-started

	provider.SignOut()

	close(release)
	// a failure resolving after sign-out is as invisible as a stale success
	require.NoError(t, <-done)
	assert.Nil(t, m.LastError())
}

func TestSendClearsPreviousError(t *testing.T) {
	store := newFakeStore()
	store.answerFn = func(AnswerRequest) (*AnswerResponse, error) {
		return nil, NewRemoteRequestFailedError(500, "boom")
	}
	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	require.Error(t, m.SendMessage(context.Background(), "first try"))
	require.NotNil(t, m.LastError())

	store.mu.Lock()
	store.answerFn = func(req AnswerRequest) (*AnswerResponse, error) {
		return &AnswerResponse{Answer: "recovered"}, nil
	}
	store.mu.Unlock()

	require.NoError(t, m.SendMessage(context.Background(), "second try"))
	assert.Nil(t, m.LastError())
}

func TestEndToEndScenario(t *testing.T) {
	store := newFakeStore()
	store.answerFn = func(req AnswerRequest) (*AnswerResponse, error) {
		return &AnswerResponse{Answer: "A balanced tree...", ID: "h1"}, nil
	}
	store.saveID = "h1"

	m, provider := newTestManager(t, store)
	signIn(provider, "user-1")

	m.StartNewConversation()
	require.NoError(t, m.SendMessage(context.Background(), "What is a B-tree?"))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "h1", active.ID)
	assert.Equal(t, "What is a B-tree?", active.Title)
	require.Len(t, active.Messages, 2)
	assert.Equal(t, RoleUser, active.Messages[0].Role)
	assert.Equal(t, "What is a B-tree?", active.Messages[0].Content)
	assert.Equal(t, RoleAssistant, active.Messages[1].Role)
	assert.Equal(t, "A balanced tree...", active.Messages[1].Content)

	require.Equal(t, 1, store.savedCount())
	store.mu.Lock()
	saved := store.saved[0]
	store.mu.Unlock()
	assert.Equal(t, "What is a B-tree?", saved.Question)
	assert.Equal(t, "A balanced tree...", saved.Answer)
	assert.Equal(t, "user-1", saved.UserID)
	_, err := time.Parse(time.RFC3339, saved.Timestamp)
	assert.NoError(t, err)
}
