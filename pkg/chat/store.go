package chat

import "context"

// HistoryRecord is one persisted question/answer exchange as the remote
// store returns it. Timestamp is an ISO-8601 string, second granularity at
// best.
type HistoryRecord struct {
	ID        string `json:"id,omitempty"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

type AnswerRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
}

// AnswerResponse is the answer endpoint's reply. ID is optionally the
// server-assigned conversation id.
type AnswerResponse struct {
	Answer string `json:"answer"`
	ID     string `json:"id,omitempty"`
}

// Store is the remote conversation store contract the manager consumes.
// Every call takes the bearer token acquired immediately beforehand; tokens
// are never cached here.
type Store interface {
	// History returns all persisted exchanges for the user, unordered.
	History(ctx context.Context, userID string, token string) ([]HistoryRecord, error)
	// Answer submits a question. A non-2xx response is an error.
	Answer(ctx context.Context, req AnswerRequest, token string) (*AnswerResponse, error)
	// SaveHistory persists a completed exchange and returns the
	// server-assigned conversation id, if the store supplies one.
	SaveHistory(ctx context.Context, record HistoryRecord, token string) (string, error)
}
