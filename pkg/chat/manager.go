// Package chat owns the conversation set, the active conversation pointer
// and the send/persist cycle for talking to the remote answer service.
//
// The manager applies every local mutation optimistically before the network
// round-trip resolves, then reconciles: the assistant reply is appended on
// success, the exchange is written behind to the history store, and
// provisional conversation ids are swapped for server-assigned ones when the
// history write returns them. All state is discarded and rebuilt whenever
// the identity changes.
//
// Consumers get value snapshots from the accessors or subscribe to the
// published events; they never hold references into manager-owned state.
package chat

import "context"

// Manager is the interface the rendering layer talks to.
type Manager interface {
	// Conversations returns a snapshot of the conversation set,
	// newest-first.
	Conversations() []Conversation
	// Active returns a snapshot of the active conversation, if any.
	Active() (Conversation, bool)
	// Busy reports whether a bootstrap or send is in flight.
	Busy() bool
	// LastError returns the most recent send failure, nil after a
	// successful send.
	LastError() *ChatError

	// StartNewConversation creates an empty conversation with a provisional
	// id, inserts it at the front and makes it active. No-op when signed
	// out.
	StartNewConversation()
	// SelectConversation makes the given conversation active. Unknown ids
	// are ignored.
	SelectConversation(id string)
	// SendMessage runs the optimistic send flow on the active conversation.
	// Empty text, a missing active conversation and a send already in
	// flight on it are silent no-ops. The returned error, when non-nil, is
	// a *ChatError that has also been stored in the error slot.
	SendMessage(ctx context.Context, text string) error
}
