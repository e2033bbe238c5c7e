package chat

// SendPhase records how far a send attempt got. The phases mirror the send
// flow: optimistic user append, the answer round-trip, then either the
// assistant append or a failure. The manager keeps the last attempt around
// so the stopping point of a failed send is observable.
type SendPhase string

const (
	PhaseIdle                SendPhase = "idle"
	PhaseUserMessageAppended SendPhase = "user-message-appended"
	PhaseAwaitingAnswer      SendPhase = "awaiting-answer"
	PhaseAnswerAppended      SendPhase = "answer-appended"
	PhaseFailed              SendPhase = "failed"
)

type sendAttempt struct {
	conversationID string
	phase          SendPhase
}
