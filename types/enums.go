package types

type CompletionState string

const (
	StateReceived    CompletionState = "received"
	StateValidated   CompletionState = "validated"
	StateLedgered    CompletionState = "ledgered"
	StateUserUpdated CompletionState = "user_updated"
	StateCredited    CompletionState = "credited"
	StateDone        CompletionState = "done"
	StateRejected    CompletionState = "rejected"
	StateIgnored     CompletionState = "ignored"
	StateDuplicate   CompletionState = "duplicate"
)

// Outcome is the informational field returned to the provider with 200.
type Outcome string

const (
	OutcomeCredited     Outcome = "credited"
	OutcomeNoReferrer   Outcome = "no_referrer"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUserNotFound Outcome = "user_not_found"
)

const (
	StatusCompleted = "completed"
	StatusApproved  = "approved"
	StatusPaid      = "paid"
	StatusSuccess   = "success"
)

func IsCreditingStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusApproved, StatusPaid, StatusSuccess:
		return true
	default:
		return false
	}
}
