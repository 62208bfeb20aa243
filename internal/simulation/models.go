package simulation

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Request is a loan simulation as the caller submits it. Numeric fields are
// nullable so a missing field is reported as missing rather than as zero.
type Request struct {
	UserID        string              `json:"userId"`
	Amount        decimal.NullDecimal `json:"amount"`
	TermMonths    *int                `json:"termMonths"`
	MonthlyIncome decimal.NullDecimal `json:"monthlyIncome"`
}

// Payload is the body forwarded to the processor. Amounts go out as
// JSON numbers, the way the processor's webhook expects them.
type Payload struct {
	UserID        string      `json:"userId"`
	Amount        json.Number `json:"amount"`
	TermMonths    int         `json:"termMonths"`
	MonthlyIncome json.Number `json:"monthlyIncome"`
}

// NewPayload expects a request that passed Validate.
func NewPayload(req Request) Payload {
	return Payload{
		UserID:        req.UserID,
		Amount:        json.Number(req.Amount.Decimal.String()),
		TermMonths:    *req.TermMonths,
		MonthlyIncome: json.Number(req.MonthlyIncome.Decimal.String()),
	}
}

// State is where a simulation ended up.
type State string

const (
	// StateSucceeded: the processor answered 2xx with a JSON body.
	StateSucceeded State = "succeeded"
	// StateInvalid: the request broke a business rule and was not forwarded.
	StateInvalid State = "invalid"
	// StateRejected: the processor answered 4xx or 5xx.
	StateRejected State = "rejected"
	// StateFailed: the processor could not be reached or answered garbage.
	StateFailed State = "failed"
)

// Outcome is the result of Simulate. Exactly one of Body or Failure is set.
type Outcome struct {
	State State
	// Body is the processor's response, untouched.
	Body json.RawMessage
	// Failure describes every non-success state.
	Failure *Failure
}

// Succeeded reports whether the processor produced a usable response.
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Failure is the uniform failure descriptor.
type Failure struct {
	Message string
	Reason  string
	// Field names the first invalid field for StateInvalid.
	Field string
	// ProcessorStatus is the processor's HTTP status for StateRejected.
	ProcessorStatus int
}

// FailureBody is the wire shape shared by every failure.
type FailureBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// Body renders the failure for the wire.
func (f *Failure) Body() FailureBody {
	return FailureBody{Success: false, Message: f.Message, Reason: f.Reason}
}
