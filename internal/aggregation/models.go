package aggregation

import (
	"time"

	"lendgate/internal/banks"
)

// Status is the lifecycle state a bank reports for an application.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusCancelled   Status = "CANCELLED"
)

// Application is a credit application as a bank returns it. Timestamps are
// kept as the bank formats them (ISO-8601 local date-times) so they pass
// through untouched.
type Application struct {
	ID                     int64    `json:"id"`
	Status                 Status   `json:"status,omitempty"`
	ApplicationDate        *string  `json:"applicationDate"`
	ReviewDate             *string  `json:"reviewDate"`
	ApprovalDate           *string  `json:"approvalDate"`
	Notes                  *string  `json:"notes"`
	RejectionReason        *string  `json:"rejectionReason"`
	Amount                 *float64 `json:"amount"`
	CreatedAt              *string  `json:"createdAt"`
	UpdatedAt              *string  `json:"updatedAt"`
	UserID                 string   `json:"userId"`
	CreditOfferID          *int64   `json:"creditOfferId"`
	UserFullName           *string  `json:"userFullName"`
	CreditOfferDescription *string  `json:"creditOfferDescription"`
}

// Envelope is an Application tagged with the bank that produced it.
type Envelope struct {
	BankName string     `json:"bankName"`
	BankCode banks.Code `json:"bankCode"`
	Application
}

func wrap(bank banks.Descriptor, apps []Application) []Envelope {
	out := make([]Envelope, 0, len(apps))
	for _, app := range apps {
		out = append(out, Envelope{
			BankName:    bank.Name,
			BankCode:    bank.Code,
			Application: app,
		})
	}
	return out
}

// BankStatus reports how one bank contributed to an aggregation.
type BankStatus struct {
	Code     banks.Code
	Name     string
	Records  int
	Duration time.Duration
	Err      error
}

// OK reports whether the bank contributed successfully (possibly zero records).
func (s BankStatus) OK() bool {
	return s.Err == nil
}

// Result is the merged outcome of one FetchAll call. It is owned by the
// request that produced it.
type Result struct {
	Applications []Envelope
	Banks        []BankStatus
	// Cancelled is set when the caller went away before the merge. No
	// applications are returned in that case.
	Cancelled bool
}

// Failed lists the banks that contributed nothing because of an error, in
// declaration order.
func (r Result) Failed() []banks.Code {
	var failed []banks.Code
	for _, s := range r.Banks {
		if !s.OK() {
			failed = append(failed, s.Code)
		}
	}
	return failed
}

// CountByBank tallies merged applications per bank.
func (r Result) CountByBank() map[banks.Code]int {
	counts := make(map[banks.Code]int, len(r.Banks))
	for _, env := range r.Applications {
		counts[env.BankCode]++
	}
	return counts
}
