package simulation

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	MinAmount = decimal.NewFromInt(1_000_000)
	MaxAmount = decimal.NewFromInt(50_000_000)
)

const (
	MinTermMonths = 6
	MaxTermMonths = 60
)

// Field names as they appear on the wire.
const (
	FieldUserID        = "userId"
	FieldAmount        = "amount"
	FieldTermMonths    = "termMonths"
	FieldMonthlyIncome = "monthlyIncome"
	FieldCredential    = "Authorization"
)

// ValidationError names the first rule a request broke.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks, in order, userId, amount, termMonths, monthlyIncome and
// the credential, and stops at the first violation.
func Validate(req Request, credential string) error {
	if strings.TrimSpace(req.UserID) == "" {
		return &ValidationError{Field: FieldUserID, Reason: "userId is required"}
	}

	if !req.Amount.Valid {
		return &ValidationError{Field: FieldAmount, Reason: "amount is required"}
	}
	if req.Amount.Decimal.LessThan(MinAmount) || req.Amount.Decimal.GreaterThan(MaxAmount) {
		return &ValidationError{Field: FieldAmount, Reason: "Amount out of range (1M - 50M)"}
	}

	if req.TermMonths == nil {
		return &ValidationError{Field: FieldTermMonths, Reason: "termMonths is required"}
	}
	if *req.TermMonths < MinTermMonths || *req.TermMonths > MaxTermMonths {
		return &ValidationError{Field: FieldTermMonths, Reason: "Term out of range (6-60 months)"}
	}

	if !req.MonthlyIncome.Valid {
		return &ValidationError{Field: FieldMonthlyIncome, Reason: "monthlyIncome is required"}
	}
	if !req.MonthlyIncome.Decimal.IsPositive() {
		return &ValidationError{Field: FieldMonthlyIncome, Reason: "monthlyIncome must be greater than zero"}
	}

	if strings.TrimSpace(credential) == "" {
		return &ValidationError{Field: FieldCredential, Reason: "Authorization token is required"}
	}
	return nil
}
