package simulation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func term(v int) *int {
	return &v
}

func validRequest() Request {
	return Request{
		UserID:        "u1",
		Amount:        amount(20_000_000),
		TermMonths:    term(48),
		MonthlyIncome: amount(5_000_000),
	}
}

func TestValidate_AcceptsValidRequest(t *testing.T) {
	assert.NoError(t, Validate(validRequest(), "Bearer token"))
}

func TestValidate_EachField(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Request)
		credential string
		field      string
		reason     string
	}{
		{"blank userId", func(r *Request) { r.UserID = "  " }, "Bearer t", FieldUserID, "userId is required"},
		{"missing amount", func(r *Request) { r.Amount = decimal.NullDecimal{} }, "Bearer t", FieldAmount, "amount is required"},
		{"amount too low", func(r *Request) { r.Amount = amount(500_000) }, "Bearer t", FieldAmount, "Amount out of range (1M - 50M)"},
		{"missing term", func(r *Request) { r.TermMonths = nil }, "Bearer t", FieldTermMonths, "termMonths is required"},
		{"term too long", func(r *Request) { r.TermMonths = term(72) }, "Bearer t", FieldTermMonths, "Term out of range (6-60 months)"},
		{"missing income", func(r *Request) { r.MonthlyIncome = decimal.NullDecimal{} }, "Bearer t", FieldMonthlyIncome, "monthlyIncome is required"},
		{"zero income", func(r *Request) { r.MonthlyIncome = amount(0) }, "Bearer t", FieldMonthlyIncome, "monthlyIncome must be greater than zero"},
		{"negative income", func(r *Request) { r.MonthlyIncome = amount(-1) }, "Bearer t", FieldMonthlyIncome, "monthlyIncome must be greater than zero"},
		{"blank credential", func(*Request) {}, " ", FieldCredential, "Authorization token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := Validate(req, tt.credential)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.reason, ve.Reason)
		})
	}
}

func TestValidate_ReportsFirstViolationInOrder(t *testing.T) {
	req := Request{
		UserID:        "u1",
		Amount:        amount(1),
		TermMonths:    term(1),
		MonthlyIncome: amount(0),
	}

	err := Validate(req, "")
	require.Error(t, err)
	assert.Equal(t, "Amount out of range (1M - 50M)", err.Error())

	req.Amount = amount(2_000_000)
	err = Validate(req, "")
	require.Error(t, err)
	assert.Equal(t, "Term out of range (6-60 months)", err.Error())

	req.TermMonths = term(12)
	err = Validate(req, "")
	require.Error(t, err)
	assert.Equal(t, "monthlyIncome must be greater than zero", err.Error())

	req.MonthlyIncome = amount(1)
	err = Validate(req, "")
	require.Error(t, err)
	assert.Equal(t, "Authorization token is required", err.Error())

	req.UserID = ""
	err = Validate(req, "")
	require.Error(t, err)
	assert.Equal(t, "userId is required", err.Error())
}

func TestValidate_Boundaries(t *testing.T) {
	t.Run("amount", func(t *testing.T) {
		for _, v := range []int64{1_000_000, 50_000_000} {
			req := validRequest()
			req.Amount = amount(v)
			assert.NoError(t, Validate(req, "Bearer t"), "amount %d", v)
		}
		for _, v := range []int64{999_999, 50_000_001} {
			req := validRequest()
			req.Amount = amount(v)
			err := Validate(req, "Bearer t")
			require.Error(t, err, "amount %d", v)
			assert.Contains(t, err.Error(), "Amount out of range")
		}
	})

	t.Run("fractional amount just under the floor", func(t *testing.T) {
		req := validRequest()
		req.Amount = decimal.NewNullDecimal(decimal.RequireFromString("999999.99"))
		assert.Error(t, Validate(req, "Bearer t"))
	})

	t.Run("term", func(t *testing.T) {
		for _, v := range []int{6, 60} {
			req := validRequest()
			req.TermMonths = term(v)
			assert.NoError(t, Validate(req, "Bearer t"), "term %d", v)
		}
		for _, v := range []int{5, 61} {
			req := validRequest()
			req.TermMonths = term(v)
			err := Validate(req, "Bearer t")
			require.Error(t, err, "term %d", v)
			assert.Contains(t, err.Error(), "Term out of range")
		}
	})
}
