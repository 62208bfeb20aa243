package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFollowsWrappedChain(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch: %w", Wrap(base, CodeUnavailable, "bank unreachable"))

	assert.True(t, Is(err, CodeUnavailable))
	assert.False(t, Is(err, CodeInternal))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "fetch: bank unreachable: dial tcp: refused", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeTooManyRequests: http.StatusTooManyRequests,
		CodeBadGateway:      http.StatusBadGateway,
		CodeUnavailable:     http.StatusServiceUnavailable,
		CodeInternal:        http.StatusInternalServerError,
		Code("unknown"):     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %s", code)
	}
}
