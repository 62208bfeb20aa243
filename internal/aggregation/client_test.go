package aggregation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendgate/internal/banks"
)

func bankAt(url string) banks.Descriptor {
	return banks.Descriptor{Name: "Bancolombia", Code: banks.Bancolombia, BaseURL: url, AuthHeader: "Authorization"}
}

func TestHTTPFetcher(t *testing.T) {
	t.Run("decodes application array", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/applications/user/user123", r.URL.Path)
			assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[{
				"id": 1,
				"status": "APPROVED",
				"applicationDate": "2025-01-10T10:00:00",
				"reviewDate": null,
				"approvalDate": "2025-01-12T09:30:00",
				"notes": "ok",
				"rejectionReason": null,
				"amount": 10000000.0,
				"createdAt": "2025-01-10T10:00:00",
				"updatedAt": "2025-01-12T09:30:00",
				"userId": "user123",
				"creditOfferId": 42,
				"userFullName": "Ana Pérez",
				"creditOfferDescription": "Libre inversión"
			}]`))
		}))
		defer srv.Close()

		apps, err := NewHTTPFetcher(srv.Client()).FetchApplications(context.Background(), bankAt(srv.URL), "user123", "Bearer valid-token")
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, int64(1), apps[0].ID)
		assert.Equal(t, StatusApproved, apps[0].Status)
		assert.Nil(t, apps[0].ReviewDate)
		require.NotNil(t, apps[0].Amount)
		assert.Equal(t, 10000000.0, *apps[0].Amount)
		require.NotNil(t, apps[0].CreditOfferID)
		assert.Equal(t, int64(42), *apps[0].CreditOfferID)
	})

	t.Run("absent credential sends no auth header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, present := r.Header["Authorization"]
			assert.False(t, present)
			_, _ = w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		apps, err := NewHTTPFetcher(srv.Client()).FetchApplications(context.Background(), bankAt(srv.URL), "user123", "")
		require.NoError(t, err)
		assert.Empty(t, apps)
	})

	t.Run("empty body is an empty list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		apps, err := NewHTTPFetcher(srv.Client()).FetchApplications(context.Background(), bankAt(srv.URL), "user123", "")
		require.NoError(t, err)
		assert.Empty(t, apps)
	})

	t.Run("non-2xx is upstream_status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "database error", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewHTTPFetcher(srv.Client()).FetchApplications(context.Background(), bankAt(srv.URL), "user123", "")
		require.Error(t, err)
		assert.Equal(t, ErrorUpstreamStatus, Category(err))
		assert.Contains(t, err.Error(), "500")
		assert.Contains(t, err.Error(), "database error")
	})

	t.Run("malformed body is bad_data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"an array"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPFetcher(srv.Client()).FetchApplications(context.Background(), bankAt(srv.URL), "user123", "")
		require.Error(t, err)
		assert.Equal(t, ErrorBadData, Category(err))
	})

	t.Run("deadline is timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewHTTPFetcher(srv.Client()).FetchApplications(ctx, bankAt(srv.URL), "user123", "")
		require.Error(t, err)
		assert.Equal(t, ErrorTimeout, Category(err))
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewHTTPFetcher(nil).FetchApplications(context.Background(), bankAt(url), "user123", "")
		require.Error(t, err)
		assert.Equal(t, ErrorUnavailable, Category(err))
	})
}

func TestEnvelopeJSONFlattensProvenance(t *testing.T) {
	env := wrap(banks.Descriptor{Name: "Davivienda", Code: banks.Davivienda}, []Application{{ID: 9, Status: StatusRejected, UserID: "u1"}})
	require.Len(t, env, 1)

	body, err := jsonMarshal(env[0])
	require.NoError(t, err)
	assert.Contains(t, body, `"bankName":"Davivienda"`)
	assert.Contains(t, body, `"bankCode":"DAVI"`)
	assert.Contains(t, body, `"id":9`)
	assert.Contains(t, body, `"status":"REJECTED"`)
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
