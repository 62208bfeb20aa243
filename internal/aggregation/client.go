package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"lendgate/internal/banks"
)

// maxBodyBytes caps how much of a bank response is read.
const maxBodyBytes = 8 << 20

// maxErrorBodyBytes caps the error body kept for logs.
const maxErrorBodyBytes = 512

// Fetcher retrieves the applications of a user from one bank.
type Fetcher interface {
	FetchApplications(ctx context.Context, bank banks.Descriptor, userID, credential string) ([]Application, error)
}

// HTTPFetcher is the Fetcher backed by the banks' REST endpoints.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client; nil uses http.DefaultClient. Per-call timeouts
// come from the context, not the client.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// FetchApplications issues GET {base}/api/applications/user/{userID}. The
// credential is forwarded under the bank's auth header when present; an
// absent credential is left for the bank to judge.
func (f *HTTPFetcher) FetchApplications(ctx context.Context, bank banks.Descriptor, userID, credential string) ([]Application, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bank.ApplicationsURL(userID), nil)
	if err != nil {
		return nil, &UpstreamError{Category: ErrorUnavailable, Bank: bank.Code, Message: "build request", Underlying: err}
	}
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set(bank.AuthHeader, credential)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(bank.Code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, newStatusError(bank.Code, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var apps []Application
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&apps); err != nil {
		// An empty body is an empty list, as the banks' own clients treat it.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, classifyTransport(bank.Code, ctx.Err())
		}
		return nil, newBadDataError(bank.Code, err)
	}
	return apps, nil
}
