package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxResponseBytes caps how much of a processor response is read.
const maxResponseBytes = 4 << 20

// ProcessorResponse is whatever status the processor answered with.
type ProcessorResponse struct {
	StatusCode int
	Body       []byte
}

// Processor submits a validated simulation to the external processor. An
// error means no status was received.
type Processor interface {
	Submit(ctx context.Context, payload Payload, credential string) (ProcessorResponse, error)
}

// HTTPProcessor posts simulations to a webhook.
type HTTPProcessor struct {
	client   *http.Client
	endpoint string
}

// NewHTTPProcessor validates endpoint; a nil client uses http.DefaultClient.
func NewHTTPProcessor(client *http.Client, endpoint string) (*HTTPProcessor, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid processor URL %q", endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProcessor{client: client, endpoint: endpoint}, nil
}

// Endpoint is the configured processor address.
func (p *HTTPProcessor) Endpoint() string {
	return p.endpoint
}

func (p *HTTPProcessor) Submit(ctx context.Context, payload Payload, credential string) (ProcessorResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ProcessorResponse{}, fmt.Errorf("encode simulation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ProcessorResponse{}, fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", credential)

	resp, err := p.client.Do(req)
	if err != nil {
		return ProcessorResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return ProcessorResponse{}, fmt.Errorf("read processor response: %w", err)
	}
	return ProcessorResponse{StatusCode: resp.StatusCode, Body: data}, nil
}
