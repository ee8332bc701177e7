package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPGateway talks to the payout provider's transfer API. Credentials are
// channel/secret headers from env, matching the provider's API contract.
type HTTPGateway struct {
	baseURL    string
	channel    string
	secret     string
	httpClient *http.Client
}

func NewHTTPGateway() *HTTPGateway {
	baseURL := strings.TrimSpace(os.Getenv("PAYOUT_GATEWAY_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.sandbox.payout-gateway.example/v1"
	}

	timeout := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("PAYOUT_GATEWAY_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}

	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		channel:    os.Getenv("PAYOUT_GATEWAY_CHANNEL"),
		secret:     os.Getenv("PAYOUT_GATEWAY_SECRET"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transferResponse struct {
	Status     string `json:"status"`
	TransferId string `json:"transfer_id"`
	Message    string `json:"message"`
}

func (g *HTTPGateway) makeRequest(ctx context.Context, method, endpoint string, idempotencyKey string, payload interface{}) (*transferResponse, int, error) {
	if g.channel == "" || g.secret == "" {
		return nil, 0, errors.New("missing gateway credentials: set PAYOUT_GATEWAY_CHANNEL and PAYOUT_GATEWAY_SECRET")
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("channel", g.channel)
	req.Header.Set("secret", g.secret)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// Transport failure: the request may or may not have reached the
		// provider. Callers must not assume the transfer did not happen.
		return nil, 0, fmt.Errorf("%w: %v", ErrTransferAmbiguous, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to read response: %v", ErrTransferAmbiguous, err)
	}

	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("%w: gateway returned %d", ErrTransferAmbiguous, resp.StatusCode)
	}

	var parsed transferResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to parse response: %v", ErrTransferAmbiguous, err)
	}
	return &parsed, resp.StatusCode, nil
}

func (g *HTTPGateway) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	parsed, statusCode, err := g.makeRequest(ctx, http.MethodPost, "/transfers", req.IdempotencyKey, req)
	if err != nil {
		return nil, err
	}

	switch parsed.Status {
	case string(TransferStatusSucceeded), string(TransferStatusPending):
		return &TransferResult{
			TransferId: parsed.TransferId,
			Status:     TransferStatus(parsed.Status),
			Message:    parsed.Message,
		}, nil
	case string(TransferStatusFailed):
		return nil, fmt.Errorf("%w: %s", ErrTransferDeclined, parsed.Message)
	default:
		return nil, fmt.Errorf("%w: gateway returned status %q (http %d)", ErrTransferAmbiguous, parsed.Status, statusCode)
	}
}

func (g *HTTPGateway) TransferStatus(ctx context.Context, idempotencyKey string) (*TransferResult, error) {
	parsed, _, err := g.makeRequest(ctx, http.MethodGet, "/transfers/"+idempotencyKey, "", nil)
	if err != nil {
		return nil, err
	}

	switch parsed.Status {
	case string(TransferStatusSucceeded), string(TransferStatusFailed), string(TransferStatusPending):
		return &TransferResult{
			TransferId: parsed.TransferId,
			Status:     TransferStatus(parsed.Status),
			Message:    parsed.Message,
		}, nil
	default:
		return &TransferResult{Status: TransferStatusUnknown, Message: parsed.Message}, nil
	}
}
