package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("PAYOUT_GATEWAY_BASE_URL", srv.URL)
	t.Setenv("PAYOUT_GATEWAY_CHANNEL", "test-channel")
	t.Setenv("PAYOUT_GATEWAY_SECRET", "test-secret")
	return NewHTTPGateway()
}

func testRequest() TransferRequest {
	return TransferRequest{
		IdempotencyKey:     "batch-abc",
		Amount:             decimal.RequireFromString("12.34"),
		Currency:           "USD",
		DestinationKind:    "bank",
		DestinationAddress: "acct:user-1",
	}
}

func TestSubmitTransfer_Succeeded(t *testing.T) {
	var gotIdemKey, gotChannel string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotIdemKey = r.Header.Get("Idempotency-Key")
		gotChannel = r.Header.Get("channel")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transfers", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"succeeded","transfer_id":"tr-55"}`))
	})

	result, err := g.SubmitTransfer(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "tr-55", result.TransferId)
	require.Equal(t, TransferStatusSucceeded, result.Status)
	require.Equal(t, "batch-abc", gotIdemKey)
	require.Equal(t, "test-channel", gotChannel)
}

func TestSubmitTransfer_Declined(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"status":"failed","message":"destination account closed"}`))
	})

	_, err := g.SubmitTransfer(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransferDeclined)
	require.NotErrorIs(t, err, ErrTransferAmbiguous)
}

func TestSubmitTransfer_ServerErrorIsAmbiguous(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := g.SubmitTransfer(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransferAmbiguous)
}

func TestSubmitTransfer_TransportErrorIsAmbiguous(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	// Point at a closed server to force a connection error.
	g.baseURL = "http://127.0.0.1:1"

	_, err := g.SubmitTransfer(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransferAmbiguous)
}

func TestSubmitTransfer_GarbageResponseIsAmbiguous(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := g.SubmitTransfer(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransferAmbiguous)
}

func TestSubmitTransfer_MissingCredentials(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	g.channel = ""

	_, err := g.SubmitTransfer(context.Background(), testRequest())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrTransferAmbiguous)
}

func TestTransferStatus_KnownAndUnknown(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/transfers/batch-done":
			w.Write([]byte(`{"status":"succeeded","transfer_id":"tr-9"}`))
		case "/transfers/batch-odd":
			w.Write([]byte(`{"status":"reviewing"}`))
		default:
			w.Write([]byte(`{"status":"pending"}`))
		}
	})

	result, err := g.TransferStatus(context.Background(), "batch-done")
	require.NoError(t, err)
	require.Equal(t, TransferStatusSucceeded, result.Status)
	require.Equal(t, "tr-9", result.TransferId)

	result, err = g.TransferStatus(context.Background(), "batch-odd")
	require.NoError(t, err)
	require.Equal(t, TransferStatusUnknown, result.Status)

	result, err = g.TransferStatus(context.Background(), "batch-wip")
	require.NoError(t, err)
	require.Equal(t, TransferStatusPending, result.Status)
}
