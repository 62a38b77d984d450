package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nnecfa/payments/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeDaraja struct {
	t           *testing.T
	tokenCalls  atomic.Int32
	pushCalls   atomic.Int32
	queryCalls  atomic.Int32
	tokenStatus int
	expiresIn   any
	pushHandler func(w http.ResponseWriter, body map[string]any)
	queryStatus func(w http.ResponseWriter, body map[string]any)
}

func (f *fakeDaraja) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/oauth/v1/generate":
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.Equal(f.t, "key", user)
		assert.Equal(f.t, "secret", pass)
		assert.Equal(f.t, "client_credentials", r.URL.Query().Get("grant_type"))
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			json.NewEncoder(w).Encode(map[string]string{"errorCode": "400.008.01", "errorMessage": "Invalid Authentication passed"})
			return
		}
		expires := f.expiresIn
		if expires == nil {
			expires = "3599"
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": expires})
	case "/mpesa/stkpush/v1/processrequest":
		f.pushCalls.Add(1)
		assert.Equal(f.t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.pushHandler(w, body)
	case "/mpesa/stkpushquery/v1/query":
		f.queryCalls.Add(1)
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.queryStatus(w, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeDaraja) *Client {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.MpesaConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.com/api/v1/mpesa/callback",
		CallbackToken:  "tok123",
		Environment:    config.EnvironmentSandbox,
		BaseURL:        srv.URL,
	}
	return NewClient(cfg, Options{Now: func() time.Time { return fixedNow }})
}

func acceptedPush(w http.ResponseWriter, _ map[string]any) {
	json.NewEncoder(w).Encode(map[string]string{
		"MerchantRequestID":   "29115-34620561-1",
		"CheckoutRequestID":   "CO1",
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
		"CustomerMessage":     "Success. Request accepted for processing",
	})
}

func TestClient_RequestPush(t *testing.T) {
	t.Run("builds the signed payload and returns correlation ids", func(t *testing.T) {
		var captured map[string]any
		fake := &fakeDaraja{pushHandler: func(w http.ResponseWriter, body map[string]any) {
			captured = body
			acceptedPush(w, body)
		}}
		client := newTestClient(t, fake)

		resp, err := client.RequestPush(context.Background(), PushRequest{
			PhoneNumber:      "254712345678",
			Amount:           decimal.NewFromFloat(299.10),
			AccountReference: "ID123",
			TransactionDesc:  "Registration Payment",
		})
		require.NoError(t, err)
		assert.Equal(t, "CO1", resp.CheckoutRequestID)
		assert.Equal(t, "29115-34620561-1", resp.MerchantRequestID)

		// 09:30 UTC is 12:30 in Nairobi
		assert.Equal(t, "20240301123000", captured["Timestamp"])
		expectedPassword := base64.StdEncoding.EncodeToString([]byte("174379passkey20240301123000"))
		assert.Equal(t, expectedPassword, captured["Password"])
		assert.Equal(t, float64(300), captured["Amount"])
		assert.Equal(t, "254712345678", captured["PartyA"])
		assert.Equal(t, "174379", captured["PartyB"])
		assert.Equal(t, "CustomerPayBillOnline", captured["TransactionType"])
		assert.Equal(t, "https://example.com/api/v1/mpesa/callback/tok123", captured["CallBackURL"])
		assert.Equal(t, "ID123", captured["AccountReference"])
		assert.Equal(t, "Registration ", captured["TransactionDesc"])
	})

	t.Run("smallest unit is accepted", func(t *testing.T) {
		var captured map[string]any
		fake := &fakeDaraja{pushHandler: func(w http.ResponseWriter, body map[string]any) {
			captured = body
			acceptedPush(w, body)
		}}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.NewFromInt(1), AccountReference: "ID123"})
		require.NoError(t, err)
		assert.Equal(t, float64(1), captured["Amount"])
	})

	t.Run("zero amount never reaches the provider", func(t *testing.T) {
		fake := &fakeDaraja{pushHandler: acceptedPush}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.Zero, AccountReference: "ID123"})
		var pushErr *GatewayPushError
		require.True(t, errors.As(err, &pushErr))
		assert.Equal(t, "invalid_amount", pushErr.Code)
		assert.True(t, IsGatewayError(err))
		assert.Equal(t, int32(0), fake.tokenCalls.Load())
		assert.Equal(t, int32(0), fake.pushCalls.Load())
	})

	t.Run("provider error code surfaces as push error", func(t *testing.T) {
		fake := &fakeDaraja{pushHandler: func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"requestId": "r1", "errorCode": "400.002.02", "errorMessage": "Bad Request - Invalid Amount"})
		}}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.NewFromInt(300), AccountReference: "ID123"})
		var pushErr *GatewayPushError
		require.True(t, errors.As(err, &pushErr))
		assert.Equal(t, http.StatusBadRequest, pushErr.StatusCode)
		assert.Equal(t, "400.002.02", pushErr.Code)
		assert.Equal(t, "Bad Request - Invalid Amount", pushErr.Message)
		assert.Equal(t, int32(1), fake.pushCalls.Load())
	})

	t.Run("non zero response code is a push error", func(t *testing.T) {
		fake := &fakeDaraja{pushHandler: func(w http.ResponseWriter, _ map[string]any) {
			json.NewEncoder(w).Encode(map[string]string{"CheckoutRequestID": "CO1", "ResponseCode": "1", "ResponseDescription": "Rejected"})
		}}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.NewFromInt(300), AccountReference: "ID123"})
		var pushErr *GatewayPushError
		require.True(t, errors.As(err, &pushErr))
		assert.Equal(t, "1", pushErr.Code)
	})

	t.Run("unauthorized push invalidates the token without retrying", func(t *testing.T) {
		fake := &fakeDaraja{pushHandler: func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusUnauthorized)
		}}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.NewFromInt(300), AccountReference: "ID123"})
		var authErr *GatewayAuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, int32(1), fake.pushCalls.Load())

		_, ok := client.credentials.cached()
		assert.False(t, ok)
	})

	t.Run("token failure is an auth error", func(t *testing.T) {
		fake := &fakeDaraja{tokenStatus: http.StatusBadRequest, pushHandler: acceptedPush}
		client := newTestClient(t, fake)

		_, err := client.RequestPush(context.Background(), PushRequest{PhoneNumber: "254712345678", Amount: decimal.NewFromInt(300), AccountReference: "ID123"})
		var authErr *GatewayAuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
		assert.Equal(t, int32(0), fake.pushCalls.Load())
		assert.True(t, IsGatewayError(err))
	})
}

func TestClient_AccessToken(t *testing.T) {
	t.Run("token is cached across calls", func(t *testing.T) {
		fake := &fakeDaraja{expiresIn: 3599}
		client := newTestClient(t, fake)

		for i := 0; i < 3; i++ {
			token, err := client.AccessToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}
		assert.Equal(t, int32(1), fake.tokenCalls.Load())
	})

	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		fake := &fakeDaraja{}
		client := newTestClient(t, fake)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := client.AccessToken(context.Background())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, fake.tokenCalls.Load(), int32(2))
	})

	t.Run("token inside the refresh margin is refetched", func(t *testing.T) {
		fake := &fakeDaraja{expiresIn: "30"}
		client := newTestClient(t, fake)

		_, err := client.AccessToken(context.Background())
		require.NoError(t, err)
		_, err = client.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), fake.tokenCalls.Load())
	})
}

func TestClient_QueryStatus(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeDaraja{queryStatus: func(w http.ResponseWriter, body map[string]any) {
			assert.Equal(t, "CO1", body["CheckoutRequestID"])
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":      "0",
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "CO1",
				"ResultCode":        "0",
				"ResultDesc":        "The service request is processed successfully.",
			})
		}}
		client := newTestClient(t, fake)

		result, err := client.QueryStatus(context.Background(), "CO1")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Kind)
		assert.Equal(t, "0", result.ResultCode)
	})

	t.Run("cancelled by user is a failure", func(t *testing.T) {
		fake := &fakeDaraja{queryStatus: func(w http.ResponseWriter, _ map[string]any) {
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":      "0",
				"CheckoutRequestID": "CO1",
				"ResultCode":        "1032",
				"ResultDesc":        "Request cancelled by user",
			})
		}}
		client := newTestClient(t, fake)

		result, err := client.QueryStatus(context.Background(), "CO1")
		require.NoError(t, err)
		assert.Equal(t, StatusFailure, result.Kind)
		assert.Equal(t, "1032", result.ResultCode)
	})

	t.Run("still processing is pending", func(t *testing.T) {
		fake := &fakeDaraja{queryStatus: func(w http.ResponseWriter, _ map[string]any) {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"})
		}}
		client := newTestClient(t, fake)

		result, err := client.QueryStatus(context.Background(), "CO1")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, result.Kind)
	})

	t.Run("response missing result code is rejected", func(t *testing.T) {
		fake := &fakeDaraja{queryStatus: func(w http.ResponseWriter, _ map[string]any) {
			json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0", "CheckoutRequestID": "CO1"})
		}}
		client := newTestClient(t, fake)

		_, err := client.QueryStatus(context.Background(), "CO1")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("expired token is refreshed once", func(t *testing.T) {
		fake := &fakeDaraja{}
		fake.queryStatus = func(w http.ResponseWriter, _ map[string]any) {
			if fake.queryCalls.Load() == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0", "CheckoutRequestID": "CO1", "ResultCode": "0"})
		}
		client := newTestClient(t, fake)

		result, err := client.QueryStatus(context.Background(), "CO1")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Kind)
		assert.Equal(t, int32(2), fake.queryCalls.Load())
		assert.Equal(t, int32(2), fake.tokenCalls.Load())
	})
}
