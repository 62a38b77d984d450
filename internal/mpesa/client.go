package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nnecfa/payments/internal/config"
	"github.com/shopspring/decimal"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionTypePayBill = "CustomerPayBillOnline"
	defaultTokenTTL        = 3599 * time.Second
	maxResponseBytes       = 1 << 20
	maxTransactionDescLen  = 13

	// invalidAmountCode marks a push refused locally, before any provider call.
	invalidAmountCode = "invalid_amount"
)

// Gateway is the provider surface the payment workflow depends on.
type Gateway interface {
	RequestPush(ctx context.Context, req PushRequest) (*PushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error)
}

// PushRequest is one STK push. Amount is ceiled to whole shillings.
type PushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
}

// PushResponse holds the correlation identifiers Daraja returns on acceptance.
type PushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID" validate:"required"`
	ResponseCode        string `json:"ResponseCode" validate:"required"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type Options struct {
	HTTPClient    *http.Client
	RefreshMargin time.Duration
	QueryTimeout  time.Duration
	Now           func() time.Time
}

// Client talks to the Daraja API. Each Client owns its credential cache.
type Client struct {
	cfg          *config.MpesaConfig
	httpClient   *http.Client
	credentials  *CredentialCache
	queryTimeout time.Duration
	now          func() time.Time
}

func NewClient(cfg *config.MpesaConfig, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = 60 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	credentials := NewCredentialCache(opts.RefreshMargin)
	credentials.now = opts.Now

	return &Client{
		cfg:          cfg,
		httpClient:   opts.HTTPClient,
		credentials:  credentials,
		queryTimeout: opts.QueryTimeout,
		now:          opts.Now,
	}
}

// AccessToken returns a bearer token, refreshing it when close to expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.credentials.Get(ctx, c.fetchToken)
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", 0, &GatewayAuthError{Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[MPESA] Token request failed: %v", err)
		return "", 0, &GatewayAuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", 0, &GatewayAuthError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		log.Printf("[MPESA] Token endpoint returned status %d: %s", resp.StatusCode, errResp.ErrorMessage)
		return "", 0, &GatewayAuthError{StatusCode: resp.StatusCode, Message: errResp.ErrorMessage}
	}

	var result struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   flexibleSeconds `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, &GatewayAuthError{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if result.AccessToken == "" {
		return "", 0, &GatewayAuthError{Err: fmt.Errorf("%w: empty access_token", ErrMalformedResponse)}
	}

	ttl := time.Duration(result.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	log.Printf("[MPESA] Obtained access token, expires in %s", ttl)
	return result.AccessToken, ttl, nil
}

// RequestPush sends an STK push. It is never retried here: a second push
// would put a second PIN prompt on the subscriber's phone.
func (c *Client) RequestPush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	amount := req.Amount.Ceil()
	if !amount.IsPositive() {
		return nil, &GatewayPushError{Code: invalidAmountCode, Message: "amount must be positive"}
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := Timestamp(c.now())
	desc := req.TransactionDesc
	if len(desc) > maxTransactionDescLen {
		desc = desc[:maxTransactionDescLen]
	}

	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   transactionTypePayBill,
		"Amount":            amount.IntPart(),
		"PartyA":            req.PhoneNumber,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackEndpoint(),
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   desc,
	}

	status, body, err := c.postJSON(ctx, pushPath, token, payload)
	if err != nil {
		return nil, &GatewayPushError{Err: err}
	}

	if status == http.StatusUnauthorized {
		c.credentials.Invalidate()
		return nil, &GatewayAuthError{StatusCode: status, Message: "token rejected by push endpoint"}
	}

	if status < 200 || status > 299 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		log.Printf("[MPESA] Push rejected: status=%d code=%s message=%s", status, errResp.ErrorCode, errResp.ErrorMessage)
		return nil, &GatewayPushError{StatusCode: status, Code: errResp.ErrorCode, Message: errResp.ErrorMessage}
	}

	var result PushResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &GatewayPushError{StatusCode: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if err := schema.Struct(&result); err != nil {
		return nil, &GatewayPushError{StatusCode: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if result.ResponseCode != "0" {
		return nil, &GatewayPushError{StatusCode: status, Code: result.ResponseCode, Message: result.ResponseDescription}
	}

	log.Printf("[MPESA] Push accepted: checkout=%s merchant=%s", result.CheckoutRequestID, result.MerchantRequestID)
	return &result, nil
}

// QueryStatus asks Daraja for the outcome of an earlier push. It is safe to
// retry; an expired token is refreshed once.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	result, err := c.queryStatus(ctx, checkoutRequestID)
	var authErr *GatewayAuthError
	if errors.As(err, &authErr) && authErr.StatusCode == http.StatusUnauthorized {
		c.credentials.Invalidate()
		result, err = c.queryStatus(ctx, checkoutRequestID)
	}
	return result, err
}

func (c *Client) queryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := Timestamp(c.now())
	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	status, body, err := c.postJSON(ctx, queryPath, token, payload)
	if err != nil {
		return nil, &GatewayQueryError{Err: err}
	}

	if status == http.StatusUnauthorized {
		return nil, &GatewayAuthError{StatusCode: status, Message: "token rejected by query endpoint"}
	}

	if status < 200 || status > 299 {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		if errResp.ErrorCode == pendingErrorCode {
			return &StatusResult{Kind: StatusPending, ResultDesc: errResp.ErrorMessage, CheckoutRequestID: checkoutRequestID}, nil
		}
		return nil, &GatewayQueryError{StatusCode: status, Code: errResp.ErrorCode, Message: errResp.ErrorMessage}
	}

	var q queryResponse
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, &GatewayQueryError{StatusCode: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if err := schema.Struct(&q); err != nil {
		return nil, &GatewayQueryError{StatusCode: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	result := q.toResult()
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[MPESA] POST %s failed: %v", path, err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}
