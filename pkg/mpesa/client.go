// Package mpesa is a small client for the Safaricom Daraja APIs used to
// collect payments: OAuth, Lipa Na M-Pesa Online (STK push) and STK status query.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ovenly/backend/pkg/config"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

const (
	DefaultBaseURL = "https://sandbox.safaricom.co.ke"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout        = "20060102150405"
	defaultTransactionType = "CustomerPayBillOnline"
	tokenRefreshSkew       = 60 * time.Second
	responseReadLimit      int64 = 4096
)

// Daraja timestamps are East Africa Time, which has no DST.
var nairobi = time.FixedZone("EAT", 3*60*60)

var errCredentialsRequired = errors.New("mpesa consumer key, secret, shortcode and passkey are required")

// Credentials identify the merchant to Daraja.
type Credentials struct {
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
}

// Client talks to Daraja. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Daraja base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithClock overrides the time source used for passwords and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Daraja client.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.ConsumerKey == "" || creds.ConsumerSecret == "" || creds.ShortCode == "" || creds.PassKey == "" {
		return nil, errCredentialsRequired
	}
	if creds.TransactionType == "" {
		creds.TransactionType = defaultTransactionType
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		creds:      creds,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewClientFromConfig builds a client from the service configuration.
func NewClientFromConfig(cfg config.MpesaConfig, opts ...Option) (*Client, error) {
	base := []Option{
		WithBaseURL(cfg.BaseURL),
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	return NewClient(Credentials{
		ConsumerKey:     cfg.ConsumerKey,
		ConsumerSecret:  cfg.ConsumerSecret,
		ShortCode:       cfg.ShortCode,
		PassKey:         cfg.PassKey,
		CallbackURL:     cfg.CallbackURL,
		TransactionType: cfg.TransactionType,
	}, append(base, opts...)...)
}

// STKPushRequest asks the customer's handset to authorize a payment.
type STKPushRequest struct {
	Amount           int64
	Phone            string
	AccountReference string
	Description      string
}

// STKPushResponse is Daraja's synchronous acceptance of a push.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKStatus is the outcome of a status query. Provider error bodies are
// decoded into ErrorCode/ErrorMessage rather than returned as errors.
type STKStatus struct {
	ResponseCode        string     `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	MerchantRequestID   string     `json:"MerchantRequestID"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResultCode          ResultCode `json:"ResultCode"`
	ResultDesc          string     `json:"ResultDesc"`
	ErrorCode           string     `json:"errorCode"`
	ErrorMessage        string     `json:"errorMessage"`
	HTTPStatus          int        `json:"-"`
}

// ProviderError reports an error body (bad token, throttling, gateway
// timeout, "still processing") instead of a transaction result. It says
// nothing about whether the customer paid.
func (s *STKStatus) ProviderError() bool {
	if s == nil || s.ResultCode.Valid {
		return false
	}
	if s.ErrorCode != "" || s.ErrorMessage != "" {
		return true
	}
	return s.HTTPStatus != 0 && s.HTTPStatus/100 != 2
}

type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKPush initiates a Lipa Na M-Pesa Online payment.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mpesa client not configured")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}

	password, timestamp := c.password()
	payload := map[string]any{
		"BusinessShortCode": c.creds.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   c.creds.TransactionType,
		"Amount":            req.Amount,
		"PartyA":            req.Phone,
		"PartyB":            c.creds.ShortCode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.creds.CallbackURL,
		"AccountReference":  truncate(req.AccountReference, 12),
		"TransactionDesc":   truncate(req.Description, 13),
	}

	status, body, err := c.post(ctx, stkPushPath, payload)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		var apiErr errorBody
		if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorMessage != "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "stk push rejected: %s", apiErr.ErrorMessage).
				WithDetails(map[string]any{"error_code": apiErr.ErrorCode})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body))), "stk push failed")
	}

	var resp STKPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stk push response")
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "stk push not accepted: %s", resp.ResponseDescription)
	}
	return &resp, nil
}

// QuerySTKStatus asks Daraja for the final state of a push session.
func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mpesa client not configured")
	}
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}

	password, timestamp := c.password()
	payload := map[string]any{
		"BusinessShortCode": c.creds.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	status, body, err := c.post(ctx, stkQueryPath, payload)
	if err != nil {
		return nil, err
	}

	var out STKStatus
	if decodeErr := json.Unmarshal(body, &out); decodeErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %w", status, decodeErr), "decode stk query response")
	}
	if status/100 != 2 && out.ErrorCode == "" && out.ErrorMessage == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", status), "stk query failed")
	}
	out.HTTPStatus = status
	return &out, nil
}

// password returns the Daraja password and the timestamp it was built from.
func (c *Client) password() (string, string) {
	timestamp := c.now().In(nairobi).Format(timestampLayout)
	raw := c.creds.ShortCode + c.creds.PassKey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mpesa request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mpesa request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mpesa request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read mpesa response")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return resp.StatusCode, body, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build token request")
	}
	req.SetBasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute token request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "token request failed")
	}

	var body struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "token response missing access_token")
	}

	ttl := time.Hour
	if secs, convErr := strconv.Atoi(strings.Trim(string(body.ExpiresIn), `" `)); convErr == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	c.token = body.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenRefreshSkew)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
