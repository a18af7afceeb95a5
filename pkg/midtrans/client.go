package midtrans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cinerent/cinerent-backend/pkg/config"
	pkgerrors "github.com/cinerent/cinerent-backend/pkg/errors"
	"github.com/cinerent/cinerent-backend/pkg/logger"
)

const (
	chargePath        = "/v2/charge"
	paymentTypeBankTf = "bank_transfer"
	sandboxKeyPrefix  = "SB-"
)

var errServerKeyRequired = errors.New("midtrans server key is required")

// Client talks to the core API charge endpoint.
type Client struct {
	http      *resty.Client
	serverKey string
	sandbox   bool
}

// NewClient builds a resty client authenticated with the server key. Every
// request is bounded by cfg.Timeout on top of the caller's context.
func NewClient(ctx context.Context, cfg config.MidtransConfig, logg *logger.Logger) (*Client, error) {
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("midtrans base url is required")
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(serverKey, "").
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	sandbox := strings.HasPrefix(serverKey, sandboxKeyPrefix)
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"base_url": baseURL, "sandbox": sandbox}), "midtrans client initialized")
	}

	return &Client{http: httpClient, serverKey: serverKey, sandbox: sandbox}, nil
}

// ServerKey returns the secret shared with the gateway for notification signatures.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

// Sandbox reports whether the configured key belongs to the sandbox environment.
func (c *Client) Sandbox() bool {
	return c != nil && c.sandbox
}

// ChargeBankTransfer starts a bank_transfer charge. Any transport failure,
// non-2xx HTTP status or non-2xx status_code in the body is a dependency error.
func (c *Client) ChargeBankTransfer(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if c == nil || c.http == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "midtrans client not configured")
	}
	req.PaymentType = paymentTypeBankTf

	var (
		out     ChargeResponse
		failure errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post(chargePath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unreachable")
	}
	if resp.IsError() {
		return nil, gatewayError(resp.StatusCode(), failure.StatusCode, failure.StatusMessage)
	}
	if !successStatusCode(out.StatusCode) {
		return nil, gatewayError(resp.StatusCode(), out.StatusCode, out.StatusMessage)
	}
	return &out, nil
}

func successStatusCode(code string) bool {
	return strings.HasPrefix(strings.TrimSpace(code), "2")
}

func gatewayError(httpStatus int, statusCode, message string) error {
	if message == "" {
		message = http.StatusText(httpStatus)
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "payment gateway rejected charge").WithDetails(map[string]any{
		"http_status":    httpStatus,
		"status_code":    statusCode,
		"status_message": message,
	})
}

// Timeout exposes the configured per-request timeout.
func (c *Client) Timeout() time.Duration {
	if c == nil || c.http == nil {
		return 0
	}
	return c.http.GetClient().Timeout
}

// String avoids leaking the server key in logs.
func (c *Client) String() string {
	return fmt.Sprintf("midtrans.Client{sandbox:%v}", c.Sandbox())
}
