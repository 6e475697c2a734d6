// Package api talks to the voucher provider. Issue rejections come back in
// the response body with a result code, not an HTTP error, matching the
// provider's point-of-sale protocol.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/secrets"
)

// Provider result codes.
const (
	ResultOK = 0
)

type IssueResponse struct {
	ResultCode        int    `json:"resultCode"`
	ResultDescription string `json:"resultDescription"`
	TransactionID     string `json:"transactionId"`
	CardID            string `json:"cardId"`
	Pin               string `json:"pin"`
	BalanceCents      int64  `json:"balance"`
}

func (r *IssueResponse) OK() bool { return r.ResultCode == ResultOK }

type BalanceResponse struct {
	ResultCode   int   `json:"resultCode"`
	BalanceCents int64 `json:"balance"`
}

// Client is the voucher provider surface the orchestrator needs.
type Client interface {
	Issue(ctx context.Context, creds secrets.Credentials, amountCents, refPos int64) (*IssueResponse, error)
	GetBalance(ctx context.Context, creds secrets.Credentials, cardID, pin string) (int64, error)
	Cancel(ctx context.Context, creds secrets.Credentials, cardID, transactionID string) error
	CancelByRefPos(ctx context.Context, creds secrets.Credentials, refPos int64) error
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) Client {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) Issue(ctx context.Context, creds secrets.Credentials, amountCents, refPos int64) (*IssueResponse, error) {
	body := map[string]interface{}{
		"value":  amountCents,
		"refPos": refPos,
	}
	var resp IssueResponse
	if err := c.do(ctx, creds, "/issue", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) GetBalance(ctx context.Context, creds secrets.Credentials, cardID, pin string) (int64, error) {
	body := map[string]string{
		"cardId": cardID,
		"pin":    pin,
	}
	var resp BalanceResponse
	if err := c.do(ctx, creds, "/balance", body, &resp); err != nil {
		return 0, err
	}
	if resp.ResultCode != ResultOK {
		return 0, &fsp.RemoteValidationError{Errors: []fsp.APIError{{
			Code:        fmt.Sprintf("RESULT_%d", resp.ResultCode),
			Description: "balance request rejected",
			Field:       "cardId",
		}}}
	}
	return resp.BalanceCents, nil
}

func (c *httpClient) Cancel(ctx context.Context, creds secrets.Credentials, cardID, transactionID string) error {
	body := map[string]string{
		"cardId":        cardID,
		"transactionId": transactionID,
	}
	return c.do(ctx, creds, "/cancel", body, nil)
}

func (c *httpClient) CancelByRefPos(ctx context.Context, creds secrets.Credentials, refPos int64) error {
	body := map[string]int64{"refPos": refPos}
	return c.do(ctx, creds, "/cancel-by-refpos", body, nil)
}

func (c *httpClient) do(ctx context.Context, creds secrets.Credentials, path string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &fsp.RemoteUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &fsp.RemoteUnavailableError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode >= 500:
		return &fsp.RemoteUnavailableError{StatusCode: resp.StatusCode}
	default:
		return &fsp.RemoteValidationError{Errors: []fsp.APIError{{
			Code:        fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Description: strings.TrimSpace(string(raw)),
		}}}
	}
}
