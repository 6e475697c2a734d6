// Package api talks to the card issuer's REST API. All amounts are in
// cents. Non-2xx answers with a parsed error body become validation errors;
// transport failures and 5xx answers are reported as retryable.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/secrets"
)

// Block-toggle error codes the issuer answers with status 405 when the
// wallet is already in the requested state.
const (
	CodeTokenAlreadyBlocked = "TOKEN_IS_ALREADY_BLOCKED"
	CodeTokenNotBlocked     = "TOKEN_IS_NOT_BLOCKED"
)

type CreateCustomerRequest struct {
	ExternalReference   string `json:"externalReference"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Street              string `json:"street"`
	HouseNumber         string `json:"houseNumber"`
	HouseNumberAddition string `json:"houseNumberAddition,omitempty"`
	PostalCode          string `json:"postalCode"`
	City                string `json:"city"`
	PhoneNumber         string `json:"phoneNumber"`
}

type CreateCustomerResponse struct {
	HolderID string `json:"holderId"`
}

type CreateWalletResponse struct {
	TokenCode    string `json:"tokenCode"`
	BalanceCents int64  `json:"balance"`
}

type CardData struct {
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Street              string `json:"street"`
	HouseNumber         string `json:"houseNumber"`
	HouseNumberAddition string `json:"houseNumberAddition,omitempty"`
	PostalCode          string `json:"postalCode"`
	City                string `json:"city"`
	PhoneNumber         string `json:"phoneNumber"`
	CoverLetterCode     string `json:"coverLetterCode,omitempty"`
}

type WalletDetailsResponse struct {
	TokenCode    string     `json:"tokenCode"`
	BalanceCents int64      `json:"balance"`
	Status       string     `json:"status"`
	LastUsedDate *time.Time `json:"lastUsedDate"`
}

// Client is the issuer API surface the orchestrator needs.
type Client interface {
	CreateCustomer(ctx context.Context, creds secrets.Credentials, req CreateCustomerRequest) (*CreateCustomerResponse, error)
	CreateWallet(ctx context.Context, creds secrets.Credentials, assetCode string, initialBalanceCents int64) (*CreateWalletResponse, error)
	LinkCustomerToWallet(ctx context.Context, creds secrets.Credentials, tokenCode, holderID string) error
	CreateDebitCard(ctx context.Context, creds secrets.Credentials, tokenCode string, card CardData) error
	LoadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error
	UnloadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error
	GetWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) (*WalletDetailsResponse, error)
	SetBlock(ctx context.Context, creds secrets.Credentials, tokenCode string, block bool) error
	ActivateWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) error
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

func (c *httpClient) CreateCustomer(ctx context.Context, creds secrets.Credentials, req CreateCustomerRequest) (*CreateCustomerResponse, error) {
	var resp CreateCustomerResponse
	if err := c.do(ctx, creds, http.MethodPost, "/customers", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) CreateWallet(ctx context.Context, creds secrets.Credentials, assetCode string, initialBalanceCents int64) (*CreateWalletResponse, error) {
	body := map[string]interface{}{
		"assetCode": assetCode,
	}
	if initialBalanceCents > 0 {
		body["balance"] = initialBalanceCents
	}
	var resp CreateWalletResponse
	if err := c.do(ctx, creds, http.MethodPost, "/wallets", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) LinkCustomerToWallet(ctx context.Context, creds secrets.Credentials, tokenCode, holderID string) error {
	body := map[string]string{"holderId": holderID}
	return c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+"/link-customer", body, nil)
}

func (c *httpClient) CreateDebitCard(ctx context.Context, creds secrets.Credentials, tokenCode string, card CardData) error {
	return c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+"/create-debit-card", card, nil)
}

func (c *httpClient) LoadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error {
	body := map[string]interface{}{
		"balance":   amountCents,
		"reference": reference,
		"saleId":    saleID,
	}
	return c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+"/load", body, nil)
}

func (c *httpClient) UnloadBalance(ctx context.Context, creds secrets.Credentials, tokenCode string, amountCents int64, reference, saleID string) error {
	body := map[string]interface{}{
		"balance":   amountCents,
		"reference": reference,
		"saleId":    saleID,
	}
	return c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+"/unload", body, nil)
}

func (c *httpClient) GetWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) (*WalletDetailsResponse, error) {
	var resp WalletDetailsResponse
	if err := c.do(ctx, creds, http.MethodGet, "/wallets/"+tokenCode, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) SetBlock(ctx context.Context, creds secrets.Credentials, tokenCode string, block bool) error {
	action := "/block"
	tolerated := CodeTokenAlreadyBlocked
	if !block {
		action = "/unblock"
		tolerated = CodeTokenNotBlocked
	}
	err := c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+action, nil, nil)
	if err == nil {
		return nil
	}
	// A 405 saying the wallet is already in the requested state counts as
	// applied.
	var validation *fsp.RemoteValidationError
	if errors.As(err, &validation) {
		for _, apiErr := range validation.Errors {
			if apiErr.Code == tolerated {
				return nil
			}
		}
	}
	return err
}

func (c *httpClient) ActivateWallet(ctx context.Context, creds secrets.Credentials, tokenCode string) error {
	return c.do(ctx, creds, http.MethodPost, "/wallets/"+tokenCode+"/activate", nil, nil)
}

func (c *httpClient) do(ctx context.Context, creds secrets.Credentials, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
		return parseValidationError(resp.StatusCode, raw)
	}
}

type errorEnvelope struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Field       string `json:"field"`
	} `json:"errors"`
}

func parseValidationError(status int, raw []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Errors) == 0 {
		return &fsp.RemoteValidationError{Errors: []fsp.APIError{{
			Code:        fmt.Sprintf("HTTP_%d", status),
			Description: strings.TrimSpace(string(raw)),
		}}}
	}
	apiErrors := make([]fsp.APIError, 0, len(envelope.Errors))
	for _, e := range envelope.Errors {
		apiErrors = append(apiErrors, fsp.APIError{
			Code:        e.Code,
			Description: e.Description,
			Field:       e.Field,
		})
	}
	return &fsp.RemoteValidationError{Errors: apiErrors}
}
