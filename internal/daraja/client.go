// Package daraja talks to the Safaricom Daraja API for advisory transaction
// verification. Nothing here is load-bearing for the commit decision: a
// failed or slow verification logs a warning and the payment stands.
package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/telemetry"
)

// Verifier is the collaborator interface the engine consumes.
type Verifier interface {
	VerifyTransaction(ctx context.Context, txID string, amount decimal.Decimal, msisdn, shortcode string) bool
}

type Config struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	Initiator          string
	SecurityCredential string
}

type Client struct {
	cfg   Config
	cache TokenCache
	http  *http.Client
}

func NewClient(cfg Config, cache TokenCache) *Client {
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	return &Client{
		cfg:   cfg,
		cache: cache,
		http:  &http.Client{Timeout: 12 * time.Second},
	}
}

// Configured reports whether credentials are present; without them every
// verification is skipped.
func (c *Client) Configured() bool {
	return c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != ""
}

type oauthResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	if token, ok := c.cache.Get(ctx); ok {
		return token, nil
	}

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth returned status %d", resp.StatusCode)
	}

	var out oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("oauth response missing access_token")
	}

	expires, err := out.ExpiresIn.Int64()
	if err != nil || expires <= 0 {
		expires = 3600
	}
	// Refresh slightly before the provider-side expiry.
	ttl := time.Duration(expires)*time.Second - 30*time.Second
	if ttl <= 0 {
		ttl = time.Duration(expires) * time.Second
	}
	c.cache.Set(ctx, out.AccessToken, ttl)

	return out.AccessToken, nil
}

// VerifyTransaction queries the transaction status. Returns true only when
// the provider reports the transaction as completed; any failure (missing
// credentials, timeout, non-2xx) returns false and logs.
func (c *Client) VerifyTransaction(ctx context.Context, txID string, amount decimal.Decimal, msisdn, shortcode string) bool {
	if !c.Configured() {
		telemetry.Logger.Debug("daraja verification skipped, credentials not configured")
		return false
	}

	token, err := c.token(ctx)
	if err != nil {
		telemetry.Logger.Warn("daraja token fetch failed", zap.Error(err))
		return false
	}

	body := map[string]string{
		"CommandID":          "TransactionStatusQuery",
		"PartyA":             shortcode,
		"IdentifierType":     "4",
		"Remarks":            "verify",
		"Initiator":          c.cfg.Initiator,
		"SecurityCredential": c.cfg.SecurityCredential,
		"TransactionID":      txID,
		"Occasion":           "verify",
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/transactionstatus/v1/query", bytes.NewBuffer(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.Logger.Warn("daraja verify request failed",
			zap.String("transaction_id", txID), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		telemetry.Logger.Warn("daraja verify returned non-2xx",
			zap.String("transaction_id", txID), zap.Int("status", resp.StatusCode))
		return false
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	text := strings.ToLower(string(raw))
	for _, marker := range []string{"completed", "success", "accepted"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// NoopVerifier skips verification entirely.
type NoopVerifier struct{}

func (NoopVerifier) VerifyTransaction(ctx context.Context, txID string, amount decimal.Decimal, msisdn, shortcode string) bool {
	return false
}
