package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSSender delivers a text message. Implementations are best-effort; the
// dispatcher swallows their errors.
type SMSSender interface {
	Send(ctx context.Context, phone, text string) error
}

// HTTPSMSSender posts messages to an SMS gateway as JSON with a bearer key.
type HTTPSMSSender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSMSSender(url, apiKey string) *HTTPSMSSender {
	return &HTTPSMSSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(smsMessage{Phone: phone, Message: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSMS is used when no gateway is configured.
type NoopSMS struct{}

func (NoopSMS) Send(ctx context.Context, phone, text string) error { return nil }
