package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	requestTimeout = 10 * time.Second
	// defaultCountryPrefix is prepended to numbers submitted without one.
	defaultCountryPrefix = "+976"
)

// Sender delivers a one-time code to a phone number. Implementations must
// return an error for any non-success outcome, including transport failures
// and timeouts; the caller treats all of them as delivery failure.
type Sender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// HTTPSender delivers codes through the provider's HTTP API.
type HTTPSender struct {
	client *http.Client
	apiURL string
	apiKey string
	from   string
	log    *zap.Logger
}

// NewHTTPSender creates a Sender backed by the SMS provider HTTP API.
func NewHTTPSender(apiURL, apiKey, from string, log *zap.Logger) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{Timeout: requestTimeout},
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		log:    log,
	}
}

// providerResult is one element of the provider's JSON array response.
type providerResult struct {
	Result       string `json:"Result"`
	ErrorMessage string `json:"ErrorMessage"`
}

// Send composes the confirmation message and submits it to the provider.
func (s *HTTPSender) Send(ctx context.Context, phoneNumber, code string) error {
	if s.apiURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}

	to := phoneNumber
	if !strings.HasPrefix(to, "+") {
		to = defaultCountryPrefix + to
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("text", fmt.Sprintf("%s is your confirmation code for VIOT", code))
	params.Set("to", to)
	params.Set("from", s.from)

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}

	var results []providerResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("empty sms response")
	}
	if results[0].Result != "SUCCESS" {
		s.log.Warn("sms delivery rejected",
			zap.String("to", MaskPhone(to)),
			zap.String("provider_error", results[0].ErrorMessage))
		return fmt.Errorf("sms provider rejected message: %s", results[0].ErrorMessage)
	}

	return nil
}

// MaskPhone masks a phone number for logging (e.g. +9******89).
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
