// Package callinfo resolves caller metadata for a live call from the
// telephony provider's REST API.
package callinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// Provider looks up metadata for one call by provider call ID.
type Provider interface {
	Lookup(ctx context.Context, callID string) (CallerInfo, error)
}

// CallerInfo is the metadata the bridge attaches to a call. Number and
// To are E.164 when the raw values parse as dialable numbers, otherwise
// the raw values (SIP callers, anonymous).
type CallerInfo struct {
	Number    string // caller
	To        string // dialed number
	Status    string
	Direction string
}

const defaultBaseURL = "https://api.twilio.com"

// Twilio resolves call metadata from the Twilio Calls resource.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	region     string
	httpClient *http.Client
}

// TwilioOption configures a Twilio provider.
type TwilioOption func(*Twilio)

// WithBaseURL overrides the API endpoint, for tests and regional
// Twilio deployments.
func WithBaseURL(u string) TwilioOption {
	return func(t *Twilio) { t.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TwilioOption {
	return func(t *Twilio) { t.httpClient = c }
}

// WithRegion sets the default region for parsing numbers that lack a
// country prefix. Defaults to US.
func WithRegion(region string) TwilioOption {
	return func(t *Twilio) { t.region = region }
}

// NewTwilio creates a provider authenticated with the account SID and
// auth token.
func NewTwilio(accountSID, authToken string, opts ...TwilioOption) *Twilio {
	t := &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		region:     "US",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type twilioCall struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// Lookup fetches the call resource and normalizes its numbers.
func (t *Twilio) Lookup(ctx context.Context, callID string) (CallerInfo, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		t.baseURL, url.PathEscape(t.accountSID), url.PathEscape(callID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CallerInfo{}, fmt.Errorf("callinfo: create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return CallerInfo{}, fmt.Errorf("callinfo: lookup %s: %w", callID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CallerInfo{}, fmt.Errorf("callinfo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CallerInfo{}, parseError(callID, body, resp.StatusCode)
	}

	var call twilioCall
	if err := json.Unmarshal(body, &call); err != nil {
		return CallerInfo{}, fmt.Errorf("callinfo: decode call %s: %w", callID, err)
	}
	return CallerInfo{
		Number:    t.normalize(call.From),
		To:        t.normalize(call.To),
		Status:    call.Status,
		Direction: call.Direction,
	}, nil
}

// normalize formats raw as E.164 when it parses as a valid number,
// falling back to the trimmed raw value.
func (t *Twilio) normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	num, err := phonenumbers.Parse(trimmed, t.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return trimmed
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func parseError(callID string, body []byte, httpStatus int) error {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("callinfo: lookup %s: %s (code %d, status %d)",
			callID, apiErr.Message, apiErr.Code, httpStatus)
	}
	return fmt.Errorf("callinfo: lookup %s: status %d: %s",
		callID, httpStatus, strings.TrimSpace(string(body)))
}

// Static returns fixed metadata. The simulator and tests use it in
// place of a live provider.
type Static struct {
	Info CallerInfo
}

func (s Static) Lookup(context.Context, string) (CallerInfo, error) {
	return s.Info, nil
}
