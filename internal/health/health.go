// Package health reports whether the receptionist can answer calls: the
// session store must respond and the upstream services must be configured.
// Deep checks also call each upstream once.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"yuzu/receptionist/internal/config"
)

type CheckResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.LatencyMs)
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Pinger is implemented by session stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	cfg   config.Config
	store Pinger
	httpc *http.Client

	// Upstream endpoints, overridable in tests.
	openAIBase string
	mapsBase   string
	twilioBase string
}

// NewChecker builds a checker; store may be nil for the in-memory backend.
func NewChecker(cfg config.Config, store Pinger) *Checker {
	openAIBase := cfg.OpenAI.BaseURL
	if openAIBase == "" {
		openAIBase = "https://api.openai.com/v1"
	}
	return &Checker{
		cfg:        cfg,
		store:      store,
		httpc:      &http.Client{Timeout: 5 * time.Second},
		openAIBase: strings.TrimRight(openAIBase, "/"),
		mapsBase:   strings.TrimRight(cfg.Maps.BaseURL, "/"),
		twilioBase: "https://api.twilio.com/2010-04-01",
	}
}

// Ready runs the cheap checks used by /readyz and the gRPC health service.
func (c *Checker) Ready(ctx context.Context) HealthStatus {
	return combine([]CheckResult{
		c.checkStore(ctx),
		configured("openai", c.cfg.OpenAI.APIKey != "", "OPENAI_API_KEY not set"),
		configured("maps", c.cfg.Maps.APIKey != "", "GOOGLE_MAPS_API_KEY not set"),
		c.checkTwilioConfig(),
	})
}

// Deep calls each upstream with its credentials.
func (c *Checker) Deep(ctx context.Context) HealthStatus {
	return combine([]CheckResult{
		c.checkStore(ctx),
		c.checkOpenAI(ctx),
		c.checkMaps(ctx),
		c.checkTwilio(ctx),
	})
}

func combine(checks []CheckResult) HealthStatus {
	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}
	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func configured(name string, ok bool, msg string) CheckResult {
	r := CheckResult{Name: name, OK: ok}
	if !ok {
		r.Error = msg
	}
	return r
}

func (c *Checker) checkTwilioConfig() CheckResult {
	switch {
	case c.cfg.Twilio.ValidateSignature && c.cfg.Twilio.AuthToken == "":
		return configured("twilio", false, "TWILIO_AUTH_TOKEN required for signature validation")
	case c.cfg.Directions.Delivery == "sms" && (c.cfg.Twilio.AccountSID == "" || c.cfg.Twilio.AuthToken == "" || c.cfg.Twilio.FromNumber == ""):
		return configured("twilio", false, "TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER required for sms delivery")
	}
	return configured("twilio", true, "")
}

func (c *Checker) checkStore(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "session_store", OK: true}
	if c.store != nil {
		if err := c.store.Ping(ctx); err != nil {
			result.OK = false
			result.Error = fmt.Sprintf("ping failed: %v", err)
		}
	}
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

func (c *Checker) checkOpenAI(ctx context.Context) CheckResult {
	if c.cfg.OpenAI.APIKey == "" {
		return configured("openai", false, "OPENAI_API_KEY not set")
	}
	return c.probe(ctx, "openai", c.openAIBase+"/models", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAI.APIKey)
	})
}

func (c *Checker) checkMaps(ctx context.Context) CheckResult {
	if c.cfg.Maps.APIKey == "" {
		return configured("maps", false, "GOOGLE_MAPS_API_KEY not set")
	}
	q := url.Values{}
	q.Set("address", c.cfg.Business.Destination)
	q.Set("key", c.cfg.Maps.APIKey)
	return c.probe(ctx, "maps", c.mapsBase+"/geocode/json?"+q.Encode(), nil)
}

func (c *Checker) checkTwilio(ctx context.Context) CheckResult {
	if c.cfg.Twilio.AccountSID == "" || c.cfg.Twilio.AuthToken == "" {
		return c.checkTwilioConfig()
	}
	u := fmt.Sprintf("%s/Accounts/%s.json", c.twilioBase, c.cfg.Twilio.AccountSID)
	return c.probe(ctx, "twilio", u, func(req *http.Request) {
		req.SetBasicAuth(c.cfg.Twilio.AccountSID, c.cfg.Twilio.AuthToken)
	})
}

func (c *Checker) probe(ctx context.Context, name, u string, decorate func(*http.Request)) CheckResult {
	start := time.Now()
	result := CheckResult{Name: name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}
	if decorate != nil {
		decorate(req)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.LatencyMs = time.Since(start).Milliseconds()
		return result
	}
	defer resp.Body.Close()
	result.LatencyMs = time.Since(start).Milliseconds()

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		result.Error = fmt.Sprintf("invalid credentials (%d)", resp.StatusCode)
		return result
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}
