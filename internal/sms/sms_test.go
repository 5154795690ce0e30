package sms

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"yuzu/receptionist/internal/upstream"
)

type fakeCreator struct {
	calls []*openapi.CreateMessageParams
	err   error
}

func (f *fakeCreator) CreateMessage(p *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestSend(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, from: "+18435550100"}

	sid, err := c.Send(context.Background(), "+18435550199", "Directions: https://maps")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("sid = %q", sid)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(fake.calls))
	}
	p := fake.calls[0]
	if *p.To != "+18435550199" || *p.From != "+18435550100" || *p.Body != "Directions: https://maps" {
		t.Fatalf("unexpected params: to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestSendClassifiesRestErrors(t *testing.T) {
	fake := &fakeCreator{err: &twclient.TwilioRestError{Status: 400, Code: 21211, Message: "invalid To"}}
	c := &Client{api: fake, from: "+18435550100"}
	_, err := c.Send(context.Background(), "+1", "x")
	if upstream.KindOf(err) != upstream.KindRejected {
		t.Fatalf("want rejected, got %v", err)
	}
}

func TestSendWithoutCredentials(t *testing.T) {
	c := NewClient("", "", "", 0)
	_, err := c.Send(context.Background(), "+18435550199", "x")
	if upstream.KindOf(err) != upstream.KindConfig {
		t.Fatalf("want config, got %v", err)
	}
}

func TestSendSkipsCanceledContext(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, from: "+18435550100"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, "+18435550199", "x")
	if upstream.KindOf(err) != upstream.KindUnavailable {
		t.Fatalf("want unavailable, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("no request expected after cancel, got %d", len(fake.calls))
	}
}

func TestSendClassifiesTransportTimeout(t *testing.T) {
	timeout := &url.Error{Op: "Post", URL: "https://api.twilio.com", Err: errors.New("context deadline exceeded (Client.Timeout exceeded while awaiting headers)")}
	fake := &fakeCreator{err: timeout}
	c := &Client{api: fake, from: "+18435550100"}

	_, err := c.Send(context.Background(), "+18435550199", "x")
	if upstream.KindOf(err) != upstream.KindUnavailable {
		t.Fatalf("want unavailable, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected the request to complete synchronously, got %d calls", len(fake.calls))
	}
}

func TestNewClientWithTimeout(t *testing.T) {
	c := NewClient("AC123", "token", "+18435550100", 3*time.Second)
	if c.api == nil {
		t.Fatalf("expected a configured api client")
	}
}
