// Package sms sends text messages through the Twilio Messages API.
package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	twilio "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"yuzu/receptionist/internal/upstream"
)

const service = "sms"

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type Client struct {
	api  messageCreator
	from string
}

// NewClient returns a client whose requests are bounded by timeout at the
// HTTP layer; zero keeps the library default.
func NewClient(accountSID, authToken, from string, timeout time.Duration) *Client {
	var api messageCreator
	if accountSID != "" && authToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		if timeout > 0 {
			rest.SetTimeout(timeout)
		}
		api = rest.Api
	}
	return &Client{api: api, from: from}
}

// Send delivers body to the given number and returns the message sid.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	if c.api == nil || c.from == "" {
		return "", upstream.New(service, upstream.KindConfig, fmt.Errorf("twilio credentials or from number missing"))
	}
	if to == "" {
		return "", upstream.New(service, upstream.KindRejected, fmt.Errorf("no destination number"))
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	// The Messages API takes no context; only a caller that has already
	// given up is honoured here.
	if err := ctx.Err(); err != nil {
		return "", upstream.New(service, upstream.KindUnavailable, err)
	}
	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return "", classify(err)
	}
	if msg == nil || msg.Sid == nil {
		return "", nil
	}
	return *msg.Sid, nil
}

func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return upstream.New(service, upstream.FromStatus(restErr.Status), err)
	}
	return upstream.New(service, upstream.KindUnavailable, err)
}
