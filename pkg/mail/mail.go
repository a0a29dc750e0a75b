package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/haleycommerce/storefront-backend/pkg/config"
)

// Message is a fully-rendered outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Result carries provider metadata back to the delivery ledger.
type Result struct {
	ProviderMessageID string
}

// Transport sends a single message. Implementations must treat each call as
// one billable attempt; retries are the caller's responsibility.
type Transport interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// SendgridTransport delivers mail through the SendGrid v3 API.
type SendgridTransport struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendgridTransport builds the production mail transport.
func NewSendgridTransport(cfg config.SendgridConfig) (*SendgridTransport, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &SendgridTransport{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: from,
		fromName:  cfg.FromName,
	}, nil
}

// Send submits the message to SendGrid. A non-2xx response is an error so
// the ledger records the attempt as failed.
func (t *SendgridTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("mail transport not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("recipient is required")
	}

	from := sgmail.NewEmail(t.fromName, t.fromEmail)
	to := sgmail.NewEmail(msg.ToName, msg.To)
	email := sgmail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	resp, err := t.client.SendWithContext(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}

	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return &Result{ProviderMessageID: messageID}, nil
}
