// Package mail renders and delivers employee notifications.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"keepernest/internal/blob"
	"keepernest/internal/platform/logger"
)

// Driver names a delivery backend.
type Driver string

// Supported drivers.
const (
	DriverLog      Driver = "log"
	DriverOutbox   Driver = "outbox"
	DriverSendGrid Driver = "sendgrid"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message is a rendered mail ready for delivery.
type Message struct {
	From    Address   `json:"from"`
	To      []Address `json:"to"`
	Subject string    `json:"subject"`
	Text    string    `json:"text,omitempty"`
	HTML    string    `json:"html,omitempty"`
	// Category tags the message for provider analytics.
	Category string `json:"category,omitempty"`
}

// Validate checks the fields every driver needs.
func (m Message) Validate() error {
	var errs []error
	if strings.TrimSpace(m.From.Email) == "" {
		errs = append(errs, errors.New("from address required"))
	}
	if len(m.To) == 0 {
		errs = append(errs, errors.New("at least one recipient required"))
	}
	if strings.TrimSpace(m.Subject) == "" {
		errs = append(errs, errors.New("subject required"))
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.HTML) == "" {
		errs = append(errs, errors.New("text or html body required"))
	}
	return errors.Join(errs...)
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects a driver and the sender identity.
type Config struct {
	Driver    Driver         `yaml:"driver"`
	FromEmail string         `yaml:"from_email"`
	FromName  string         `yaml:"from_name"`
	SendGrid  SendGridConfig `yaml:"sendgrid"`
}

// Open builds the sender named by cfg. The outbox driver needs a blob store.
func Open(cfg Config, store blob.Store, log *logger.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", DriverLog:
		return NewLogSender(log), nil
	case DriverOutbox:
		if store == nil {
			return nil, errors.New("outbox mail driver requires a blob store")
		}
		return NewOutboxSender(store), nil
	case DriverSendGrid:
		s, err := NewSendGridSender(cfg.SendGrid, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender returns a sender logging through log. A nil log discards.
func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSender{log: log.With("component", "mail")}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.Email)
	}
	s.log.Info("mail not delivered (log driver)", "to", strings.Join(to, ","), "subject", msg.Subject, "sent_at", time.Now().UTC())
	return nil
}
