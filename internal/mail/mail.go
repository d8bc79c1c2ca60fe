// Package mail sends transactional mail (password recovery) through SparkPost, AWS SES or the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRecipient is returned when a message has no recipient address.
var ErrNoRecipient = errors.New("mail: no recipient")

// Message is a plain-text mail.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
}

// Validate checks the message can be sent.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if m.Subject == "" {
		return fmt.Errorf("mail: empty subject")
	}
	return nil
}

// Sender delivers a message. Implementations honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
