package mailer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

const defaultSendTimeout = 30 * time.Second

// Outbound is the transport-level view of one email to deliver.
type Outbound struct {
	Recipient   string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
}

// Attachment is an in-memory file attached to an outbound email.
type Attachment struct {
	FileName string
	Content  []byte
}

func (o Outbound) Validate() error {
	if strings.TrimSpace(o.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(o.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}

// Mailer attempts delivery of one email. Implementations return a SendError
// so callers can classify failures without rethrowing.
type Mailer interface {
	Send(ctx context.Context, out Outbound) error
}

// SMTPMailer delivers email over SMTP via gomail.
type SMTPMailer struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
}

func NewSMTPMailer(host string, port int, user, password, senderAddress, senderName string) (*SMTPMailer, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(senderAddress) == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if port <= 0 {
		port = 587
	}

	return &SMTPMailer{
		dialer:        gomail.NewDialer(host, port, user, password),
		senderAddress: senderAddress,
		senderName:    senderName,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, out Outbound) error {
	if m == nil || m.dialer == nil {
		return fmt.Errorf("mailer is not initialized")
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("invalid outbound email: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return &SendError{Message: "send canceled before dial", Transient: false, Cause: err}
	}

	msg := m.buildMessage(out)

	// gomail has no context support; run the dial in a goroutine and bound it
	// with the context so a hung SMTP server cannot stall a dispatch worker
	// forever.
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	timeout := defaultSendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return &SendError{Message: "smtp send failed", Transient: true, Cause: err}
		}
		return nil
	case <-ctx.Done():
		return &SendError{Message: "send canceled", Transient: false, Cause: ctx.Err()}
	case <-timer.C:
		return &SendError{Message: "smtp send timed out", Transient: true, Cause: context.DeadlineExceeded}
	}
}

func (m *SMTPMailer) buildMessage(out Outbound) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.senderAddress, m.senderName)
	msg.SetHeader("To", out.Recipient)
	msg.SetHeader("Subject", out.Subject)

	contentType := "text/plain"
	if out.HTML {
		contentType = "text/html"
	}
	msg.SetBody(contentType, out.Body)

	for _, attachment := range out.Attachments {
		content := attachment.Content
		msg.Attach(attachment.FileName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	return msg
}
