package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient send error", err: &SendError{Message: "smtp send failed", Transient: true}, want: true},
		{name: "permanent send error", err: &SendError{Message: "send canceled", Transient: false}, want: false},
		{name: "wrapped transient", err: fmt.Errorf("dispatch: %w", &SendError{Transient: true}), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendErrorMessage(t *testing.T) {
	t.Parallel()

	err := &SendError{Message: "smtp send failed", Cause: errors.New("connection refused")}
	msg := err.Error()
	if !strings.Contains(msg, "smtp send failed") {
		t.Fatalf("Error() = %q, want smtp message included", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Fatalf("Error() = %q, want cause included", msg)
	}

	if !errors.Is(err, err.Cause) {
		t.Fatal("SendError should unwrap to its cause")
	}
}

func TestOutboundValidate(t *testing.T) {
	t.Parallel()

	valid := Outbound{Recipient: "a@example.com", Subject: "hi", Body: "hello"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := (Outbound{Subject: "hi"}).Validate(); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if err := (Outbound{Recipient: "a@example.com"}).Validate(); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestSMTPMailerConstruction(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPMailer("", 587, "", "", "noreply@example.com", ""); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPMailer("smtp.example.com", 587, "", "", "", ""); err == nil {
		t.Fatal("expected error for missing sender address")
	}

	m, err := NewSMTPMailer("smtp.example.com", 0, "user", "pass", "noreply@example.com", "Student Records")
	if err != nil {
		t.Fatalf("NewSMTPMailer() error = %v", err)
	}
	if m.dialer.Port != 587 {
		t.Fatalf("port = %d, want default 587", m.dialer.Port)
	}
}

func TestSMTPMailerSendCanceledContext(t *testing.T) {
	t.Parallel()

	m, err := NewSMTPMailer("smtp.example.com", 587, "", "", "noreply@example.com", "")
	if err != nil {
		t.Fatalf("NewSMTPMailer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sendErr := m.Send(ctx, Outbound{Recipient: "a@example.com", Subject: "hi", Body: "x"})
	if sendErr == nil {
		t.Fatal("expected error for canceled context")
	}
	if IsTransient(sendErr) {
		t.Fatal("canceled send should not be transient")
	}
}
