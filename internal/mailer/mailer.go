// Package mailer delivers transactional email: verification codes and
// password-reset links. The Service owns issuance policy (per-user caps and
// code storage); actual delivery hides behind Sender so handlers and tests
// never talk SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"authd/internal/crypto"
	"authd/internal/kv"
)

// ErrTooManyCodes reports that the per-user issuance cap was reached inside
// the current counting window.
var ErrTooManyCodes = errors.New("verification code limit reached")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message. Implementations must honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay via gomail.
type SMTPSender struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
}

// NewSMTPSender builds a sender for the given relay.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer:  gomail.NewDialer(host, port, username, password),
		from:    from,
		timeout: 10 * time.Second,
	}
}

// Send dials and delivers one message. gomail has no context support, so the
// dial-and-send runs in a goroutine bounded by ctx and a fixed timeout; on
// timeout the goroutine is abandoned and its connection left to the OS.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-timer.C:
		return errors.New("smtp send: timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Service issues verification codes and reset emails.
type Service struct {
	sender    Sender
	store     *kv.Store
	codeLimit int
	baseURL   string
}

// NewService builds the mail service. codeLimit caps verification-code
// issuances per user per window; baseURL prefixes reset links.
func NewService(sender Sender, store *kv.Store, codeLimit int, baseURL string) *Service {
	return &Service{sender: sender, store: store, codeLimit: codeLimit, baseURL: baseURL}
}

// SendVerificationCode mints a fresh code for the user, stores it, and mails
// it. Each issuance overwrites the previous code and bumps the attempt
// counter; at the cap the call fails without generating or sending anything.
func (s *Service) SendVerificationCode(ctx context.Context, userID, email string) error {
	attempts, err := s.store.EmailVerificationAttempts(ctx, userID)
	if err != nil {
		return err
	}
	if attempts >= s.codeLimit {
		return ErrTooManyCodes
	}

	code, err := crypto.VerificationCode()
	if err != nil {
		return err
	}
	if err := s.store.PutEmailVerificationCode(ctx, userID, code); err != nil {
		return err
	}
	if err := s.store.SetEmailVerificationAttempts(ctx, userID, attempts+1); err != nil {
		return err
	}

	return s.sender.Send(ctx, Message{
		To:      email,
		Subject: "Verify your email address",
		Body: fmt.Sprintf(
			"<p>Your verification code is:</p><h2>%s</h2><p>It expires in 24 hours.</p>",
			code,
		),
	})
}

// SendPasswordReset mails a reset link carrying the single-purpose token.
// Request counting happens in the handler before the token is minted, so
// this method only formats and delivers.
func (s *Service) SendPasswordReset(ctx context.Context, email, resetToken string) error {
	return s.sender.Send(ctx, Message{
		To:      email,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"<p>We received a request to reset your password.</p>"+
				"<p><a href=\"%s/password-reset?token=%s\">Reset password</a></p>"+
				"<p>The link expires in 24 hours. If you did not request this, ignore this email.</p>",
			s.baseURL, resetToken,
		),
	})
}
