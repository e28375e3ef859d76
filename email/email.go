// Package email sends the account emails: two-factor codes, links carrying
// one-time codes, and notices.
package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Sender is the outbound email collaborator used by the account flows.
type Sender interface {
	SendTwoFactorCode(ctx context.Context, to, code string) error
	SendPasswordReset(ctx context.Context, to, code string) error
	SendMagicLink(ctx context.Context, to, code string) error
	SendChangeEmail(ctx context.Context, newEmail, code string) error
	SendVerification(ctx context.Context, to, code string) error
	SendWelcome(ctx context.Context, to string) error
	SendNewUserNotification(ctx context.Context, admins []string, newUserEmail string) error
}

// Message is one rendered email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Transport delivers rendered messages.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Links builds the URLs embedded in emails. The front end owns these pages and
// posts the code back to the API.
type Links struct {
	baseURL string
}

func NewLinks(baseURL string) Links {
	return Links{baseURL: strings.TrimRight(baseURL, "/")}
}

func (l Links) build(path string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return l.baseURL + path + "?" + q.Encode()
}

func (l Links) ResetPassword(email, code string) string {
	return l.build("/reset-password", map[string]string{"email": email, "code": code})
}

func (l Links) MagicLink(email, code string) string {
	return l.build("/magic-link", map[string]string{"email": email, "code": code})
}

func (l Links) ConfirmEmailChange(newEmail, code string) string {
	return l.build("/confirm-email-change", map[string]string{"email": newEmail, "code": code})
}

func (l Links) VerifyEmail(email, code string) string {
	return l.build("/verify-email", map[string]string{"email": email, "code": code})
}

var _ Sender = (*TemplateSender)(nil)

// TemplateSender renders each email and hands it to a Transport.
type TemplateSender struct {
	transport Transport
	links     Links
	appName   string
}

func NewTemplateSender(transport Transport, links Links, appName string) (*TemplateSender, error) {
	if transport == nil {
		return nil, errors.New("[email.NewTemplateSender] transport is required")
	}
	return &TemplateSender{transport: transport, links: links, appName: appName}, nil
}

func (s *TemplateSender) send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return errors.New("no recipients")
	}
	err := s.transport.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s", s.appName, subject),
		Body:    body,
	})
	return errors.Wrapf(err, "[TemplateSender] send %q", subject)
}

func (s *TemplateSender) SendTwoFactorCode(ctx context.Context, to, code string) error {
	return s.send(ctx, []string{to}, "Your sign in code",
		fmt.Sprintf("Your sign in code is %s. It expires shortly; if you did not try to sign in, change your password.", code))
}

func (s *TemplateSender) SendPasswordReset(ctx context.Context, to, code string) error {
	return s.send(ctx, []string{to}, "Reset your password",
		fmt.Sprintf("Follow this link to choose a new password:\n\n%s\n", s.links.ResetPassword(to, code)))
}

func (s *TemplateSender) SendMagicLink(ctx context.Context, to, code string) error {
	return s.send(ctx, []string{to}, "Your sign in link",
		fmt.Sprintf("Follow this link to sign in. It can only be used once:\n\n%s\n", s.links.MagicLink(to, code)))
}

func (s *TemplateSender) SendChangeEmail(ctx context.Context, newEmail, code string) error {
	return s.send(ctx, []string{newEmail}, "Confirm your new email address",
		fmt.Sprintf("Follow this link to confirm %s as your new email address:\n\n%s\n", newEmail, s.links.ConfirmEmailChange(newEmail, code)))
}

func (s *TemplateSender) SendVerification(ctx context.Context, to, code string) error {
	return s.send(ctx, []string{to}, "Confirm your email address",
		fmt.Sprintf("Follow this link to confirm your email address:\n\n%s\n", s.links.VerifyEmail(to, code)))
}

func (s *TemplateSender) SendWelcome(ctx context.Context, to string) error {
	return s.send(ctx, []string{to}, "Welcome",
		fmt.Sprintf("Welcome to %s. Your account is ready.", s.appName))
}

func (s *TemplateSender) SendNewUserNotification(ctx context.Context, admins []string, newUserEmail string) error {
	if len(admins) == 0 {
		return nil
	}
	return s.send(ctx, admins, "New user registered",
		fmt.Sprintf("%s has registered.", newUserEmail))
}
