package email

import (
	"context"
	"errors"
	"net/smtp"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	messages []Message
	err      error
}

func (t *recordingTransport) Send(_ context.Context, msg Message) error {
	if t.err != nil {
		return t.err
	}
	t.messages = append(t.messages, msg)
	return nil
}

func TestLinks_EncodeEmailAndCode(t *testing.T) {
	links := NewLinks("https://app.example.com/")

	link := links.ResetPassword("a+b@example.com", "c0de/=")
	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/reset-password", u.Path)
	require.Equal(t, "a+b@example.com", u.Query().Get("email"))
	require.Equal(t, "c0de/=", u.Query().Get("code"))

	require.True(t, strings.HasPrefix(links.MagicLink("x@example.com", "c"), "https://app.example.com/magic-link?"))
	require.Contains(t, links.ConfirmEmailChange("new@example.com", "c"), "/confirm-email-change?")
	require.Contains(t, links.VerifyEmail("x@example.com", "c"), "/verify-email?")
}

func TestTemplateSender_RendersAndSends(t *testing.T) {
	transport := &recordingTransport{}
	sender, err := NewTemplateSender(transport, NewLinks("https://app.example.com"), "Identity")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sender.SendTwoFactorCode(ctx, "u@example.com", "123456"))
	require.NoError(t, sender.SendMagicLink(ctx, "u@example.com", "magic"))
	require.NoError(t, sender.SendChangeEmail(ctx, "new@example.com", "change"))
	require.NoError(t, sender.SendNewUserNotification(ctx, []string{"admin@example.com"}, "u@example.com"))

	require.Len(t, transport.messages, 4)
	require.Equal(t, []string{"u@example.com"}, transport.messages[0].To)
	require.Contains(t, transport.messages[0].Body, "123456")
	require.Equal(t, "[Identity] Your sign in code", transport.messages[0].Subject)
	require.Contains(t, transport.messages[1].Body, "code=magic")
	require.Equal(t, []string{"new@example.com"}, transport.messages[2].To)
	require.Equal(t, []string{"admin@example.com"}, transport.messages[3].To)
}

func TestTemplateSender_NoAdminsIsNoop(t *testing.T) {
	transport := &recordingTransport{}
	sender, err := NewTemplateSender(transport, NewLinks(""), "Identity")
	require.NoError(t, err)

	require.NoError(t, sender.SendNewUserNotification(context.Background(), nil, "u@example.com"))
	require.Empty(t, transport.messages)
}

func TestTemplateSender_WrapsTransportError(t *testing.T) {
	transport := &recordingTransport{err: errors.New("relay down")}
	sender, err := NewTemplateSender(transport, NewLinks(""), "Identity")
	require.NoError(t, err)

	err = sender.SendWelcome(context.Background(), "u@example.com")
	require.ErrorContains(t, err, "relay down")
}

func TestSMTPTransport_Send(t *testing.T) {
	transport, err := NewSMTPTransport("smtp.example.com", "587", "account@example.com", "secret", "")
	require.NoError(t, err)

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	transport.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err = transport.Send(context.Background(), Message{To: []string{"u@example.com"}, Subject: "Hi", Body: "line1\nline2"})
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, "account@example.com", gotFrom)
	require.Equal(t, []string{"u@example.com"}, gotTo)
	require.Contains(t, gotMsg, "Subject: Hi\r\n")
	require.Contains(t, gotMsg, "line1\r\nline2")
}

func TestSMTPTransport_RequiresHostAndSender(t *testing.T) {
	_, err := NewSMTPTransport("", "25", "", "", "")
	require.Error(t, err)

	_, err = NewSMTPTransport("smtp.example.com", "25", "", "", "")
	require.Error(t, err)
}

func TestSMTPTransport_CancelledContext(t *testing.T) {
	transport, err := NewSMTPTransport("smtp.example.com", "25", "", "", "noreply@example.com")
	require.NoError(t, err)
	transport.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, transport.Send(ctx, Message{To: []string{"u@example.com"}}), context.Canceled)
}
