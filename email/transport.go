package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var _ Transport = (*SMTPTransport)(nil)

// SMTPTransport delivers through an SMTP relay using PLAIN auth when an account is set.
type SMTPTransport struct {
	addr     string
	host     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(host, port, account, password, from string) (*SMTPTransport, error) {
	if host == "" {
		return nil, errors.New("[email.NewSMTPTransport] host is required")
	}
	if from == "" {
		from = account
	}
	if from == "" {
		return nil, errors.New("[email.NewSMTPTransport] from address is required")
	}
	t := &SMTPTransport{
		addr:     net.JoinHostPort(host, port),
		host:     host,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if account != "" {
		t.auth = smtp.PlainAuth("", account, password, host)
	}
	return t, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.sendMail(t.addr, t.auth, t.from, msg.To, t.render(msg)); err != nil {
		return errors.Wrap(err, "[SMTPTransport.Send] SendMail")
	}
	return nil
}

func (t *SMTPTransport) render(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", t.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

var _ Transport = (*LogTransport)(nil)

// LogTransport writes messages to the log instead of sending them. Used when no
// SMTP host is configured.
type LogTransport struct {
	logger zerolog.Logger
}

func NewLogTransport(logger zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("email")
	return nil
}
