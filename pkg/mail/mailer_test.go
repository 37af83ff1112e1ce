package mail

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from    string
	rcpts   []string
	data    strings.Builder
	quitted bool
}

func (f *fakeSMTPClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error   { f.rcpts = append(f.rcpts, to); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}
func (f *fakeSMTPClient) Quit() error                     { f.quitted = true; return nil }
func (f *fakeSMTPClient) Close() error                    { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newTestMailer(client *fakeSMTPClient) *smtpMailer {
	return &smtpMailer{
		cfg: SMTPSettings{
			Enabled: true,
			Host:    "mail.example.com",
			Port:    587,
			From:    "noreply@example.com",
		},
		dialFn: func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
			server, _ := net.Pipe()
			return server, client, nil
		},
		authFn: func(smtpClient, SMTPSettings) error { return nil },
	}
}

func TestSendDeliversMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newTestMailer(client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"alice@example.com"},
		Subject: "Verify Your Email",
		Body:    "<p>hello</p>",
		HTML:    true,
	})
	require.NoError(t, err)

	require.Equal(t, "noreply@example.com", client.from)
	require.Equal(t, []string{"alice@example.com"}, client.rcpts)
	require.True(t, client.quitted)

	payload := client.data.String()
	require.Contains(t, payload, "Subject: Verify Your Email")
	require.Contains(t, payload, "Content-Type: text/html; charset=UTF-8")
	require.Contains(t, payload, "<p>hello</p>")
}

func TestSendRejectsWhenDisabled(t *testing.T) {
	mailer := &smtpMailer{cfg: SMTPSettings{Enabled: false}}

	err := mailer.Send(context.Background(), Message{To: []string{"a@b.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendRequiresRecipients(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newTestMailer(client)

	err := mailer.Send(context.Background(), Message{Subject: "no one"})
	require.Error(t, err)
}

func TestSendDeduplicatesRecipients(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newTestMailer(client)

	err := mailer.Send(context.Background(), Message{
		To: []string{"same@example.com", "same@example.com", " same@example.com "},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"same@example.com"}, client.rcpts)
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.Error(t, err)

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "mail.example.com", Port: 587})
	require.NoError(t, err)
}

func TestEscapeHeaderStripsNewlines(t *testing.T) {
	require.Equal(t, "a b c", escapeHeader("a\rb\nc"))
}
