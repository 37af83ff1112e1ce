package mail

import (
	"context"

	"go.uber.org/zap"
)

type logMailer struct {
	log *zap.Logger
}

// NewLogMailer returns a mailer that writes messages to the log instead of
// delivering them. It stands in for SMTP during local development.
func NewLogMailer(log *zap.Logger) Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &logMailer{log: log}
}

func (m *logMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("outbound email (delivery disabled)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
