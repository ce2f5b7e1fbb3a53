package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Mailer is the outbound notification boundary. Delivery mechanics live
// behind it; the auth flows only hand over a recipient and a code.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, code string) error
	SendRecovery(ctx context.Context, email, code string) error
}

// LogMailer writes would-be emails to the log. It stands in for a real
// provider in development and in tests.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendConfirmation(ctx context.Context, email, code string) error {
	m.logger.Info("confirmation email",
		zap.String("email", email),
		zap.String("code", code))
	return nil
}

func (m *LogMailer) SendRecovery(ctx context.Context, email, code string) error {
	m.logger.Info("recovery email",
		zap.String("email", email),
		zap.String("code", code))
	return nil
}
