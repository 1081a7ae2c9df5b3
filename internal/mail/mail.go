// Package mail is the boundary to the outbound email collaborator. Delivery
// reliability is out of scope here; implementations only hand the login
// link off.
package mail

import (
	"context"

	"go.uber.org/zap"
)

// Sender dispatches a passwordless login link to an email address.
type Sender interface {
	SendLoginLink(ctx context.Context, email, token string) error
}

// LogSender writes login links to the log instead of sending mail. It backs
// development and test environments.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendLoginLink(ctx context.Context, email, token string) error {
	s.logger.Info("login link dispatched",
		zap.String("email", email),
		zap.String("token", token),
	)
	return nil
}
