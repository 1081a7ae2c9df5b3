// Package service implements the auth flows: sessions, passwordless login,
// the OAuth2/OIDC authorization server, and SSO handoff.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "appsqa-auth/service"

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}

func audit(logger *zap.Logger, event string, fields ...zap.Field) {
	if logger == nil {
		logger = zap.L()
	}
	logger.Info(event, fields...)
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
