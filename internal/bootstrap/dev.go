package bootstrap

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Development collaborators for the verify-email job. A real
// deployment swaps these for the token service and mail transport.

type devTokenIssuer struct{}

func (devTokenIssuer) CreateToken(ctx context.Context, userID, identifier, purpose string) (string, error) {
	return uuid.NewString(), nil
}

type logMailer struct {
	logger *log.Logger
}

func (m logMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Printf("mail to=%s subject=%q body=%q", to, subject, body)
	return nil
}

type logAuditSink struct {
	logger *log.Logger
}

func (a logAuditSink) Record(ctx context.Context, event string, fields map[string]any) {
	a.logger.Printf("audit event=%s fields=%v", event, fields)
}
