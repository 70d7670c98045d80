package job

import (
	"context"
	"fmt"
	"time"
)

const VerifyEmailName = "verify_email"

const (
	verifyEmailMaxAttempts = 3
	verifyEmailRetryDelay  = 30 * time.Second
)

// TokenIssuer creates verification tokens. Issuance may fail
// transiently; the worker's retry policy handles that.
type TokenIssuer interface {
	CreateToken(ctx context.Context, userID, identifier, purpose string) (string, error)
}

// Mailer delivers the verification mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AuditSink records terminal failures for operator follow-up.
type AuditSink interface {
	Record(ctx context.Context, event string, fields map[string]any)
}

// VerifyEmail issues an email-verification token for a user and mails
// it. Terminal failure leaves an audit record asking for manual
// intervention.
type VerifyEmail struct {
	Base

	userID string
	email  string

	tokens TokenIssuer
	mailer Mailer
	audit  AuditSink
}

// NewVerifyEmail validates the payload before the job can be stored:
// user_id and email must both be present non-empty strings.
func NewVerifyEmail(payload map[string]any, tokens TokenIssuer, mailer Mailer, audit AuditSink) (*VerifyEmail, error) {
	userID, err := stringField(VerifyEmailName, payload, "user_id")
	if err != nil {
		return nil, err
	}
	email, err := stringField(VerifyEmailName, payload, "email")
	if err != nil {
		return nil, err
	}

	return &VerifyEmail{
		Base:   NewBase(verifyEmailMaxAttempts, verifyEmailRetryDelay),
		userID: userID,
		email:  email,
		tokens: tokens,
		mailer: mailer,
		audit:  audit,
	}, nil
}

// VerifyEmailFactory adapts NewVerifyEmail to the registry, closing
// over the collaborators.
func VerifyEmailFactory(tokens TokenIssuer, mailer Mailer, audit AuditSink) Factory {
	return func(payload map[string]any) (Job, error) {
		return NewVerifyEmail(payload, tokens, mailer, audit)
	}
}

func (v *VerifyEmail) Name() string { return VerifyEmailName }

func (v *VerifyEmail) Payload() map[string]any {
	return map[string]any{
		"user_id": v.userID,
		"email":   v.email,
	}
}

func (v *VerifyEmail) Handle(ctx context.Context) error {
	token, err := v.tokens.CreateToken(ctx, v.userID, v.email, "email_verification")
	if err != nil {
		return fmt.Errorf("create verification token for user %s: %w", v.userID, err)
	}

	body := fmt.Sprintf("Use this token to verify your email address: %s", token)
	if err := v.mailer.Send(ctx, v.email, "Verify your email", body); err != nil {
		return fmt.Errorf("send verification mail to %s: %w", v.email, err)
	}
	return nil
}

func (v *VerifyEmail) Failed(ctx context.Context, jobErr error) {
	v.audit.Record(ctx, "verify_email.permanently_failed", map[string]any{
		"user_id":  v.userID,
		"email":    v.email,
		"error":    jobErr.Error(),
		"attempts": v.Attempts(),
		"action":   "manual intervention required",
	})
}

func stringField(jobName string, payload map[string]any, field string) (string, error) {
	raw, ok := payload[field]
	if !ok {
		return "", missingField(jobName, field)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &ValidationError{JobName: jobName, Field: field, Reason: "must be a non-empty string"}
	}
	return s, nil
}
