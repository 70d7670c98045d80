package job

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type echoJob struct {
	Base
	payload map[string]any
}

func (e *echoJob) Name() string                 { return "echo" }
func (e *echoJob) Payload() map[string]any      { return e.payload }
func (e *echoJob) Handle(context.Context) error { return nil }
func (e *echoJob) Failed(context.Context, error) {}

func echoFactory(maxAttempts int, retryDelay time.Duration) Factory {
	return func(payload map[string]any) (Job, error) {
		return &echoJob{
			Base:    NewBase(maxAttempts, retryDelay),
			payload: payload,
		}, nil
	}
}

func newEchoRegistry(t *testing.T) *Registry {
	t.Helper()

	r := NewRegistry()
	if err := r.Register("echo", echoFactory(5, 10*time.Second)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := newEchoRegistry(t)

	original := &echoJob{
		Base:    NewBase(3, 5*time.Second),
		payload: map[string]any{"user_id": "u-1", "email": "a@b.c"},
	}
	original.SetAttempts(2)

	blob, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	decoded, err := r.Decode(blob)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if decoded.Name() != original.Name() {
		t.Errorf("Name = %q, want %q", decoded.Name(), original.Name())
	}
	if !reflect.DeepEqual(decoded.Payload(), original.Payload()) {
		t.Errorf("Payload = %v, want %v", decoded.Payload(), original.Payload())
	}
	if decoded.Attempts() != 2 {
		t.Errorf("Attempts = %d, want 2", decoded.Attempts())
	}
	if decoded.MaxAttempts() != 3 {
		t.Errorf("MaxAttempts = %d, want 3", decoded.MaxAttempts())
	}
	if decoded.RetryDelay() != 5*time.Second {
		t.Errorf("RetryDelay = %s, want 5s", decoded.RetryDelay())
	}
}

func TestDecodeUnknownName(t *testing.T) {
	r := newEchoRegistry(t)

	blob := []byte(`{"name":"no_such_job","payload":{},"attempts":0,"max_attempts":3,"retry_delay_seconds":1}`)
	_, err := r.Decode(blob)

	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Decode() error = %v, want *DecodeError", err)
	}
	if !errors.Is(err, ErrUnknownName) {
		t.Errorf("Decode() error = %v, want ErrUnknownName", err)
	}
}

func TestDecodeCorruptBlob(t *testing.T) {
	r := newEchoRegistry(t)

	for name, blob := range map[string][]byte{
		"not json": []byte("{{{"),
		"no name":  []byte(`{"payload":{}}`),
	} {
		var derr *DecodeError
		if _, err := r.Decode(blob); !errors.As(err, &derr) {
			t.Errorf("%s: Decode() error = %v, want *DecodeError", name, err)
		}
	}
}

func TestDecodeFactoryValidation(t *testing.T) {
	r := NewRegistry()
	wantErr := &ValidationError{JobName: "strict", Field: "x", Reason: "is required"}
	r.MustRegister("strict", func(payload map[string]any) (Job, error) {
		return nil, wantErr
	})

	_, err := r.Decode([]byte(`{"name":"strict","payload":{}}`))

	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("Decode() error = %v, want *DecodeError", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Decode() error does not wrap the validation error: %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("", echoFactory(1, 0)); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Register(blank) = %v, want ErrEmptyName", err)
	}
	if err := r.Register("echo", nil); !errors.Is(err, ErrNilFactory) {
		t.Errorf("Register(nil factory) = %v, want ErrNilFactory", err)
	}
	if err := r.Register("echo", echoFactory(1, 0)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := r.Register("echo", echoFactory(1, 0)); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Register(duplicate) = %v, want ErrDuplicateName", err)
	}
}

func TestDecodeKeepsTypeDefaultsWithoutPolicyFields(t *testing.T) {
	r := newEchoRegistry(t)

	decoded, err := r.Decode([]byte(`{"name":"echo","payload":{"k":"v"}}`))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if decoded.MaxAttempts() != 5 {
		t.Errorf("MaxAttempts = %d, want factory default 5", decoded.MaxAttempts())
	}
	if decoded.RetryDelay() != 10*time.Second {
		t.Errorf("RetryDelay = %s, want factory default 10s", decoded.RetryDelay())
	}
}
