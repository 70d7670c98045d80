package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrEmptyName     = errors.New("job: name must not be empty")
	ErrNilFactory    = errors.New("job: factory must not be nil")
	ErrDuplicateName = errors.New("job: name already registered")
	ErrUnknownName   = errors.New("job: unknown name")
)

// Factory builds a job of one concrete type from its payload fields,
// validating them. It is the only way a stored blob becomes a Job.
type Factory func(payload map[string]any) (Job, error)

// Registry maps job names to factories. Unknown names fail at decode
// time with a DecodeError rather than being dispatched dynamically.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for name. Registration problems are
// caller bugs and fail immediately.
func (r *Registry) Register(name string, f Factory) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if f == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for wiring code where a failure is fatal.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// envelope is the transport form of a job. The blob stored in the
// queue is exactly this, JSON-encoded.
type envelope struct {
	Name        string         `json:"name"`
	Payload     map[string]any `json:"payload"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	RetryDelay  int            `json:"retry_delay_seconds"`
}

// Encode serializes j into its transport blob.
func Encode(j Job) ([]byte, error) {
	env := envelope{
		Name:        j.Name(),
		Payload:     j.Payload(),
		Attempts:    j.Attempts(),
		MaxAttempts: j.MaxAttempts(),
		RetryDelay:  int(j.RetryDelay().Seconds()),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("job: encode %s: %w", j.Name(), err)
	}
	return data, nil
}

// Decode reverses Encode: the returned job reproduces name, payload,
// attempts, max attempts and retry delay exactly. Any failure is a
// *DecodeError and is terminal for the record that carried the blob.
func (r *Registry) Decode(data []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.Name == "" {
		return nil, &DecodeError{Err: errors.New("envelope has no name")}
	}

	r.mu.RLock()
	f, ok := r.factories[env.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &DecodeError{JobName: env.Name, Err: ErrUnknownName}
	}

	j, err := f(env.Payload)
	if err != nil {
		return nil, &DecodeError{JobName: env.Name, Err: err}
	}
	j.SetAttempts(env.Attempts)
	// A zero max_attempts means the envelope predates the policy
	// fields; keep the type's defaults in that case.
	if env.MaxAttempts > 0 {
		if p, ok := j.(policySetter); ok {
			p.setPolicy(env.MaxAttempts, time.Duration(env.RetryDelay)*time.Second)
		}
	}
	return j, nil
}

type policySetter interface {
	setPolicy(maxAttempts int, retryDelay time.Duration)
}
