package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kudeepakh/farmqueue/internal/job"
	"github.com/kudeepakh/farmqueue/internal/metrics"
	"github.com/kudeepakh/farmqueue/internal/store"
)

type enqueueRequest struct {
	Name         string         `json:"name"`
	Payload      map[string]any `json:"payload"`
	DelaySeconds int            `json:"delay_seconds"`
}

func enqueueHandler(
	ctx context.Context,
	q store.Queue,
	registry *job.Registry,
	m *metrics.Metrics,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		if r.Method != http.MethodPost {
			http.Error(w, "only POST", http.StatusMethodNotAllowed)
			return
		}

		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.DelaySeconds < 0 {
			http.Error(w, "delay_seconds must be >= 0", http.StatusBadRequest)
			return
		}

		blob, err := EncodeForEnqueue(registry, req.Name, req.Payload)
		if err != nil {
			var verr *job.ValidationError
			if errors.As(err, &verr) || errors.Is(err, job.ErrUnknownName) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		id, err := q.Enqueue(r.Context(), blob, time.Duration(req.DelaySeconds)*time.Second)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		m.IncJobsSubmitted()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	})
}

// EncodeForEnqueue constructs the named job from payload, so bad
// payloads are rejected before anything is stored, and returns its
// transport blob.
func EncodeForEnqueue(registry *job.Registry, name string, payload map[string]any) ([]byte, error) {
	probe, err := json.Marshal(struct {
		Name    string         `json:"name"`
		Payload map[string]any `json:"payload"`
	}{Name: name, Payload: payload})
	if err != nil {
		return nil, err
	}

	j, err := registry.Decode(probe)
	if err != nil {
		var derr *job.DecodeError
		if errors.As(err, &derr) {
			return nil, derr.Err
		}
		return nil, err
	}
	return job.Encode(j)
}
