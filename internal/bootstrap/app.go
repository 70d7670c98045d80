package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kudeepakh/farmqueue/internal/job"
	"github.com/kudeepakh/farmqueue/internal/metrics"
	"github.com/kudeepakh/farmqueue/internal/store"
	"github.com/kudeepakh/farmqueue/internal/worker"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Config wires one worker process.
type Config struct {
	Driver string // postgres, sqlite or memory
	DSN    string

	Workers  int
	HTTPAddr string // empty disables the HTTP surface

	VisibilityTimeout time.Duration

	Worker worker.Config
}

// OpenQueue builds the queue store named by cfg.Driver and ensures
// its schema.
func OpenQueue(ctx context.Context, cfg Config) (store.Queue, func(), error) {
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}

	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(store.WithVisibilityTimeout(cfg.VisibilityTimeout)), func() {}, nil

	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %q: %w", cfg.DSN, err)
		}
		s := store.NewSQLiteStore(db, cfg.VisibilityTimeout)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil

	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		s := store.NewPostgresStore(db, cfg.VisibilityTimeout)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

// DefaultRegistry returns the registry of job types this process can
// execute, with development collaborators behind the email job.
func DefaultRegistry(logger *log.Logger) *job.Registry {
	r := job.NewRegistry()
	r.MustRegister(job.VerifyEmailName, job.VerifyEmailFactory(
		devTokenIssuer{},
		logMailer{logger: logger},
		logAuditSink{logger: logger},
	))
	return r
}

// Run starts the worker process: queue store, registry, stuck-record
// sweeper, HTTP surface and worker loops, then blocks until shutdown.
func Run(cfg Config) error {
	logger := log.New(os.Stderr, "farmqueue ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, closeQueue, err := OpenQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	m := metrics.New()
	registry := DefaultRegistry(logger)

	// Claims abandoned by a crashed worker go back to pending once
	// their visibility deadline passes.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := q.ReleaseStuck(ctx, time.Now())
				if err != nil {
					logger.Printf("release stuck records: %v", err)
					continue
				}
				if n > 0 {
					logger.Printf("released %d stuck records", n)
				}
			}
		}
	}()

	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.Handle("/enqueue", enqueueHandler(ctx, q, registry, m))
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})

		srv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: mux,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("http server error: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		w := worker.New(i, q, registry, m, logger, cfg.Worker)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	logger.Printf("started workers=%d driver=%s", workers, cfg.Driver)
	wg.Wait()
	stop()

	logger.Println("all workers stopped, exiting")
	return nil
}
