package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

type MetricsFn interface {
	IncJobsSubmitted()
	IncJobsProcessed()
	IncJobsRetried()
	IncJobsFailed()
	IncJobsCorrupt()

	IncActiveWorkers()
	DecActiveWorkers()

	IncInflight()
	DecInflight()
}

type Metrics struct {
	// counters
	jobsSubmitted uint64
	jobsProcessed uint64
	jobsRetried   uint64
	jobsFailed    uint64
	jobsCorrupt   uint64

	// gauges
	inflight int64
	activeW  int64
}

func New() *Metrics {
	return &Metrics{}
}

// counters
func (m *Metrics) IncJobsSubmitted() { atomic.AddUint64(&m.jobsSubmitted, 1) }
func (m *Metrics) IncJobsProcessed() { atomic.AddUint64(&m.jobsProcessed, 1) }
func (m *Metrics) IncJobsRetried()   { atomic.AddUint64(&m.jobsRetried, 1) }
func (m *Metrics) IncJobsFailed()    { atomic.AddUint64(&m.jobsFailed, 1) }
func (m *Metrics) IncJobsCorrupt()   { atomic.AddUint64(&m.jobsCorrupt, 1) }

// gauges
func (m *Metrics) IncInflight() { atomic.AddInt64(&m.inflight, 1) }
func (m *Metrics) DecInflight() { atomic.AddInt64(&m.inflight, -1) }

func (m *Metrics) IncActiveWorkers() { atomic.AddInt64(&m.activeW, 1) }
func (m *Metrics) DecActiveWorkers() { atomic.AddInt64(&m.activeW, -1) }

// Http handler

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w,
			"jobs_submitted_total %d\n"+
				"jobs_processed_total %d\n"+
				"jobs_retried_total %d\n"+
				"jobs_failed_total %d\n"+
				"jobs_corrupt_total %d\n"+
				"inflight %d\n"+
				"active_workers %d\n",
			atomic.LoadUint64(&m.jobsSubmitted),
			atomic.LoadUint64(&m.jobsProcessed),
			atomic.LoadUint64(&m.jobsRetried),
			atomic.LoadUint64(&m.jobsFailed),
			atomic.LoadUint64(&m.jobsCorrupt),
			atomic.LoadInt64(&m.inflight),
			atomic.LoadInt64(&m.activeW),
		)
	})
}
