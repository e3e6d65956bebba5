package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AcquireCounter tracks granted acquisitions per lock.
	AcquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklock_acquire_total",
		Help: "Total number of granted lock acquisitions",
	}, []string{"lock"})
	// TimeoutCounter tracks waits abandoned because the budget ran out.
	TimeoutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklock_timeout_total",
		Help: "Total number of lock waits that timed out",
	}, []string{"lock"})
	// TaskErrorCounter tracks tasks that failed while holding a lock.
	TaskErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasklock_task_errors_total",
		Help: "Total number of guarded tasks that returned an error",
	}, []string{"lock"})
	// HeldGauge reports whether a lock is currently held.
	HeldGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tasklock_held",
		Help: "Whether the lock is currently held (0 or 1)",
	}, []string{"lock"})
	// WaitingGauge reports the number of queued waiters per lock.
	WaitingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tasklock_waiters",
		Help: "Current number of tasks queued behind the lock",
	}, []string{"lock"})
	// WaitSeconds observes the time spent waiting for a grant.
	WaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasklock_wait_seconds",
		Help:    "Time spent waiting before the lock was granted",
		Buckets: prometheus.DefBuckets,
	}, []string{"lock"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers the lock metrics on the provided registry.
// Registering the same collectors again is tolerated so that several locks
// can share one registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	collectors := []prometheus.Collector{
		AcquireCounter, TimeoutCounter, TaskErrorCounter,
		HeldGauge, WaitingGauge, WaitSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
