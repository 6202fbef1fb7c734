// Package health runs periodic integrity audits of the provenance chain and
// reports whether the ledger is fit to serve.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds audit configuration.
type Config struct {
	Interval      time.Duration
	FailThreshold int
}

// IntegrityChecker verifies the chain. *ledger.Ledger satisfies this interface.
type IntegrityChecker interface {
	VerifyIntegrity(ctx context.Context) error
	Len(ctx context.Context) int
}

// MetricsRecordFunc is an optional callback for recording audit results.
type MetricsRecordFunc func(valid bool)

// Status is a point-in-time audit summary.
type Status struct {
	Healthy             bool      `json:"healthy"`
	Blocks              int       `json:"blocks"`
	LastChecked         time.Time `json:"last_checked,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Auditor periodically re-verifies every link and seal in the chain.
type Auditor struct {
	checker   IntegrityChecker
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu     sync.Mutex
	status Status
}

// New creates an Auditor. The ledger is reported healthy until an audit
// says otherwise.
func New(checker IntegrityChecker, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 1
	}
	return &Auditor{
		checker: checker,
		cfg:     cfg,
		logger:  logger,
		status:  Status{Healthy: true},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs the audit loop until ctx is done.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one audit and returns whether the chain verified.
func (a *Auditor) Check(ctx context.Context) bool {
	err := a.checker.VerifyIntegrity(ctx)
	valid := err == nil
	if a.onMetrics != nil {
		a.onMetrics(valid)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	wasHealthy := a.status.Healthy
	a.status.LastChecked = time.Now().UTC()
	a.status.Blocks = a.checker.Len(ctx)
	if valid {
		a.status.ConsecutiveFailures = 0
		a.status.LastError = ""
		a.status.Healthy = true
		if !wasHealthy {
			a.logger.Info("ledger integrity recovered", zap.Int("blocks", a.status.Blocks))
		}
		return true
	}

	a.status.ConsecutiveFailures++
	a.status.LastError = err.Error()
	if a.status.ConsecutiveFailures >= a.cfg.FailThreshold {
		a.status.Healthy = false
	}
	if wasHealthy && !a.status.Healthy {
		a.logger.Error("ledger integrity check FAILED; marking unhealthy",
			zap.Int("consecutive_failures", a.status.ConsecutiveFailures),
			zap.Error(err),
		)
	} else {
		a.logger.Warn("ledger integrity check failed", zap.Error(err))
	}
	return false
}

// Status returns the latest audit summary.
func (a *Auditor) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}
