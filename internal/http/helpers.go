package http

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// appMetrics counts domain events for /metrics.
type appMetrics struct {
	started         time.Time
	expensesCreated atomic.Int64
	warningsIssued  atomic.Int64
	imports         atomic.Int64
}

func newAppMetrics() *appMetrics {
	return &appMetrics{started: time.Now()}
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%+.1f%%", p)
}
