package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent GC pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// PoolStat adapts a pgx pool to PoolSaturationCheck.
func PoolStat(pool *pgxpool.Pool) func() (acquired, limit int32) {
	return func() (int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.MaxConns()
	}
}

// PoolSaturationCheck fails when the share of acquired connections reaches
// maxRatio, which leaves cart transactions queueing for a connection.
func PoolSaturationCheck(stat func() (acquired, limit int32), maxRatio float64) CheckFunc {
	return func(context.Context) error {
		acquired, total := stat()
		if total == 0 {
			return nil
		}
		if float64(acquired)/float64(total) >= maxRatio {
			return errors.Errorf("pool saturated: %d of %d connections acquired", acquired, total)
		}
		return nil
	}
}
