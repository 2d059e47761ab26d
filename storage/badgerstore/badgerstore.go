// Package badgerstore provides persistent document storage on Badger v3.
//
// One Adapter owns a single Badger database. Stores are carved out of
// the shared keyspace with a NUL-terminated location prefix, so any
// number of handles can open the same location without fighting over
// Badger's directory lock. Revision checks run inside Badger
// transactions with conflict detection enabled, which makes the
// optimistic-locking contract hold across concurrent writers.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoanglam10499/rxdb/storage"
)

// Config controls the Badger adapter.
type Config struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps the whole database in RAM. Useful in tests.
	InMemory bool

	// SyncWrites forces an fsync on every commit.
	SyncWrites bool

	// CacheSize is the Badger block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize caps individual value log files.
	ValueLogFileSize int64

	// GCInterval is the pause between value log GC runs.
	GCInterval time.Duration

	// GCThreshold is the rewrite ratio handed to Badger's value log GC.
	GCThreshold float64

	// Logger receives Badger's internal log output. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		SyncWrites:       false,
		CacheSize:        64 << 20,  // 64 MiB
		ValueLogFileSize: 256 << 20, // 256 MiB
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
	}
}

// Adapter hands out document stores backed by one shared Badger DB.
type Adapter struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	closed atomic.Bool

	// GC bookkeeping
	lastGCTime       atomic.Int64  // Unix milliseconds
	gcBytesReclaimed atomic.Uint64

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCReclaimed  prometheus.Counter

	// Shutdown
	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens a Badger-backed adapter.
func Open(cfg Config) (*Adapter, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badgerstore: dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.InMemory = cfg.InMemory
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = true
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open db: %w", err)
	}

	a := &Adapter{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go a.gcLoop()

	logger.Info("badger adapter started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return a, nil
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "badger" }

// OpenStore opens the document store at the given location.
func (a *Adapter) OpenStore(_ context.Context, location string) (storage.DocumentStore, error) {
	if a.closed.Load() {
		return nil, storage.ErrClosed
	}
	if location == "" {
		return nil, fmt.Errorf("badgerstore: location is required")
	}
	return &Store{adapter: a, prefix: keyPrefix(location)}, nil
}

// RemoveStore erases every document under the given location. A
// location that was never written is not an error.
func (a *Adapter) RemoveStore(_ context.Context, location string) error {
	if a.closed.Load() {
		return storage.ErrClosed
	}
	if err := a.db.DropPrefix(keyPrefix(location)); err != nil {
		return fmt.Errorf("badgerstore: drop prefix: %w", err)
	}
	return nil
}

// GC triggers value log garbage collection until Badger reports
// nothing left to rewrite. Returns approximate bytes reclaimed.
func (a *Adapter) GC(_ context.Context) (uint64, error) {
	start := time.Now()

	var reclaimed uint64
	for {
		err := a.db.RunValueLogGC(a.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return reclaimed, fmt.Errorf("badgerstore: gc: %w", err)
		}
		// Badger doesn't report exact counts. Estimate one file
		// rewrite per successful cycle.
		reclaimed += 1 << 20
	}

	a.lastGCTime.Store(time.Now().UnixMilli())
	a.gcBytesReclaimed.Add(reclaimed)

	a.logger.Debug("badger gc completed",
		"bytes_reclaimed", reclaimed,
		"elapsed", time.Since(start))

	return reclaimed, nil
}

// Close stops background work and closes the underlying database.
func (a *Adapter) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(a.stopCh)
	<-a.doneCh

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close db: %w", err)
	}
	a.logger.Info("badger adapter closed")
	return nil
}

// RegisterMetrics registers storage metrics with Prometheus and starts
// a background updater. Call at most once.
func (a *Adapter) RegisterMetrics(registry *prometheus.Registry) *Adapter {
	a.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rxdb",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	a.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rxdb",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	a.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rxdb",
		Subsystem: "badger",
		Name:      "total_size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})

	a.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rxdb",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})

	a.metricsGCReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rxdb",
		Subsystem: "badger",
		Name:      "gc_bytes_reclaimed_total",
		Help:      "Total bytes reclaimed by value log garbage collection",
	})

	registry.MustRegister(
		a.metricsLSMSize,
		a.metricsValueLogSize,
		a.metricsTotalSize,
		a.metricsLastGCTime,
		a.metricsGCReclaimed,
	)

	go a.metricsUpdateLoop()

	return a
}

// metricsUpdateLoop refreshes size gauges until the adapter closes.
func (a *Adapter) metricsUpdateLoop() {
	if a.metricsLSMSize == nil {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lsm, vlog := a.db.Size()
			a.metricsLSMSize.Set(float64(lsm))
			a.metricsValueLogSize.Set(float64(vlog))
			a.metricsTotalSize.Set(float64(lsm + vlog))
			if last := a.lastGCTime.Load(); last > 0 {
				a.metricsLastGCTime.Set(float64(last) / 1000.0)
			}
		case <-a.stopCh:
			return
		}
	}
}

// gcLoop runs periodic value log garbage collection.
func (a *Adapter) gcLoop() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := a.GC(ctx); err != nil {
				a.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-a.stopCh:
			return
		}
	}
}

// keyPrefix returns the keyspace prefix for a location. The NUL byte
// terminator keeps "shop/books-1" from matching keys under
// "shop/books-10".
func keyPrefix(location string) []byte {
	return append([]byte(location), 0x00)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
