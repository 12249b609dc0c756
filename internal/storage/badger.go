// Package storage provides the durable backend behind the keyspace.
//
// The keyspace itself is memory-resident; when a data path is configured the
// Badger engine here mirrors every entry so a restart can restore the
// keyspace before the listener opens. With no data path the keyspace runs
// memory-only and this package is not involved.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("storage: engine closed")

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value-log GC runs.
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	GCThreshold float64

	// SyncWrites enables fsync after each write. Off by default: the
	// keyspace is the source of truth and the backend is best-effort.
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		SyncWrites:  false,
	}
}

// BadgerBackend implements the keyspace Backend interface on Badger v3.
type BadgerBackend struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) a Badger-backed store at dir.
func Open(dir string, cfg BadgerConfig, logger *slog.Logger) (*BadgerBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	b := &BadgerBackend{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go b.gcLoop()

	logger.Info("badger backend opened", "dir", dir, "gc_interval", cfg.GCInterval)
	return b, nil
}

// Put stores a pre-encoded keyspace entry.
func (b *BadgerBackend) Put(key string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Delete removes a key.
func (b *BadgerBackend) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Load streams every stored entry into fn.
func (b *BadgerBackend) Load(fn func(key string, data []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the GC loop and closes the database.
func (b *BadgerBackend) Close() error {
	close(b.stopCh)
	<-b.doneCh

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("storage: close badger: %w", err)
	}
	b.logger.Info("badger backend closed")
	return nil
}

// gcLoop runs periodic value-log garbage collection.
func (b *BadgerBackend) gcLoop() {
	defer close(b.doneCh)

	interval := b.cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.runGC()
		case <-b.stopCh:
			return
		}
	}
}

// runGC reclaims value-log space until Badger reports nothing left to do.
func (b *BadgerBackend) runGC() {
	start := time.Now()
	cycles := 0
	for {
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Error("value log gc failed", "error", err)
			}
			break
		}
		cycles++
	}
	if cycles > 0 {
		b.logger.Info("value log gc completed", "cycles", cycles, "elapsed", time.Since(start))
	}
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
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
