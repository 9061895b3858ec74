// Package history persists finished dictation sessions in a local Badger
// store. One record per session, whatever the outcome, keyed by start
// time so listing newest-first is a reverse key scan. Records carry a TTL
// and vanish on their own; nothing in the application ever deletes them
// explicitly.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sussurro/sussurro/pkg/types"
)

// DefaultTTL is how long session records are kept when the config does
// not say otherwise.
const DefaultTTL = 30 * 24 * time.Hour

// gcInterval is how often the value-log garbage collector runs for
// on-disk stores.
const gcInterval = 10 * time.Minute

// sessionPrefix namespaces session records inside the store.
var sessionPrefix = []byte("s/")

// Config configures a Store.
type Config struct {
	// Path is the on-disk location of the store. Empty opens an
	// in-memory store that vanishes on Close, used by tests and the
	// --ephemeral flag.
	Path string

	// TTL is how long records are kept. Zero means DefaultTTL.
	TTL time.Duration

	// Logger receives store lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a session history backed by Badger. Safe for concurrent use.
type Store struct {
	db  *badger.DB
	ttl time.Duration
	log *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// Open opens or creates the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	inMemory := cfg.Path == ""
	if inMemory {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history: opening store at %q: %w", cfg.Path, err)
	}

	s := &Store{
		db:   db,
		ttl:  cfg.TTL,
		log:  cfg.Logger,
		done: make(chan struct{}),
	}
	if !inMemory {
		go s.gcLoop()
	}
	s.log.Debug("history store opened", "path", cfg.Path, "ttl", cfg.TTL, "in_memory", inMemory)
	return s, nil
}

// Append writes one finished session record.
func (s *Store) Append(ctx context.Context, rec types.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encoding session %s: %w", rec.ID, err)
	}
	entry := badger.NewEntry(recordKey(rec), val).WithTTL(s.ttl)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("history: writing session %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to n session records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]types.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	var out []types.SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the end of the prefix.
		seek := append(append([]byte(nil), sessionPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(sessionPrefix) && len(out) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec types.SessionRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decoding record %s: %w", it.Item().Key(), err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: listing sessions: %w", err)
	}
	return out, nil
}

// Close stops maintenance and closes the store.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: closing store: %w", err)
	}
	return nil
}

// gcLoop reclaims value-log space freed by expired records.
func (s *Store) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// One pass per tick; ErrNoRewrite just means nothing to do.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				s.log.Warn("history store gc", "err", err)
			}
		}
	}
}

// recordKey builds a time-ordered key: zero-padded start nanos keep
// lexicographic order chronological, the id disambiguates collisions.
func recordKey(rec types.SessionRecord) []byte {
	return fmt.Appendf(nil, "%s%020d/%s", sessionPrefix, rec.StartedAt.UnixNano(), rec.ID)
}
