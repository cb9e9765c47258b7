// Package replay persists decision events to SQLite so a run can be
// inspected after the fact.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
)

// DefaultBatchSize is how many events are buffered before a write.
const DefaultBatchSize = 500

// EventRecord is one persisted events.Event.
type EventRecord struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"index;size:64"`
	Seq          uint64    `gorm:"index"`
	Kind         string    `gorm:"index;size:32"`
	SimTime      time.Time `gorm:"index"`
	Target       string    `gorm:"size:32"`
	Interceptor  string    `gorm:"size:32"`
	Tag          string    `gorm:"size:64"`
	Score        float64
	DistanceTerm float64
	SpeedTerm    float64
	RCSTerm      float64
	Detail       string
}

// TableName pins the table name.
func (EventRecord) TableName() string { return "events" }

// Store is an events.Sink backed by SQLite. Events are buffered and written
// in batches; Close flushes the remainder.
type Store struct {
	db    *gorm.DB
	runID string
	batch int
	log   logging.Logger

	mu      sync.Mutex
	buf     []EventRecord
	seq     uint64
	dropped uint64
	lastErr error
}

var _ events.Sink = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithBatchSize sets the flush threshold; values below 1 flush every event.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.batch = n
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open creates or opens the database at path and migrates the schema. An
// empty path uses a private in-memory database.
func Open(path, runID string, opts ...Option) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open replay db %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("replay db handle: %w", err)
	}
	// Every pooled connection to :memory: would see its own empty database.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate replay schema: %w", err)
	}

	s := &Store{
		db:    db,
		runID: runID,
		batch: DefaultBatchSize,
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]EventRecord, 0, s.batch)
	return s, nil
}

// RunID returns the run identifier stamped on every record.
func (s *Store) RunID() string { return s.runID }

// Emit buffers ev and writes the buffer once it reaches the batch size.
// A failed write discards the batch: it is logged, counted by Dropped and
// reported by Err, and the loop never blocks or retries.
func (s *Store) Emit(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.buf = append(s.buf, EventRecord{
		RunID:        s.runID,
		Seq:          s.seq,
		Kind:         string(ev.Kind),
		SimTime:      ev.Time.UTC(),
		Target:       handleString(ev.Target.IsNil(), ev.Target.String()),
		Interceptor:  handleString(ev.Interceptor.IsNil(), ev.Interceptor.String()),
		Tag:          ev.Tag,
		Score:        ev.Score,
		DistanceTerm: ev.DistanceTerm,
		SpeedTerm:    ev.SpeedTerm,
		RCSTerm:      ev.RCSTerm,
		Detail:       ev.Detail,
	})
	if len(s.buf) >= s.batch {
		_ = s.flushLocked()
	}
}

// Flush writes any buffered events.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.buf) == 0 {
		return nil
	}
	n := len(s.buf)
	err := s.db.CreateInBatches(s.buf, s.batch).Error
	s.buf = s.buf[:0]
	if err != nil {
		s.lastErr = err
		s.dropped += uint64(n)
		s.log.Warn(context.Background(), "replay write failed; batch discarded",
			logging.Int("events", n),
			logging.Err(err),
		)
		return fmt.Errorf("write %d events: %w", n, err)
	}
	return nil
}

// Dropped returns how many events were discarded by failed writes.
func (s *Store) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Err returns the most recent write failure, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Events returns this run's records in emission order. An empty kind
// returns every kind.
func (s *Store) Events(ctx context.Context, kind events.Kind) ([]EventRecord, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("run_id = ?", s.runID)
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	var out []EventRecord
	if err := q.Order("seq").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}

// CountByKind returns how many events of each kind this run recorded.
func (s *Store) CountByKind(ctx context.Context) (map[string]int64, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.WithContext(ctx).Model(&EventRecord{}).
		Select("kind, count(*) as total").
		Where("run_id = ?", s.runID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Total
	}
	return out, nil
}

// Close flushes buffered events and closes the database.
func (s *Store) Close() error {
	flushErr := s.Flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return flushErr
}

func handleString(isNil bool, s string) string {
	if isNil {
		return ""
	}
	return s
}
