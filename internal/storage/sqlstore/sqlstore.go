// Package sqlstore is the structured document backend: one SQLite table per
// entity kind with JSON expression indexes on the queryable fields.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"surveydesk/internal/db"
	"surveydesk/internal/migrate"
	"surveydesk/internal/storage"
)

// Opener produces a migrated database handle.
type Opener func(ctx context.Context) (*sql.DB, error)

// WorkspaceOpener opens and migrates the workspace database.
func WorkspaceOpener(cfg db.Config) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		conn, err := db.Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := migrate.MigrateContext(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return conn, nil
	}
}

var tables = map[storage.Kind]string{
	storage.KindSurvey:   "surveys",
	storage.KindResponse: "responses",
	storage.KindTemplate: "templates",
}

type Store struct {
	open Opener
	log  *zap.Logger
	Now  func() time.Time

	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	state storage.State
	conn  *sql.DB
	err   error
}

func New(open Opener, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		open:  open,
		log:   log.Named("sqlstore"),
		Now:   time.Now,
		done:  make(chan struct{}),
		state: storage.StateUninitialized,
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start opens the database in the background. Only the first call has an
// effect; until it settles every operation returns storage.ErrUnavailable.
func (s *Store) Start(ctx context.Context) {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = storage.StateOpening
		s.mu.Unlock()
		go s.run(ctx)
	})
}

func (s *Store) run(ctx context.Context) {
	started := time.Now()
	conn, err := s.open(ctx)
	if err == nil {
		if err = conn.PingContext(ctx); err != nil {
			conn.Close()
		}
	}
	s.mu.Lock()
	if err != nil {
		s.state = storage.StateFailed
		s.err = err
	} else {
		s.state = storage.StateReady
		s.conn = conn
	}
	s.mu.Unlock()
	close(s.done)
	if err != nil {
		s.log.Warn("structured store failed to open", zap.Error(err))
		return
	}
	s.log.Debug("structured store ready", zap.Duration("took", time.Since(started)))
}

// Wait blocks until the store settled and returns the open error, if any.
func (s *Store) Wait(ctx context.Context) error {
	if s.State() == storage.StateUninitialized {
		return storage.ErrUnavailable
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) State() storage.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Close releases the database once opening has settled.
func (s *Store) Close() error {
	if s.State() == storage.StateOpening {
		<-s.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.state = storage.StateUninitialized
	return err
}

func (s *Store) db() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != storage.StateReady || s.conn == nil {
		return nil, storage.ErrUnavailable
	}
	return s.conn, nil
}

func table(kind storage.Kind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown kind %q", kind)
	}
	return t, nil
}

func (s *Store) Put(ctx context.Context, kind storage.Kind, id string, doc []byte) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	t, err := table(kind)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(id,doc,stored_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET doc=excluded.doc, stored_at=excluded.stored_at`, t),
		id, string(doc), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind storage.Kind, id string) ([]byte, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	var doc string
	err = conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE id=?`, t), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return []byte(doc), nil
}

func (s *Store) List(ctx context.Context, kind storage.Kind) ([][]byte, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY rowid`, t))
}

// FindBy uses the expression index on the field. Booleans are compared as
// SQLite's 1/0 rendering of JSON true/false.
func (s *Store) FindBy(ctx context.Context, kind storage.Kind, field string, value any) ([][]byte, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	if !storage.Indexed(kind, field) {
		return nil, fmt.Errorf("%s is not indexed on %s", field, kind)
	}
	if b, ok := value.(bool); ok {
		if b {
			value = 1
		} else {
			value = 0
		}
	}
	return s.query(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE json_extract(doc, '$.%s') = ? ORDER BY rowid`, t, field), value)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([][]byte, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		out = append(out, []byte(doc))
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, kind storage.Kind, id string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	t, err := table(kind)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, t), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, kind := range storage.Kinds {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tables[kind])); err != nil {
			return fmt.Errorf("clear %s: %w", kind, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Count(ctx context.Context, kind storage.Kind) (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	t, err := table(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, t)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Probe(ctx context.Context) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	const key = "__storage_test__"
	if _, err := conn.ExecContext(ctx, `INSERT OR REPLACE INTO storage_probe(id,written_at) VALUES (?,?)`, key, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM storage_probe WHERE id=?`, key); err != nil {
		return fmt.Errorf("probe delete: %w", err)
	}
	return nil
}
