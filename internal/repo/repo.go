package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrCorruptMetadata = errors.New("corrupt metadata")
)

// MetadataPolicy selects how reads treat task metadata that fails to decode.
type MetadataPolicy string

const (
	// MetadataLenient returns the task with empty metadata and MetadataCorrupt set.
	MetadataLenient MetadataPolicy = "lenient"
	// MetadataStrict fails the read with ErrCorruptMetadata.
	MetadataStrict MetadataPolicy = "strict"
)

func (p MetadataPolicy) Valid() bool {
	return p == MetadataLenient || p == MetadataStrict
}

const defaultBusyRetries = 8

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo runs queries against the pool, or against one transaction when it was
// handed out by RunInTransaction.
type Repo struct {
	DB             *sql.DB
	Log            *slog.Logger
	Metadata       MetadataPolicy
	MaxBusyRetries int

	tx *sql.Tx
}

type Option func(*Repo)

func WithLogger(l *slog.Logger) Option {
	return func(r *Repo) { r.Log = l }
}

func WithMetadataPolicy(p MetadataPolicy) Option {
	return func(r *Repo) { r.Metadata = p }
}

func WithMaxBusyRetries(n int) Option {
	return func(r *Repo) { r.MaxBusyRetries = n }
}

func New(db *sql.DB, opts ...Option) Repo {
	r := Repo{DB: db, Metadata: MetadataLenient, MaxBusyRetries: defaultBusyRetries}
	for _, opt := range opts {
		opt(&r)
	}
	if r.Log == nil {
		r.Log = slog.Default()
	}
	return r
}

// Conn returns the transaction when bound to one, the pool otherwise.
func (r Repo) Conn() Querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// InTransaction reports whether r is bound to an open transaction.
func (r Repo) InTransaction() bool {
	return r.tx != nil
}

// RunInTransaction runs fn against a Repo bound to a single transaction.
//
// Any error from fn rolls back and is returned unchanged; a panic rolls back
// and re-panics. Only BEGIN is retried when the database stays busy past the
// connection's busy timeout. Calls on an already bound Repo join the open
// transaction.
func (r Repo) RunInTransaction(ctx context.Context, fn func(Repo) error) (err error) {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	bound := r
	bound.tx = tx
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.Log.Warn("rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r Repo) begin(ctx context.Context) (*sql.Tx, error) {
	tries := r.MaxBusyRetries
	if tries < 0 {
		tries = 0
	}
	attempt := 0
	return backoff.Retry(ctx, func() (*sql.Tx, error) {
		attempt++
		tx, err := r.DB.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}
		if IsBusy(err) {
			r.Log.Debug("database busy, retrying begin", "attempt", attempt, "err", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(newBusyBackOff()),
		backoff.WithMaxTries(uint(tries)+1),
	)
}

func newBusyBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func IsBusy(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// IsUniqueViolation reports a PRIMARY KEY or UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE)
}

// IsForeignKeyViolation reports a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code(), true
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
