// Package store persists tenants, shipments and billing records with sqlx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/tournevent/labeler/internal/secrets"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ID prefixes.
const (
	PrefixTenant   = "tnt"
	PrefixShipment = "shp"
	PrefixBilling  = "bill"
)

var (
	// ErrNotFound is returned when a row does not exist or belongs to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrStaleTransition is returned when a conditional status update matched no row.
	ErrStaleTransition = errors.New("stale status transition")
)

// Config holds database configuration.
type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// Store is the relational persistence layer.
type Store struct {
	db     *sqlx.DB
	box    *secrets.Box
	logger *otelzap.Logger
	now    func() time.Time
}

type txKey struct{}

// querier is implemented by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string
}

// Open connects to the database, retrying with exponential backoff until ConnectTimeout elapses.
func Open(ctx context.Context, cfg Config, box *secrets.Box, logger *otelzap.Logger) (*Store, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver)
	}
	if box == nil {
		return nil, errors.New("store requires an encryption box")
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying",
			zap.String("driver", cfg.Driver),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(timeout)), ctx)
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.Driver)
	}

	if cfg.Driver == DriverSQLite {
		// every sqlite connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	return &Store{
		db:     db,
		box:    box,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction carried by the context.
// Calls nested in an existing transaction join it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Ctx(ctx).Error("Rollback failed", zap.Error(rbErr))
			}
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, ulid.Make().String())
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s %s", what, id)
	}
	return errors.Wrapf(err, "loading %s %s", what, id)
}
