package driver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// pgQuerier statement surface shared by the pool and its transactions
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PGWrapper ITransactionalDB over a pgx pool
type PGWrapper struct {
	db *pgxpool.Pool
}

// PGWrapperTx ITransactionalDB over a pgx transaction
type PGWrapperTx struct {
	tx pgx.Tx
}

var (
	_ ITransactionalDB = &PGWrapper{}
	_ ITransactionalDB = &PGWrapperTx{}
)

type pgExecResult struct {
	ct pgconn.CommandTag
}

func (pr pgExecResult) LastInsertId() (int64, error) { return 0, nil }
func (pr pgExecResult) RowsAffected() (int64, error) { return pr.ct.RowsAffected(), nil }

type pgRows struct {
	rows pgx.Rows
}

func (pr pgRows) Next() bool                     { return pr.rows.Next() }
func (pr pgRows) Scan(dest ...interface{}) error { return pr.rows.Scan(dest...) }
func (pr pgRows) Err() error                     { return pr.rows.Err() }

func (pr pgRows) Close() error {
	pr.rows.Close()
	return pr.rows.Err()
}

// NewPostgreSQLConn Returns a postgreSQL connection pool
func NewPostgreSQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = cfg.MaxConn

	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGWrapper{pool}, nil
}

func pgExec(ctx context.Context, q pgQuerier, query string, args []interface{}) (sql.Result, error) {
	start := time.Now()
	query = pgsqlAdapter(query)
	ct, err := q.Exec(ctx, query, args...)
	traceStatement(ctx, stmtExec, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return pgExecResult{ct}, nil
}

func pgQuery(ctx context.Context, q pgQuerier, query string, args []interface{}) (ISQLRows, error) {
	start := time.Now()
	query = pgsqlAdapter(query)
	rows, err := q.Query(ctx, query, args...)
	traceStatement(ctx, stmtQuery, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func (pw *PGWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pw.db, query, args)
}

func (pw *PGWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pw.db, query, args)
}

func (pw *PGWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	start := time.Now()
	tx, err := pw.db.BeginTx(ctx, pgTxOptionAdapter(opts))
	traceStatement(ctx, stmtBegin, "", nil, start, err)
	if err != nil {
		return nil, err
	}
	return &PGWrapperTx{tx}, nil
}

// Commit no-op outside a transaction
func (pw *PGWrapper) Commit(ctx context.Context) error { return nil }

// Rollback no-op outside a transaction
func (pw *PGWrapper) Rollback(ctx context.Context) error { return nil }

// Close close the whole pool
func (pw *PGWrapper) Close(ctx context.Context) error {
	pw.db.Close()
	return nil
}

func (pw *PGWrapper) Ping(ctx context.Context) error {
	_, err := pw.db.Exec(ctx, "SELECT 1")
	return err
}

func (pwt *PGWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTx
}

func (pwt *PGWrapperTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := pwt.tx.Commit(ctx)
	traceStatement(ctx, stmtCommit, "", nil, start, err)
	return err
}

func (pwt *PGWrapperTx) Rollback(ctx context.Context) error {
	start := time.Now()
	err := pwt.tx.Rollback(ctx)
	traceStatement(ctx, stmtRollback, "", nil, start, err)
	return err
}

func (pwt *PGWrapperTx) Close(ctx context.Context) error { return nil }
func (pwt *PGWrapperTx) Ping(ctx context.Context) error  { return nil }

func pgTxOptionAdapter(opts *TxOptions) pgx.TxOptions {
	if opts == nil {
		return pgx.TxOptions{}
	}
	txOptions := pgx.TxOptions{
		IsoLevel:       pgx.TxIsoLevel(strings.ToLower(opts.Isolation.String())),
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.NotDeferrable,
	}
	if opts.Isolation == sql.LevelDefault {
		txOptions.IsoLevel = ""
	}
	if opts.AccessMode == AccessReadOnly {
		txOptions.AccessMode = pgx.ReadOnly
	}
	if opts.DeferrableMode == Deferrable {
		txOptions.DeferrableMode = pgx.Deferrable
	}
	return txOptions
}

func pgsqlAdapter(query string) string {
	return SpacePattern.ReplaceAllString(query, " ")
}
