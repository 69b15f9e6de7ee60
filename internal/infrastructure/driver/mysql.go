package driver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	// mysql driver
	_ "github.com/go-sql-driver/mysql"
)

var _ ISQLRows = &sql.Rows{}

// sqlQuerier statement surface shared by *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SQLWrapper ITransactionalDB over a database/sql pool
type SQLWrapper struct {
	db *sql.DB
}

// SQLWrapperTx ITransactionalDB over a database/sql transaction
type SQLWrapperTx struct {
	tx *sql.Tx
}

var (
	_ ITransactionalDB = &SQLWrapper{}
	_ ITransactionalDB = &SQLWrapperTx{}
)

// NewMySQLConn Returns a MySQL connection pool
func NewMySQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(int(cfg.MaxConn))
	return &SQLWrapper{conn}, nil
}

func sqlExec(ctx context.Context, q sqlQuerier, query string, args []interface{}) (sql.Result, error) {
	start := time.Now()
	query = mysqlAdapter(query)
	res, err := q.ExecContext(ctx, query, args...)
	traceStatement(ctx, stmtExec, query, args, start, err)
	return res, err
}

func sqlQuery(ctx context.Context, q sqlQuerier, query string, args []interface{}) (ISQLRows, error) {
	start := time.Now()
	query = mysqlAdapter(query)
	rows, err := q.QueryContext(ctx, query, args...)
	traceStatement(ctx, stmtQuery, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (mw *SQLWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return sqlExec(ctx, mw.db, query, args)
}

func (mw *SQLWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return sqlQuery(ctx, mw.db, query, args)
}

// BeginTx start a new transaction context
func (mw *SQLWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	start := time.Now()
	tx, err := mw.db.BeginTx(ctx, mysqlTxOptionAdapter(opts))
	traceStatement(ctx, stmtBegin, "", nil, start, err)
	if err != nil {
		return nil, err
	}
	return &SQLWrapperTx{tx}, nil
}

// Commit no-op outside a transaction
func (mw *SQLWrapper) Commit(ctx context.Context) error { return nil }

// Rollback no-op outside a transaction
func (mw *SQLWrapper) Rollback(ctx context.Context) error { return nil }

func (mw *SQLWrapper) Close(ctx context.Context) error { return mw.db.Close() }
func (mw *SQLWrapper) Ping(ctx context.Context) error  { return mw.db.PingContext(ctx) }

func (mwt *SQLWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return sqlExec(ctx, mwt.tx, query, args)
}

func (mwt *SQLWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return sqlQuery(ctx, mwt.tx, query, args)
}

func (mwt *SQLWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTx
}

func (mwt *SQLWrapperTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := mwt.tx.Commit()
	traceStatement(ctx, stmtCommit, "", nil, start, err)
	return err
}

func (mwt *SQLWrapperTx) Rollback(ctx context.Context) error {
	start := time.Now()
	err := mwt.tx.Rollback()
	traceStatement(ctx, stmtRollback, "", nil, start, err)
	return err
}

func (mwt *SQLWrapperTx) Close(ctx context.Context) error { return nil }
func (mwt *SQLWrapperTx) Ping(ctx context.Context) error  { return nil }

func mysqlTxOptionAdapter(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.AccessMode == AccessReadOnly,
	}
}

func mysqlAdapter(query string) string {
	query = strings.Replace(query, "\"", "`", -1)
	query = DollarPlaceholderPattern.ReplaceAllString(query, "?")
	query = SpacePattern.ReplaceAllString(query, " ")
	return query
}
