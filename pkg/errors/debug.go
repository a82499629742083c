package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-only view of an error chain. It is never sent to clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err for structured logs, including postgres diagnostics from
// either driver (pgx through gorm, lib/pq through goose).
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.code
	}
	walk(err, func(e error) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	})

	if pgErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgErr) {
		d.setPG(pgErr.Code, pgErr.ConstraintName, pgErr.TableName, pgErr.ColumnName, pgErr.Detail, pgErr.Message)
	} else if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		d.setPG(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	}
	return d
}

func (d *ErrorDump) setPG(code, constraint, table, column, detail, message string) {
	d.PGCode, d.PGConstraint, d.PGTable = code, constraint, table
	d.PGColumn, d.PGDetail, d.PGMessage = column, detail, message
}

// walk visits err depth-first, descending into joined errors such as multierr batches.
func walk(err error, visit func(error)) {
	if err == nil {
		return
	}
	visit(err)
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}
