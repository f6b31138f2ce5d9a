package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostics flattens an error chain into log fields. Postgres errors from
// either driver contribute their SQLSTATE and constraint so a duplicate
// payment reference is visible without reproducing the request.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	SQL     *SQLState
}

// SQLState is the subset of a Postgres error worth logging.
type SQLState struct {
	Code       string
	Constraint string
	Table      string
	Detail     string
}

// Diagnose walks err and collects its diagnostics.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	diag := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		diag.Code = typed.code
	}
	for link := err; link != nil; link = errors.Unwrap(link) {
		diag.Chain = append(diag.Chain, fmt.Sprintf("%T", link))
	}
	diag.SQL = sqlStateOf(err)
	return diag
}

func sqlStateOf(err error) *SQLState {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &SQLState{Code: pgErr.Code, Constraint: pgErr.ConstraintName, Table: pgErr.TableName, Detail: pgErr.Detail}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &SQLState{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	return nil
}

// Fields renders the diagnostics for logger.WithFields.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.SQL != nil {
		fields["pg_code"] = d.SQL.Code
		fields["pg_constraint"] = d.SQL.Constraint
		fields["pg_table"] = d.SQL.Table
		fields["pg_detail"] = d.SQL.Detail
	}
	return fields
}
