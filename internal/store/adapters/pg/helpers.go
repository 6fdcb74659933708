package pg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/idmx-dev/poolhouse/internal/domain/repository"
)

// mapErr traduce errores de pgx al contrato del repositorio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return repository.ErrAlreadyExists
		case "23503": // foreign_key_violation: el padre referenciado no existe
			return repository.ErrNotFound
		}
	}
	return err
}

// setBuilder acumula asignaciones para un UPDATE parcial. Los nombres de
// columna salen siempre de un allow-list fijo en el call-site, nunca de
// strings controlados por el caller.
type setBuilder struct {
	assignments []string
	args        []any
}

func (b *setBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.assignments = append(b.assignments, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// empty reporta si no se acumuló ningún campo.
func (b *setBuilder) empty() bool { return len(b.assignments) == 0 }

// clause arma el SET incluyendo updated_at y retorna (sql, args, next)
// donde next es el índice del siguiente placeholder disponible para WHERE.
func (b *setBuilder) clause() (string, []any, int) {
	assignments := append(b.assignments, "updated_at = NOW()")
	return strings.Join(assignments, ", "), b.args, len(b.args) + 1
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyIfNull(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
