package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/showpulse/showpulse/internal/domain"
)

// rlsTables is the allowlist of tables whose row-level security may be
// toggled. ALTER TABLE cannot take a bind parameter, so the table name is
// interpolated and must come from this set.
var rlsTables = map[string]bool{
	"shows":    true,
	"episodes": true,
}

// RLSMaintainer toggles and inspects row-level security on the public data
// tables. Supabase enables RLS by default on exposed tables, which blocks
// the bulk ingest writer; the dbtool disable/enable commands wrap these.
type RLSMaintainer struct{ Pool PgxPool }

// NewRLSMaintainer constructs an RLSMaintainer with the given pool.
func NewRLSMaintainer(p PgxPool) *RLSMaintainer { return &RLSMaintainer{Pool: p} }

// SetRowSecurity enables or disables row-level security on one table. The
// table must be in the allowlist.
func (m *RLSMaintainer) SetRowSecurity(ctx domain.Context, table string, enable bool) error {
	tracer := otel.Tracer("repo.rls")
	ctx, span := tracer.Start(ctx, "rls.SetRowSecurity")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", table), attribute.Bool("rls.enable", enable))
	if !rlsTables[table] {
		return fmt.Errorf("op=rls.set table=%q: %w", table, domain.ErrInvalidArgument)
	}
	verb := "DISABLE"
	if enable {
		verb = "ENABLE"
	}
	if _, err := m.Pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s %s ROW LEVEL SECURITY", table, verb)); err != nil {
		return fmt.Errorf("op=rls.set table=%q: %w", table, err)
	}
	return nil
}

// RowSecurityStatus reports, per allowlisted table, whether row-level
// security is currently enabled according to the pg_class catalog.
func (m *RLSMaintainer) RowSecurityStatus(ctx domain.Context) (map[string]bool, error) {
	tracer := otel.Tracer("repo.rls")
	ctx, span := tracer.Start(ctx, "rls.RowSecurityStatus")
	defer span.End()
	q := `SELECT relname, relrowsecurity FROM pg_class
	      WHERE relname = ANY($1) AND relkind = 'r'`
	names := make([]string, 0, len(rlsTables))
	for t := range rlsTables {
		names = append(names, t)
	}
	rows, err := m.Pool.Query(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("op=rls.status: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool, len(rlsTables))
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, fmt.Errorf("op=rls.status_scan: %w", err)
		}
		out[name] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=rls.status_rows: %w", err)
	}
	return out, nil
}
