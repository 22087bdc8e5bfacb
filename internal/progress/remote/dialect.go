package remote

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// dialect captures what differs between the supported SQL backends.
type dialect struct {
	name string
	// driver is the database/sql driver name.
	driver string
	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool
	jsonType string
	timeType string
	// setup runs once after connecting.
	setup []string
}

var dialects = map[string]dialect{
	"postgres": {
		name:     "postgres",
		driver:   "pgx",
		numbered: true,
		jsonType: "JSONB",
		timeType: "TIMESTAMPTZ",
	},
	"sqlite": {
		name:     "sqlite",
		driver:   "sqlite3",
		jsonType: "TEXT",
		timeType: "TEXT",
		setup: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
		},
	},
}

func lookupDialect(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("unknown remote driver %q (supported: %s)", name, strings.Join(Drivers(), ", "))
	}
	return d, nil
}

// Drivers lists the remote drivers compiled into this binary.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
// Queries in this package never contain a literal question mark.
func (d dialect) rebind(q string) string {
	if !d.numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ddl returns the table definitions for this dialect.
func (d dialect) ddl() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_notes (
			user_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			note_content TEXT NOT NULL DEFAULT '',
			updated_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, task_id)
		)`, d.timeType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS onboarding_profiles (
			user_id TEXT PRIMARY KEY,
			audience TEXT,
			sticky_problem_choice TEXT,
			sticky_problem_description TEXT,
			tools TEXT,
			outcome TEXT,
			origin_struggle TEXT,
			origin_transformation TEXT,
			origin_result TEXT,
			final_niche_statement TEXT,
			niche_alignment TEXT CHECK (niche_alignment IN ('yes', 'no')),
			updated_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, d.timeType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS guide_progress (
			user_id TEXT NOT NULL,
			guide_id TEXT NOT NULL,
			responses %[1]s NOT NULL,
			unlocked_sections %[1]s NOT NULL,
			updated_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, guide_id)
		)`, d.jsonType, d.timeType),
	}
}
