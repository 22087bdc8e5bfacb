//go:build libsql

package remote

import (
	_ "github.com/tursodatabase/go-libsql" // registers "libsql"
)

// The libsql driver needs cgo, so it is only linked into builds tagged
// libsql. DSNs are "file:path.db" for an embedded database or a libsql://
// URL for a Turso server.
func init() {
	dialects["libsql"] = dialect{
		name:     "libsql",
		driver:   "libsql",
		jsonType: "TEXT",
		timeType: "TEXT",
	}
}
