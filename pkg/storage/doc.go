/*
Package storage provides the server's data-store facade: a DuckDB-backed
relational store, a scoped transaction helper, and the in-memory name
caches for the small enumeration tables (flags, tags, mime types, part
types, resources, relation types).

# Architecture

	┌─────────────────────── DUCKDB STORAGE ───────────────────────┐
	│                                                                │
	│  ┌──────────────────────────────────────────────┐            │
	│  │                 DuckStore                      │            │
	│  │  - File: <dataDir>/akonadi/akonadi.db          │            │
	│  │  - Driver: github.com/duckdb/duckdb-go/v2      │            │
	│  │  - Queries built with Masterminds/squirrel     │            │
	│  └──────────────────────┬───────────────────────┘            │
	│                         │                                      │
	│  ┌──────────────────────▼───────────────────────┐            │
	│  │                 Session                        │            │
	│  │  - One reserved *sql.Conn per connection        │            │
	│  │  - Nesting counter: only the outermost commit   │            │
	│  │    actually commits; any inner rollback dooms   │            │
	│  │    the whole stack                               │            │
	│  │  - OnCommit/OnRollback hooks drive pkg/notify    │            │
	│  └──────────────────────────────────────────────┘            │
	│                                                                │
	└────────────────────────────────────────────────────────────────┘

Handlers acquire a *Transaction from a *Session on the stack; if the
handler returns without calling Commit, the deferred Rollback undoes any
writes, mirroring the scoped C++ RAII helper the original server used.
*/
package storage
