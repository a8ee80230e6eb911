// Package store is the shared advertising metrics store the toolkit seeds
// and verifies.
//
// Two tables hold campaigns and daily metric rows for many tenants. Real and
// mock rows live side by side; mock rows are told apart only by their
// provenance tags (is_mock_data = true, source = "toolkit:<scenarioId>").
//
// # Critical Patterns
//
// Tenant and provenance scoping:
//   - Every read takes a metricquery.Predicate, compiled to bind parameters
//   - Every write and delete is keyed by tenant_id AND the toolkit source
//   - PurgeMock can never touch rows without both provenance tags
//
// Deterministic query results:
//   - AggregateMetrics is ORDER BY platform ASC, campaign_id ASC
//   - Two runs over identical data return aggregates in identical order
//
// # Database Configuration
//
// SQLite (default driver "sqlite3"):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - Single open connection
//
// PostgreSQL (driver "pgx") is reached through pgx's database/sql adapter.
// The schema is portable and applied on Open for both drivers.
package store
