/*
Package migrate generates and applies schema migrations for tenant
namespaces.

Generation diffs the desired schema, rendered from the entity registry,
against the cumulative schema recorded from previous migrations. The diff is
emitted as three ordered groups: pre-ops dropping constraints and indexes,
the main table and column operations, and post-ops re-adding constraints and
indexes. Migration files are named

	<UTC timestamp>_<8-char name hash>_<name>.migration

and a migration whose name hash already exists is refused.

Application targets one namespace at a time: ensure the namespace and its
migrations table exist, then run every file whose content hash is not yet
recorded, inside a transaction, recording the hash on success. Statements
referencing the public namespace run and record against public instead, so
shared tables are created exactly once regardless of how many tenants apply
the same migration. A process-wide cache plus singleflight keep concurrent
first contact on one namespace from double-applying.
*/
package migrate
