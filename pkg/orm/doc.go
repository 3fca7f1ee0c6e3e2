/*
Package orm persists entity records against the ambient tenant namespace.

Records are dynamic instances over a registered entity definition: a value
map plus dirty and loaded bookkeeping. The store operations (Insert, Update,
Fetch, FetchMany, FirstOrCreate) read the database handle and event bus from
the ambient request frame, so handlers call them with nothing but a context.

Tenant routing falls out of table qualification: public entities render as
public.<table> and always hit the shared namespace, everything else is
unqualified and resolves against the handle's search_path.

Every successful insert or update emits an AuditEvent carrying the projected
model, a request snapshot, and action metadata. The registered audit entity
is exempt so the audit listener's own writes cannot recurse.
*/
package orm
