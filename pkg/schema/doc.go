/*
Package schema holds the declarative entity model: field descriptors,
relationships, definitions, and the registry they are collected in.

A Definition describes one entity: its table name, ordered Field descriptors
(type, nullability, uniqueness, default, privacy, enum values), and its
Relationships (HasOne, HasMany, OwnsOne). Definitions are registered once at
startup; the registry rejects duplicate entity names and duplicate field
names within an entity, and resolves relationship targets by entity name
after all registrations.

Public entities live in the shared public namespace and are visible to every
tenant; everything else resolves inside the per-tenant namespace through the
connection's search_path.

Mixins are reusable field bundles (primary key, audit timestamps, soft
delete) that definitions splice into their field lists, keeping the stock
entities consistent without inheritance.

The package is purely descriptive. Rendering definitions into SQL lives in
pkg/migrate; reading and writing rows lives in pkg/orm.
*/
package schema
