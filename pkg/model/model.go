// Package model declares the stock entities most applications start from:
// users, settings, role-based access, sessions, the shared customer registry,
// per-tenant configuration, and the audit log. Applications register these
// into a registry at startup and add their own entities alongside.
package model

import (
	"github.com/cuemby/burrow/pkg/id57"
	"github.com/cuemby/burrow/pkg/schema"
)

// Definitions for the stock entities, populated by RegisterAll.
var (
	Users         *schema.Definition
	Settings      *schema.Definition
	Roles         *schema.Definition
	Permissions   *schema.Definition
	Sessions      *schema.Definition
	Customers     *schema.Definition
	Configuration *schema.Definition
	AuditLog      *schema.Definition
)

// RegisterAll registers the stock entities in dependency order. The audit log
// registers last, flagged as the audit entity.
func RegisterAll(r *schema.Registry) error {
	var err error

	if Customers, err = r.Register(customers()); err != nil {
		return err
	}
	if Users, err = r.Register(users()); err != nil {
		return err
	}
	if Settings, err = r.Register(settings()); err != nil {
		return err
	}
	if Roles, err = r.Register(roles()); err != nil {
		return err
	}
	if Permissions, err = r.Register(permissions()); err != nil {
		return err
	}
	if Sessions, err = r.Register(sessions()); err != nil {
		return err
	}
	if Configuration, err = r.Register(configuration()); err != nil {
		return err
	}
	if AuditLog, err = r.RegisterAudit(auditLog()); err != nil {
		return err
	}
	return nil
}

// customers is the shared tenant registry. One row per tenant, visible to
// every namespace.
func customers() *schema.Definition {
	return &schema.Definition{
		Name:   "Customers",
		Table:  "customers",
		Public: true,
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "name", Type: schema.String, Unique: true, Index: true},
				{Name: "is_active", Type: schema.Boolean, Default: true},
			},
		),
	}
}

func users() *schema.Definition {
	return &schema.Definition{
		Name:  "Users",
		Table: "users",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "name", Type: schema.String},
				{Name: "username", Type: schema.String, Unique: true, Index: true},
				{Name: "email_address", Type: schema.String},
				{Name: "age", Type: schema.Integer, Default: 0, Nullable: true},
				{Name: "password_hash", Type: schema.String, Private: true, Nullable: true},
				{Name: "password_salt", Type: schema.String, Private: true, Nullable: true},
				{Name: "recovery_codes", Type: schema.String, Private: true, Nullable: true},
				{Name: "mfa_secret", Type: schema.String, Private: true, Nullable: true},
				{Name: "is_admin", Type: schema.Boolean, Default: false},
				{Name: "is_system", Type: schema.Boolean, Default: false},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "role", Kind: schema.HasOne, Target: "Roles"},
			{Name: "settings", Kind: schema.HasMany, Target: "Settings"},
		},
	}
}

func settings() *schema.Definition {
	return &schema.Definition{
		Name:  "Settings",
		Table: "settings",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "display_mode", Type: schema.String, Default: "system", Nullable: true},
				{Name: "language", Type: schema.String, Nullable: true},
				{Name: "theme", Type: schema.String, Nullable: true},
				{Name: "timezone", Type: schema.String, Nullable: true},
				{Name: "reduced_motion", Type: schema.String, Default: "system", Nullable: true},
				{Name: "receive_email_notifications", Type: schema.Boolean, Default: false},
				{Name: "receive_text_notifications", Type: schema.Boolean, Default: false},
				{Name: "has_opted_out_of_marketing", Type: schema.Boolean, Default: false},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "user", Kind: schema.HasOne, Target: "Users"},
		},
	}
}

func roles() *schema.Definition {
	return &schema.Definition{
		Name:  "Roles",
		Table: "roles",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "name", Type: schema.String, Unique: true},
				{Name: "description", Type: schema.String},
				{Name: "is_custom", Type: schema.Boolean, Default: false},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "permissions", Kind: schema.HasMany, Target: "Permissions"},
		},
	}
}

func permissions() *schema.Definition {
	return &schema.Definition{
		Name:  "Permissions",
		Table: "permissions",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "name", Type: schema.String},
				{Name: "slug", Type: schema.String, Unique: true, Index: true},
				{Name: "description", Type: schema.String},
				{Name: "is_custom", Type: schema.Boolean, Default: false},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "role", Kind: schema.HasOne, Target: "Roles"},
		},
	}
}

func sessions() *schema.Definition {
	return &schema.Definition{
		Name:  "Sessions",
		Table: "sessions",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{Name: "access_token", Type: schema.String, Private: true, Nullable: true},
				{Name: "refresh_token", Type: schema.String, Private: true, Nullable: true},
				{Name: "expires_at", Type: schema.Timestamp, Nullable: true},
				{Name: "last_active", Type: schema.Timestamp, Nullable: true},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "user", Kind: schema.HasOne, Target: "Users"},
		},
	}
}

// configuration carries per-tenant runtime settings, including the token
// secret used to sign first-party sessions.
func configuration() *schema.Definition {
	return &schema.Definition{
		Name:  "Configuration",
		Table: "configuration",
		Fields: schema.Merge(
			schema.AuditedFields(),
			[]*schema.Field{
				{
					Name:        "token_secret",
					Type:        schema.String,
					Length:      id57.Length,
					Private:     true,
					DefaultFunc: func() any { return id57.Generate() },
				},
				{Name: "is_active", Type: schema.Boolean, Default: true},
				{Name: "custom_name", Type: schema.String, Nullable: true},
				{Name: "custom_logo", Type: schema.String, Nullable: true},
				{Name: "custom_color", Type: schema.String, Nullable: true},
			},
		),
	}
}

func auditLog() *schema.Definition {
	return &schema.Definition{
		Name:  "AuditLog",
		Table: "auditlog",
		Fields: schema.Merge(
			[]*schema.Field{schema.IDField()},
			[]*schema.Field{
				{Name: "object_id", Type: schema.String, Length: 30, Nullable: true},
				{Name: "object_type", Type: schema.String},
				{Name: "event_name", Type: schema.String},
				{Name: "description", Type: schema.String},
				{Name: "action", Type: schema.String},
				{Name: "change_snapshot", Type: schema.String},
				{Name: "at", Type: schema.Timestamp},
				{Name: "loc", Type: schema.String},
				{Name: "is_system", Type: schema.Boolean, Default: false},
			},
		),
		Relationships: []*schema.Relationship{
			{Name: "actor", Kind: schema.HasOne, Target: "Users"},
		},
	}
}
