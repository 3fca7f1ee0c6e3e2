package orm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/schema"
)

func usersDefinition() *schema.Definition {
	def := &schema.Definition{
		Name:  "Users",
		Table: "users",
		Fields: []*schema.Field{
			schema.IDField(),
			{Name: "username", Type: schema.String, Unique: true},
			{Name: "password_hash", Type: schema.String, Private: true, Nullable: true},
			{Name: "age", Type: schema.Integer, Nullable: true, Validate: func(v any) error {
				if n, ok := v.(int); ok && n < 0 {
					return fmt.Errorf("age must not be negative")
				}
				return nil
			}},
		},
		Relationships: []*schema.Relationship{
			{Name: "company", Kind: schema.HasOne, Target: "Customers"},
			{Name: "settings", Kind: schema.HasMany, Target: "Settings"},
		},
	}
	return def
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	r.MustRegister(usersDefinition())
	r.MustRegister(&schema.Definition{
		Name:   "Customers",
		Table:  "customers",
		Public: true,
		Fields: []*schema.Field{
			schema.IDField(),
			{Name: "name", Type: schema.String},
		},
	})
	r.MustRegister(&schema.Definition{
		Name:  "Settings",
		Table: "settings",
		Fields: []*schema.Field{
			schema.IDField(),
			{Name: "key", Type: schema.String},
		},
		Relationships: []*schema.Relationship{
			{Name: "user", Kind: schema.HasOne, Target: "Users"},
		},
	})
	_, err := r.RegisterAudit(&schema.Definition{
		Name:  "AuditLog",
		Table: "auditlog",
		Fields: []*schema.Field{
			schema.IDField(),
			{Name: "event_name", Type: schema.String, Nullable: true},
		},
	})
	require.NoError(t, err)

	previous := Registry
	Registry = r
	t.Cleanup(func() { Registry = previous })
	return r
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(usersDefinition())

	id, err := r.Get("id")
	require.NoError(t, err)
	assert.Len(t, id.(string), 30)
	assert.True(t, r.Dirty())
}

func TestPrivateFieldAccess(t *testing.T) {
	r := New(usersDefinition())
	require.NoError(t, r.Set("password_hash", "secret"))

	_, err := r.Get("password_hash")
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	r.allowPrivate = true
	v, err := r.Get("password_hash")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)
}

func TestProjectionOmitsPrivateFields(t *testing.T) {
	r := New(usersDefinition())
	require.NoError(t, r.Set("username", "alice"))
	require.NoError(t, r.Set("password_hash", "secret"))

	public := r.ToDict(false)
	assert.Equal(t, "alice", public["username"])
	_, present := public["password_hash"]
	assert.False(t, present)

	private := r.ToDict(true)
	assert.Equal(t, "secret", private["password_hash"])
}

func TestProjectionFormatsTimestamps(t *testing.T) {
	def := &schema.Definition{
		Name:  "Stamps",
		Table: "stamps",
		Fields: []*schema.Field{
			schema.IDField(),
			{Name: "created_at", Type: schema.Timestamp},
		},
	}
	r := New(def)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Set("created_at", ts))

	assert.Equal(t, "2025-03-01T12:00:00Z", r.ToDict(false)["created_at"])
}

func TestSetUnknownFieldRejected(t *testing.T) {
	r := New(usersDefinition())
	require.Error(t, r.Set("nonsense", 1))
}

func TestSetRunsFieldValidator(t *testing.T) {
	r := New(usersDefinition())
	require.Error(t, r.Set("age", -3))
	require.NoError(t, r.Set("age", 30))
}

func TestSetRelationshipColumn(t *testing.T) {
	r := New(usersDefinition())
	require.NoError(t, r.Set("company_id", "some-customer-id"))
	assert.Contains(t, r.DirtyFields(), "company_id")
}

func TestRoundTripPreservesFields(t *testing.T) {
	r := New(usersDefinition())
	require.NoError(t, r.Apply(map[string]any{
		"username":      "alice",
		"password_hash": "secret",
		"age":           41,
	}))

	rebuilt := New(usersDefinition())
	require.NoError(t, rebuilt.Apply(r.ToDict(true)))

	for _, field := range []string{"id", "username", "password_hash", "age"} {
		rebuilt.allowPrivate = true
		r.allowPrivate = true
		assert.Equal(t, r.MustGet(field), rebuilt.MustGet(field), field)
	}
}

func TestDirtyFieldsFollowDeclarationOrder(t *testing.T) {
	r := New(usersDefinition())
	require.NoError(t, r.Set("age", 1))
	require.NoError(t, r.Set("username", "alice"))

	assert.Equal(t, []string{"id", "username", "age"}, r.DirtyFields())
}
