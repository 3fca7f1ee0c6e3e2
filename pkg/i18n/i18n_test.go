package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/apperrors"
)

func writeCatalogue(t *testing.T, dir, language, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, language+".json"), []byte(content), 0o644))
}

func loadFixture(t *testing.T) *Catalogue {
	t.Helper()
	dir := t.TempDir()
	writeCatalogue(t, dir, "en", `{
		"greeting": "Hello",
		"validationErrors": {"required": "This field is required"},
		"inbox": {
			"messages": {
				"zero": "No messages",
				"one": "One message",
				"few": "A few messages",
				"many": "{count} messages"
			}
		}
	}`)
	writeCatalogue(t, dir, "de", `{"greeting": "Hallo"}`)

	c, err := Load(dir, "en")
	require.NoError(t, err)
	return c
}

func TestLoadMissingDirectory(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent"), "en")
	require.NoError(t, err)
	assert.Empty(t, c.Languages())
}

func TestTranslateDottedKey(t *testing.T) {
	c := loadFixture(t)

	msg, err := c.Translate("en", "validationErrors.required")
	require.NoError(t, err)
	assert.Equal(t, "This field is required", msg)
}

func TestTranslateFallsBackToDefaultLanguage(t *testing.T) {
	c := loadFixture(t)

	msg, err := c.Translate("de", "validationErrors.required")
	require.NoError(t, err)
	assert.Equal(t, "This field is required", msg)

	msg, err = c.Translate("de", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", msg)
}

func TestTranslateMissingKey(t *testing.T) {
	c := loadFixture(t)

	_, err := c.Translate("en", "greeting.nested.absent")
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	assert.Equal(t, "no.such.key", c.TranslateOr("en", "no.such.key"))
}

func TestPluralBuckets(t *testing.T) {
	c := loadFixture(t)

	tests := []struct {
		count int
		want  string
	}{
		{0, "No messages"},
		{1, "One message"},
		{2, "A few messages"},
		{4, "A few messages"},
		{5, "5 messages"},
		{100, "100 messages"},
	}

	for _, tt := range tests {
		msg, err := c.Plural("en", "inbox.messages", tt.count)
		require.NoError(t, err)
		assert.Equal(t, tt.want, msg)
	}
}

func TestPluralFallsBackToMany(t *testing.T) {
	dir := t.TempDir()
	writeCatalogue(t, dir, "en", `{"items": {"many": "{count} items"}}`)
	c, err := Load(dir, "en")
	require.NoError(t, err)

	msg, err := c.Plural("en", "items", 1)
	require.NoError(t, err)
	assert.Equal(t, "1 items", msg)
}

func TestNegotiate(t *testing.T) {
	c := loadFixture(t)

	assert.Equal(t, "de", c.Negotiate("de-DE,de;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", c.Negotiate("fr-FR,fr;q=0.9"))
	assert.Equal(t, "en", c.Negotiate(""))
}
