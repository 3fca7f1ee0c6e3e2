// Package i18n loads per-language JSON catalogues and resolves dotted
// translation keys, with plural form selection for counted messages.
//
// A catalogue directory holds one file per language (en.json, de.json).
// Values are nested objects; a leaf is either a string or a plural object
// with zero/one/few/many branches. Validation messages use their translation
// key as the message, so the pipeline translates them just before the
// response is built.
package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/log"
)

// Catalogue holds every loaded language keyed by its file stem.
type Catalogue struct {
	languages       map[string]map[string]any
	defaultLanguage string
}

// Load reads every *.json file in dir. A missing directory yields an empty
// catalogue, which translates nothing but is not an error.
func Load(dir, defaultLanguage string) (*Catalogue, error) {
	c := &Catalogue{
		languages:       make(map[string]map[string]any),
		defaultLanguage: defaultLanguage,
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.WithComponent("i18n").Warn().Str("dir", dir).Msg("No translation directory")
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read i18n dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		language := strings.TrimSuffix(entry.Name(), ".json")
		c.languages[language] = tree
	}
	return c, nil
}

// Languages returns the loaded language codes.
func (c *Catalogue) Languages() []string {
	out := make([]string, 0, len(c.languages))
	for lang := range c.languages {
		out = append(out, lang)
	}
	return out
}

// Translate resolves a dotted key in the given language, falling back to the
// default language, and fails with a missing-key error when neither has it.
func (c *Catalogue) Translate(language, key string) (string, error) {
	if msg, ok := c.lookup(language, key); ok {
		return msg, nil
	}
	if language != c.defaultLanguage {
		if msg, ok := c.lookup(c.defaultLanguage, key); ok {
			return msg, nil
		}
	}
	return "", apperrors.TranslationKeyMissing(key)
}

// TranslateOr resolves a key, returning the key itself when no translation
// exists. Error paths use it so a missing catalogue entry never masks the
// original failure.
func (c *Catalogue) TranslateOr(language, key string) string {
	msg, err := c.Translate(language, key)
	if err != nil {
		return key
	}
	return msg
}

// Plural resolves a counted message. The leaf must be a plural object; the
// branch is chosen by count (zero, one, few for count < 5, else many) with
// many as the fallback. {count} interpolates the number.
func (c *Catalogue) Plural(language, key string, count int) (string, error) {
	node, ok := c.lookupNode(language, key)
	if !ok {
		node, ok = c.lookupNode(c.defaultLanguage, key)
	}
	if !ok {
		return "", apperrors.TranslationKeyMissing(key)
	}
	forms, ok := node.(map[string]any)
	if !ok {
		return "", fmt.Errorf("translation %s has no plural forms", key)
	}

	var branch string
	switch {
	case count == 0:
		branch = "zero"
	case count == 1:
		branch = "one"
	case count < 5:
		branch = "few"
	default:
		branch = "many"
	}
	msg, ok := forms[branch].(string)
	if !ok {
		msg, ok = forms["many"].(string)
	}
	if !ok {
		return "", apperrors.TranslationKeyMissing(key + "." + branch)
	}
	return strings.ReplaceAll(msg, "{count}", fmt.Sprintf("%d", count)), nil
}

func (c *Catalogue) lookup(language, key string) (string, bool) {
	node, ok := c.lookupNode(language, key)
	if !ok {
		return "", false
	}
	msg, ok := node.(string)
	return msg, ok
}

func (c *Catalogue) lookupNode(language, key string) (any, bool) {
	tree, ok := c.languages[language]
	if !ok {
		return nil, false
	}
	var node any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Negotiate picks the response language from an Accept-Language header,
// falling back to the default. Only the primary subtag is honoured.
func (c *Catalogue) Negotiate(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		lang := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if lang == "" {
			continue
		}
		lang = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
		if _, ok := c.languages[lang]; ok {
			return lang
		}
	}
	return c.defaultLanguage
}
