package item

import (
	"fmt"
	"strings"
	"text/template"
	"unicode"
)

// KeyFormat renders series keys from item metadata.
type KeyFormat struct {
	source string
	tmpl   *template.Template
}

// ParseKeyFormat compiles a text/template over Meta, e.g.
// "{{.StudyDate}}-{{.StudyID}}-{{.SeriesNumber}}".
func ParseKeyFormat(format string) (*KeyFormat, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		return nil, fmt.Errorf("key format is empty")
	}
	tmpl, err := template.New("series_key").Option("missingkey=error").Parse(format)
	if err != nil {
		return nil, fmt.Errorf("parse key format: %w", err)
	}
	// Surface references to unknown fields now rather than per item.
	if err := tmpl.Execute(&strings.Builder{}, Meta{}); err != nil {
		return nil, fmt.Errorf("key format %q: %w", format, err)
	}
	return &KeyFormat{source: format, tmpl: tmpl}, nil
}

func (k *KeyFormat) String() string { return k.source }

// Render executes the template against meta.
func (k *KeyFormat) Render(meta Meta) (string, error) {
	var b strings.Builder
	if err := k.tmpl.Execute(&b, meta); err != nil {
		return "", fmt.Errorf("render series key: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Key is a pure key function for the series registry. A key that cannot be
// rendered comes back empty so the registry rejects the item.
func (k *KeyFormat) Key(it Item) string {
	key, err := k.Render(it.Meta)
	if err != nil {
		return ""
	}
	return key
}

// SafeName maps a series key to a single path element. Separators and
// characters outside letters, digits, '-', '_' and '.' become '_', and a
// leading dot is replaced so results never collide with in-progress
// ".name" directories.
func SafeName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if strings.HasPrefix(name, ".") {
		name = "_" + name[1:]
	}
	return name
}
