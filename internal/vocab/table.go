// Package vocab holds the versioned lookup tables that collapse the verbatim
// strings typed into the case report forms into canonical categories.
//
// Lookups are total: every string either matches a synonym of the table or is
// reported as unmapped. Nothing is guessed.
package vocab

import (
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Table maps folded synonyms to canonical categories.
type Table struct {
	Name    string
	Version string

	canonical []string
	index     map[string]string
	other     map[string]bool
}

// Entry is one synonym of a table, used for display.
type Entry struct {
	Synonym   string
	Canonical string
}

type tableFile struct {
	Name       string   `yaml:"name"`
	Version    string   `yaml:"version"`
	OtherCodes []string `yaml:"other_codes"`
	Categories []struct {
		Canonical string   `yaml:"canonical"`
		Synonyms  []string `yaml:"synonyms"`
	} `yaml:"categories"`
}

// Parse builds a table from its YAML form. A synonym that folds to the same
// key as a synonym of another category is rejected.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "vocab: parse table")
	}
	if f.Name == "" {
		return nil, eris.New("vocab: table has no name")
	}
	if f.Version == "" {
		return nil, eris.Errorf("vocab: table %s has no version", f.Name)
	}
	if len(f.Categories) == 0 {
		return nil, eris.Errorf("vocab: table %s has no categories", f.Name)
	}

	t := &Table{
		Name:    f.Name,
		Version: f.Version,
		index:   make(map[string]string),
		other:   make(map[string]bool),
	}
	for _, c := range f.Categories {
		if strings.TrimSpace(c.Canonical) == "" {
			return nil, eris.Errorf("vocab: table %s has a category without canonical name", f.Name)
		}
		t.canonical = append(t.canonical, c.Canonical)

		// The canonical name always maps to itself.
		for _, syn := range append([]string{c.Canonical}, c.Synonyms...) {
			key := Fold(syn)
			if key == "" {
				continue
			}
			if prev, ok := t.index[key]; ok && prev != c.Canonical {
				return nil, eris.Errorf("vocab: table %s: %q maps to both %q and %q", f.Name, syn, prev, c.Canonical)
			}
			t.index[key] = c.Canonical
		}
	}
	for _, code := range f.OtherCodes {
		t.other[Fold(code)] = true
	}
	return t, nil
}

// LoadFile reads a table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read %s", path)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: load %s", path)
	}
	return t, nil
}

// Lookup returns the canonical category of raw. The boolean is false when the
// value is empty or not in the table.
func (t *Table) Lookup(raw string) (string, bool) {
	key := Fold(raw)
	if key == "" {
		return "", false
	}
	c, ok := t.index[key]
	return c, ok
}

// IsOther reports whether raw is one of the table's "see free text" codes.
func (t *Table) IsOther(raw string) bool {
	return t.other[Fold(raw)]
}

// Canonical returns the canonical categories in table order.
func (t *Table) Canonical() []string {
	out := make([]string, len(t.canonical))
	copy(out, t.canonical)
	return out
}

// Entries returns every folded synonym with its category, sorted by category
// then synonym.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.index))
	for k, c := range t.index {
		out = append(out, Entry{Synonym: k, Canonical: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Canonical != out[j].Canonical {
			return out[i].Canonical < out[j].Canonical
		}
		return out[i].Synonym < out[j].Synonym
	})
	return out
}

// Fold reduces a free-text value to its lookup key: accents removed,
// case-folded, typographic apostrophes straightened and whitespace collapsed.
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(chain, s); err == nil {
		s = out
	}
	s = cases.Fold().String(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
