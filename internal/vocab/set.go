package vocab

import (
	"embed"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/model"
)

//go:embed tables/*.yaml
var builtinFS embed.FS

// Table names.
const (
	TableReasons   = "reasons"
	TableResponses = "responses"
	TableFollowUp  = "followup"
	TableDeath     = "death"
)

// TableNames lists the tables of a Set in display order.
var TableNames = []string{TableReasons, TableResponses, TableFollowUp, TableDeath}

// Paths holds optional override files; empty paths use the embedded tables.
type Paths struct {
	Reasons   string
	Responses string
	FollowUp  string
	Death     string
}

// Set bundles the four tables used by a derivation run.
type Set struct {
	Reasons   *Table
	Responses *Table
	FollowUp  *Table
	Death     *Table
}

// Builtin returns the embedded table with the given name.
func Builtin(name string) (*Table, error) {
	data, err := builtinFS.ReadFile("tables/" + name + ".yaml")
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: no builtin table %q", name)
	}
	return Parse(data)
}

// Load builds a Set from the embedded tables and any override files, then
// checks that every canonical category is known to the derivation.
func Load(p Paths) (*Set, error) {
	load := func(name, path string) (*Table, error) {
		if path != "" {
			return LoadFile(path)
		}
		return Builtin(name)
	}

	var s Set
	var err error
	if s.Reasons, err = load(TableReasons, p.Reasons); err != nil {
		return nil, err
	}
	if s.Responses, err = load(TableResponses, p.Responses); err != nil {
		return nil, err
	}
	if s.FollowUp, err = load(TableFollowUp, p.FollowUp); err != nil {
		return nil, err
	}
	if s.Death, err = load(TableDeath, p.Death); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every canonical category of every table is one the
// derivation knows how to handle.
func (s *Set) Validate() error {
	check := func(t *Table, known []string) error {
		for _, c := range t.canonical {
			if !slices.Contains(known, c) {
				return eris.Errorf("vocab: table %s: unknown category %q", t.Name, c)
			}
		}
		return nil
	}

	reasons := make([]string, len(model.Reasons))
	for i, r := range model.Reasons {
		reasons[i] = string(r)
	}
	responses := make([]string, len(model.ResponseCategories))
	for i, r := range model.ResponseCategories {
		responses[i] = string(r)
	}
	followUp := make([]string, len(model.FollowUpReasons))
	for i, r := range model.FollowUpReasons {
		followUp[i] = string(r)
	}
	death := make([]string, len(model.DeathCauses))
	for i, r := range model.DeathCauses {
		death[i] = string(r)
	}

	if err := check(s.Reasons, reasons); err != nil {
		return err
	}
	if err := check(s.Responses, responses); err != nil {
		return err
	}
	if err := check(s.FollowUp, followUp); err != nil {
		return err
	}
	return check(s.Death, death)
}

// Table returns a table by name.
func (s *Set) Table(name string) (*Table, bool) {
	switch name {
	case TableReasons:
		return s.Reasons, true
	case TableResponses:
		return s.Responses, true
	case TableFollowUp:
		return s.FollowUp, true
	case TableDeath:
		return s.Death, true
	}
	return nil, false
}

// Versions returns the version of each table keyed by table name.
func (s *Set) Versions() map[string]string {
	return map[string]string{
		s.Reasons.Name:   s.Reasons.Version,
		s.Responses.Name: s.Responses.Version,
		s.FollowUp.Name:  s.FollowUp.Version,
		s.Death.Name:     s.Death.Version,
	}
}

// Reason maps a discontinuation reason. Unknown or empty values return
// ReasonUnmapped and false.
func (s *Set) Reason(raw string) (model.Reason, bool) {
	c, ok := s.Reasons.Lookup(raw)
	if !ok {
		return model.ReasonUnmapped, false
	}
	return model.Reason(c), true
}

// IsOtherReason reports whether raw is the "Other" discontinuation code.
func (s *Set) IsOtherReason(raw string) bool {
	return s.Reasons.IsOther(raw)
}

// Response maps an overall response code. Unknown or empty values return
// ResponseUnknown and false.
func (s *Set) Response(raw string) (model.ResponseCategory, bool) {
	c, ok := s.Responses.Lookup(raw)
	if !ok {
		return model.ResponseUnknown, false
	}
	return model.ResponseCategory(c), true
}

// FollowUpReason maps a follow-up termination reason. An empty value is a
// valid "no reason recorded" and returns FollowUpNone and true.
func (s *Set) FollowUpReason(raw string) (model.FollowUpReason, bool) {
	if Fold(raw) == "" {
		return model.FollowUpNone, true
	}
	c, ok := s.FollowUp.Lookup(raw)
	if !ok {
		return model.FollowUpUnmapped, false
	}
	return model.FollowUpReason(c), true
}

// DeathCause maps a cause-of-death category. An empty value returns
// DeathCauseNone and true.
func (s *Set) DeathCause(raw string) (model.DeathCause, bool) {
	if Fold(raw) == "" {
		return model.DeathCauseNone, true
	}
	c, ok := s.Death.Lookup(raw)
	if !ok {
		return model.DeathCauseUnmapped, false
	}
	return model.DeathCause(c), true
}
