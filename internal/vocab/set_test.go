package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/model"
)

func loadBuiltin(t *testing.T) *Set {
	t.Helper()
	s, err := Load(Paths{})
	require.NoError(t, err)
	return s
}

func TestLoad_Builtin(t *testing.T) {
	s := loadBuiltin(t)
	v := s.Versions()
	assert.Equal(t, "2024.2", v["discontinuation_reasons"])
	assert.Len(t, v, 4)
}

func TestReason_CanonicalVocabulary(t *testing.T) {
	s := loadBuiltin(t)

	// Every canonical category maps to itself.
	for _, r := range model.Reasons {
		got, ok := s.Reason(string(r))
		assert.True(t, ok, r)
		assert.Equal(t, r, got)
	}

	// Every synonym in the table maps deterministically to its category.
	for _, e := range s.Reasons.Entries() {
		got, ok := s.Reason(e.Synonym)
		assert.True(t, ok)
		assert.Equal(t, model.Reason(e.Canonical), got)
	}
}

func TestReason_Verbatim(t *testing.T) {
	s := loadBuiltin(t)

	cases := map[string]model.Reason{
		"Progressive disease":           model.ReasonDiseaseProgression,
		"PROGRESSÃO DE DOENÇA":          model.ReasonDiseaseProgression,
		"Em tratamento":                 model.ReasonActive,
		"Toxicidade inaceitável":        model.ReasonToxicity,
		"Retirada do consentimento":     model.ReasonPatientDecision,
		"Piora clínica":                 model.ReasonWorsening,
		"Paciente submetido à cirurgia": model.ReasonSurgery,
	}
	for raw, want := range cases {
		got, ok := s.Reason(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestReason_Unmapped(t *testing.T) {
	s := loadBuiltin(t)

	for _, raw := range []string{"", "Death", "moved abroad", "Other"} {
		got, ok := s.Reason(raw)
		assert.False(t, ok, raw)
		assert.Equal(t, model.ReasonUnmapped, got, raw)
	}
}

func TestIsOtherReason(t *testing.T) {
	s := loadBuiltin(t)
	assert.True(t, s.IsOtherReason("Other"))
	assert.True(t, s.IsOtherReason("OUTRO"))
	assert.False(t, s.IsOtherReason("Progressive disease"))
}

func TestResponse(t *testing.T) {
	s := loadBuiltin(t)

	got, ok := s.Response("Progressive Disease (PD)")
	assert.True(t, ok)
	assert.Equal(t, model.ResponsePD, got)

	got, ok = s.Response("Non-CR / Non-PD")
	assert.True(t, ok)
	assert.Equal(t, model.ResponseNonCRNonPD, got)

	got, ok = s.Response("Not evaluable")
	assert.False(t, ok)
	assert.Equal(t, model.ResponseUnknown, got)
}

func TestFollowUpReason(t *testing.T) {
	s := loadBuiltin(t)

	got, ok := s.FollowUpReason("Óbito")
	assert.True(t, ok)
	assert.Equal(t, model.FollowUpDeath, got)

	got, ok = s.FollowUpReason("  ")
	assert.True(t, ok)
	assert.Equal(t, model.FollowUpNone, got)

	got, ok = s.FollowUpReason("relocated")
	assert.False(t, ok)
	assert.Equal(t, model.FollowUpUnmapped, got)
}

func TestDeathCause(t *testing.T) {
	s := loadBuiltin(t)

	got, ok := s.DeathCause("Disease Progression")
	assert.True(t, ok)
	assert.Equal(t, model.DeathCauseProgression, got)

	got, ok = s.DeathCause("")
	assert.True(t, ok)
	assert.Equal(t, model.DeathCauseNone, got)

	got, ok = s.DeathCause("sepsis")
	assert.False(t, ok)
	assert.Equal(t, model.DeathCauseUnmapped, got)
}

func TestLoad_OverrideUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reasons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: discontinuation_reasons
version: "custom"
categories:
  - canonical: Death
`), 0o644))

	_, err := Load(Paths{Reasons: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "Death"`)
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reasons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: discontinuation_reasons
version: "site-7"
categories:
  - canonical: Disease progression
    synonyms: [Tumour growth]
  - canonical: Active
`), 0o644))

	s, err := Load(Paths{Reasons: path})
	require.NoError(t, err)
	assert.Equal(t, "site-7", s.Versions()["discontinuation_reasons"])

	got, ok := s.Reason("tumour growth")
	assert.True(t, ok)
	assert.Equal(t, model.ReasonDiseaseProgression, got)
}

func TestSet_Table(t *testing.T) {
	s := loadBuiltin(t)
	for _, name := range TableNames {
		tbl, ok := s.Table(name)
		assert.True(t, ok, name)
		assert.NotNil(t, tbl)
	}
	_, ok := s.Table("nope")
	assert.False(t, ok)
}
