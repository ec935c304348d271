package crf

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/source"
)

// Stage is the diagnostic stage name of the normalizer.
const Stage = "normalize"

// Options configures header mapping and value parsing.
type Options struct {
	Format         string                       // source format, see source.LoadOptions
	Encoding       string                       // CSV text encoding
	Sheets         map[string]string            // logical table -> sheet or CSV file stem
	Columns        map[string]map[string]string // logical table -> field -> header
	DateLayouts    []string
	DiameterPrefix string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Format:         source.FormatAuto,
		DateLayouts:    []string{model.DateLayout, "2006-01-02 15:04:05", "02/01/2006", "01-02-06"},
		DiameterPrefix: "diameter",
	}
}

// Load reads the export at path and normalizes it.
func Load(ctx context.Context, path string, opts Options, report *diag.Report) (*model.Dataset, error) {
	b, err := source.Load(ctx, path, source.LoadOptions{Format: opts.Format, Encoding: opts.Encoding})
	if err != nil {
		return nil, err
	}
	return Normalize(b, opts, report)
}

// Normalize parses every input table of the bundle into typed records.
// Unparseable cells become null values with an invalid_value warning.
// Rows that share a key but disagree are returned as a DuplicateRecordError.
func Normalize(b *source.Bundle, opts Options, report *diag.Report) (*model.Dataset, error) {
	if len(opts.DateLayouts) == 0 {
		opts.DateLayouts = DefaultOptions().DateLayouts
	}
	if opts.DiameterPrefix == "" {
		opts.DiameterPrefix = DefaultOptions().DiameterPrefix
	}

	n := &normalizer{opts: opts, report: report, parts: make(map[assessmentKey]*assessmentParts)}
	var conflicts []diag.Issue
	var conflictTables []string

	for _, s := range schemas {
		t, err := n.table(b, s)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		rows, dups := n.unique(t)
		if len(dups) > 0 {
			conflicts = append(conflicts, dups...)
			conflictTables = append(conflictTables, s.name)
			continue
		}
		dups = n.parse(t, rows)
		if len(dups) > 0 {
			conflicts = append(conflicts, dups...)
			conflictTables = append(conflictTables, s.name)
		}
	}

	if len(conflicts) > 0 {
		for _, c := range conflicts {
			report.Add(c)
		}
		return nil, eris.Wrap(&diag.DuplicateRecordError{Table: strings.Join(conflictTables, ", "), Conflicts: conflicts}, "crf: normalize")
	}

	ds := n.dataset()
	zap.L().Info("crf: normalized input",
		zap.Int("intake", len(ds.Intake)),
		zap.Int("discontinuations", len(ds.Discontinuations)),
		zap.Int("end_of_study", len(ds.EndOfStudy)),
		zap.Int("assessments", len(ds.Assessments)),
	)
	return ds, nil
}

type normalizer struct {
	opts   Options
	report *diag.Report

	intake []model.IntakeRecord
	disc   []model.DiscontinuationRecord
	eos    []model.EndOfStudyRecord
	parts  map[assessmentKey]*assessmentParts
}

// table is one input table with its header resolved.
type table struct {
	schema    schema
	colIdx    map[string]int
	diameters []int
	rows      [][]string // data rows, header excluded
}

type row struct {
	line  int // 1-based line in the source, header is line 1
	cells []string
}

func (n *normalizer) table(b *source.Bundle, s schema) (*table, error) {
	name := s.name
	if sheet := n.opts.Sheets[s.name]; sheet != "" {
		name = sheet
	}
	rows, ok := b.Table(name)
	if !ok || len(rows) == 0 {
		if s.optional {
			zap.L().Debug("crf: table not present, treated as empty", zap.String("table", s.name), zap.String("sheet", name))
			return nil, nil
		}
		return nil, eris.Errorf("crf: required table %q (sheet %q) not found", s.name, name)
	}

	headers := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		k := headerKey(h)
		if _, dup := headers[k]; !dup && k != "" {
			headers[k] = i
		}
	}

	t := &table{schema: s, colIdx: make(map[string]int, len(s.fields)), rows: rows[1:]}
	overrides := n.opts.Columns[s.name]
	for _, field := range s.fields {
		candidates := []string{field}
		if o := overrides[field]; o != "" {
			candidates = []string{o}
		} else {
			candidates = append(candidates, aliases[field]...)
		}
		for _, c := range candidates {
			if i, ok := headers[headerKey(c)]; ok {
				t.colIdx[field] = i
				break
			}
		}
	}
	for _, field := range s.required {
		if _, ok := t.colIdx[field]; !ok {
			return nil, eris.Errorf("crf: table %s: missing required column %q", s.name, field)
		}
	}

	if s.diameters {
		prefix := headerKey(n.opts.DiameterPrefix)
		for i, h := range rows[0] {
			if strings.HasPrefix(headerKey(h), prefix) {
				t.diameters = append(t.diameters, i)
			}
		}
		if len(t.diameters) == 0 {
			return nil, eris.Errorf("crf: table %s: no %q columns", s.name, n.opts.DiameterPrefix)
		}
	}

	return t, nil
}

// getCol safely retrieves a mapped column value from a row.
func (t *table) getCol(cells []string, field string) string {
	idx, ok := t.colIdx[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func (t *table) patient(cells []string) model.PatientID {
	return model.NormalizePatientID(t.getCol(cells, FieldPatientID))
}

// dateFields and flagFields are compared by parsed value when rows are
// de-duplicated, so that one date written in two layouts is the same value.
var (
	dateFields = map[string]bool{
		FieldFirstDoseDate: true, FieldDate: true, FieldRadiological: true,
		FieldBiological: true, FieldClinical: true, FieldEvaluationDate: true,
	}
	flagFields = map[string]bool{
		FieldRECISTProgression: true, FieldFollowUpContinued: true,
		FieldNonTarget: true, FieldNewLesion: true,
	}
)

// canonical renders a cell the way it will be parsed. Cells that do not
// parse keep their text and are reported when the row is converted.
func (n *normalizer) canonical(field, raw string) string {
	switch {
	case field == FieldPatientID:
		return string(model.NormalizePatientID(raw))
	case field == FieldAssessmentIndex:
		if idx, err := parseIndex(raw); err == nil {
			return strconv.Itoa(idx)
		}
	case dateFields[field]:
		if d, err := parseDate(raw, n.opts.DateLayouts); err == nil {
			if !d.Valid {
				return ""
			}
			return d.Time.Format(model.DateLayout)
		}
	case flagFields[field]:
		if b, err := parseBool(raw); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return raw
}

func canonicalNumber(raw string) string {
	v, err := parseNumber(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

func (t *table) diameter(cells []string, i int) string {
	if i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

// signature is the parsed content of a row, used to collapse exact duplicates.
func (n *normalizer) signature(t *table, cells []string) string {
	parts := make([]string, 0, len(t.schema.fields)+len(t.diameters))
	for _, f := range t.schema.fields {
		parts = append(parts, n.canonical(f, t.getCol(cells, f)))
	}
	for _, i := range t.diameters {
		parts = append(parts, canonicalNumber(t.diameter(cells, i)))
	}
	return strings.Join(parts, "\x1f")
}

// key groups rows by patient and, for assessment tables, by index. An index
// that does not parse is kept as text and reported later.
func (n *normalizer) key(t *table, cells []string) string {
	k := string(t.patient(cells))
	if t.schema.indexed {
		k += "\x1f" + n.canonical(FieldAssessmentIndex, t.getCol(cells, FieldAssessmentIndex))
	}
	return k
}

// blank reports whether no mapped cell of the row holds a value.
func (t *table) blank(cells []string) bool {
	for _, f := range t.schema.fields {
		if t.getCol(cells, f) != "" {
			return false
		}
	}
	for _, i := range t.diameters {
		if t.diameter(cells, i) != "" {
			return false
		}
	}
	return true
}

// unique skips blank rows, collapses identical duplicates and reports keys
// whose rows disagree. A row with data but no patient id is dropped with an
// invalid_value warning.
func (n *normalizer) unique(t *table) ([]row, []diag.Issue) {
	type seen struct {
		line int
		sig  string
	}
	first := make(map[string]seen)
	var out []row
	var conflicts []diag.Issue
	reported := make(map[string]bool)

	for i, cells := range t.rows {
		r := row{line: i + 2, cells: cells}
		if t.patient(cells) == "" {
			if !t.blank(cells) {
				assessment := diag.NoAssessment
				if t.schema.baseline {
					assessment = model.BaselineIndex
				} else if idx, err := parseIndex(t.getCol(cells, FieldAssessmentIndex)); t.schema.indexed && err == nil {
					assessment = idx
				}
				n.invalid(t, r, "", assessment, FieldPatientID, "", eris.New("row has data but no patient id"))
			}
			continue
		}
		key, sig := n.key(t, cells), n.signature(t, cells)
		prev, ok := first[key]
		if !ok {
			first[key] = seen{line: r.line, sig: sig}
			out = append(out, r)
			continue
		}
		if prev.sig == sig {
			zap.L().Debug("crf: collapsed identical duplicate row",
				zap.String("table", t.schema.name), zap.Int("line", r.line), zap.Int("first", prev.line))
			continue
		}
		if reported[key] {
			continue
		}
		reported[key] = true
		issue := diag.Issue{
			Kind:       diag.KindDuplicateRecord,
			Severity:   diag.SeverityError,
			Stage:      Stage,
			PatientID:  t.patient(cells),
			Assessment: diag.NoAssessment,
			Field:      "table",
			Value:      t.schema.name,
			Detail:     fmt.Sprintf("lines %d and %d share a key but differ", prev.line, r.line),
		}
		if t.schema.indexed {
			if idx, err := parseIndex(t.getCol(cells, FieldAssessmentIndex)); err == nil {
				issue.Assessment = idx
			}
		}
		conflicts = append(conflicts, issue)
	}
	return out, conflicts
}

func (n *normalizer) invalid(t *table, r row, patient model.PatientID, assessment int, field, value string, err error) {
	n.report.Add(diag.Issue{
		Kind:       diag.KindInvalidValue,
		Severity:   diag.SeverityWarning,
		Stage:      Stage,
		PatientID:  patient,
		Assessment: assessment,
		Field:      field,
		Value:      value,
		Detail:     fmt.Sprintf("%s line %d: %s", t.schema.name, r.line, err.Error()),
	})
}

func (n *normalizer) date(t *table, r row, patient model.PatientID, assessment int, field string) null.Time {
	raw := t.getCol(r.cells, field)
	d, err := parseDate(raw, n.opts.DateLayouts)
	if err != nil {
		n.invalid(t, r, patient, assessment, field, raw, err)
	}
	return d
}

func (n *normalizer) flag(t *table, r row, patient model.PatientID, assessment int, field string) bool {
	raw := t.getCol(r.cells, field)
	v, err := parseBool(raw)
	if err != nil {
		n.invalid(t, r, patient, assessment, field, raw, err)
	}
	return v
}

// sum adds the diameter columns of a row. A row with no diameters is null;
// a row with an unreadable diameter is null too, so that a partial sum is
// never mistaken for the tumour burden.
func (n *normalizer) sum(t *table, r row, patient model.PatientID, assessment int) null.Float {
	var total float64
	var measured bool
	for _, i := range t.diameters {
		if i >= len(r.cells) {
			continue
		}
		v, err := parseNumber(r.cells[i])
		if err != nil {
			n.invalid(t, r, patient, assessment, "diameter", r.cells[i], err)
			return null.Float{}
		}
		if v.Valid {
			total += v.Float64
			measured = true
		}
	}
	if !measured {
		return null.Float{}
	}
	return null.FloatFrom(total)
}

// parse converts the unique rows of a table. Assessment tables are merged
// into n.parts; conflicts between a baseline table and index 0 rows of the
// matching post-baseline table are returned.
func (n *normalizer) parse(t *table, rows []row) []diag.Issue {
	var conflicts []diag.Issue
	for _, r := range rows {
		patient := t.patient(r.cells)
		switch t.schema.name {
		case TableIntake:
			d := n.date(t, r, patient, diag.NoAssessment, FieldFirstDoseDate)
			rec := model.IntakeRecord{PatientID: patient, HasFirstDose: d.Valid}
			if d.Valid {
				rec.FirstDoseDate = d.Time
			}
			n.intake = append(n.intake, rec)

		case TableDiscontinuation:
			n.disc = append(n.disc, model.DiscontinuationRecord{
				PatientID:               patient,
				Date:                    n.date(t, r, patient, diag.NoAssessment, FieldDate),
				ReasonCode:              t.getCol(r.cells, FieldReason),
				OtherReason:             t.getCol(r.cells, FieldOtherReason),
				RadiologicalProgression: n.date(t, r, patient, diag.NoAssessment, FieldRadiological),
				BiologicalProgression:   n.date(t, r, patient, diag.NoAssessment, FieldBiological),
				ClinicalProgression:     n.date(t, r, patient, diag.NoAssessment, FieldClinical),
				RECISTProgression:       n.flag(t, r, patient, diag.NoAssessment, FieldRECISTProgression),
			})

		case TableEndOfStudy:
			n.eos = append(n.eos, model.EndOfStudyRecord{
				PatientID:         patient,
				Date:              n.date(t, r, patient, diag.NoAssessment, FieldDate),
				FollowUpContinued: n.flag(t, r, patient, diag.NoAssessment, FieldFollowUpContinued),
				FollowUpReason:    t.getCol(r.cells, FieldFollowUpReason),
				DeathCause:        t.getCol(r.cells, FieldDeathCause),
			})

		default:
			if issue, ok := n.assessment(t, r, patient); !ok {
				conflicts = append(conflicts, issue)
			}
		}
	}
	return conflicts
}
