package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/pipeline"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

func TestFormatSummary(t *testing.T) {
	var report diag.Report
	report.Warn(diag.KindUnmappedCategory, "pfs", "001-0003", "unknown reason")
	res := &pipeline.Result{
		RunID:  "run-1",
		Report: &report,
		Summary: &model.RunSummary{
			CohortSize:      3,
			PFSRecords:      2,
			Events:          1,
			Censored:        1,
			Excluded:        1,
			ResponseRecords: 4,
			Issues:          map[string]int{"unmapped_category": 1},
		},
		OutputDigest: "deadbeef",
	}

	var buf bytes.Buffer
	formatSummary(&buf, res)

	output := buf.String()
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "Cohort:")
	assert.Contains(t, output, "Events:")
	assert.Contains(t, output, "unmapped_category:")
	assert.Contains(t, output, "deadbeef")
}

func TestFormatSummary_FailedRun(t *testing.T) {
	res := &pipeline.Result{Report: &diag.Report{}}

	var buf bytes.Buffer
	formatSummary(&buf, res)
	assert.NotContains(t, buf.String(), "Cohort:")
}

func TestFormatVocab(t *testing.T) {
	v, err := vocab.Load(vocab.Paths{})
	require.NoError(t, err)

	var buf bytes.Buffer
	formatVocabTables(&buf, v)
	for _, name := range vocab.TableNames {
		assert.Contains(t, buf.String(), name)
	}

	buf.Reset()
	formatVocabTable(&buf, v.Reasons)
	assert.Contains(t, buf.String(), "CANONICAL")
	assert.Contains(t, buf.String(), v.Reasons.Version)
}

func TestFormatUnmapped(t *testing.T) {
	var buf bytes.Buffer
	formatUnmapped(&buf, []vocab.Unmapped{
		{Table: vocab.TableReasons, Field: "reason", Value: "lost", Count: 2, Patients: []model.PatientID{"001-0001", "001-0002"}},
	})
	output := buf.String()
	assert.Contains(t, output, `"lost"`)
	assert.Contains(t, output, "001-0001,001-0002")
}

func TestFatalHint(t *testing.T) {
	assert.Empty(t, fatalHint(nil))
	assert.Empty(t, fatalHint(errors.New("open input: no such file")))

	cohortErr := fmt.Errorf("pipeline: cohort: %w", &diag.CohortIntegrityError{Expected: 120, Actual: 119})
	assert.Contains(t, fatalHint(cohortErr), "--expected-cohort")

	dupErr := fmt.Errorf("pipeline: normalize: %w", &diag.DuplicateRecordError{Table: "intake"})
	assert.Contains(t, fatalHint(dupErr), "duplicate_record")
}
