package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func samplePFS() []model.PFSRecord {
	return []model.PFSRecord{
		{
			PatientID:    "001-0001",
			Site:         "001",
			IndexDate:    day("2022-09-01"),
			ResolvedDate: day("2023-02-10"),
			DateSource:   model.DateSourceProgression,
			Reason:       model.ReasonDiseaseProgression,
			TimeMonths:   162 / (365.25 / 12),
			Event:        1,
		},
		{
			PatientID:    "002-0003",
			Site:         "002",
			IndexDate:    day("2022-10-01"),
			ResolvedDate: day("2023-04-01"),
			DateSource:   model.DateSourceLastAssessment,
			Reason:       model.ReasonActive,
			TimeMonths:   182 / (365.25 / 12),
		},
	}
}

func TestPFSTable_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, PFSTable(samplePFS())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "patient_id,site,index_date,resolved_date,date_source,reason,time_months,event", lines[0])
	assert.Equal(t, "001-0001,001,2022-09-01,2023-02-10,progression,Disease progression,5.3224,1", lines[1])
	assert.Equal(t, "002-0003,002,2022-10-01,2023-04-01,last_assessment,Active,5.9795,0", lines[2])
}

func TestReadPFSCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, PFSTable(samplePFS())))

	recs, err := ReadPFSCSV(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, model.PatientID("001-0001"), recs[0].PatientID)
	assert.Equal(t, day("2023-02-10"), recs[0].ResolvedDate)
	assert.InDelta(t, 5.3224, recs[0].TimeMonths, 1e-9)
	assert.Equal(t, 1, recs[0].Event)
	assert.Equal(t, model.DateSourceLastAssessment, recs[1].DateSource)
}

func TestReadPFSCSV_Errors(t *testing.T) {
	_, err := ReadPFSCSV(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty")

	_, err = ReadPFSCSV(strings.NewReader("patient_id,event\nA,1\n"))
	assert.ErrorContains(t, err, "missing column")

	header := strings.Join(pfsColumns, ",")
	_, err = ReadPFSCSV(strings.NewReader(header + "\nA,A,2022-09-01,2023-01-01,progression,x,1.0,2\n"))
	assert.ErrorContains(t, err, "event must be 0 or 1")

	_, err = ReadPFSCSV(strings.NewReader(header + "\nA,A,01/09/2022,2023-01-01,progression,x,1.0,1\n"))
	assert.ErrorContains(t, err, "index_date")
}

func TestResponseTable_Nulls(t *testing.T) {
	tbl := ResponseTable([]model.ResponseRecord{{
		PatientID:        "E",
		Index:            1,
		EvaluationDate:   day("2023-01-01"),
		SumDiameters:     null.FloatFrom(20),
		BaselineKind:     model.BaselineNonMeasurable,
		Nadir:            null.FloatFrom(20),
		ChangeFromNadir:  null.FloatFrom(0),
		Response:         model.ResponseUnknown,
		MeasuredResponse: model.ResponseUnknown,
	}})
	require.Len(t, tbl.Rows, 1)
	row := tbl.Rows[0]
	require.Len(t, row, len(responseColumns))
	assert.Equal(t, "20.0000", row[3])
	assert.Equal(t, "", row[4], "null baseline is empty, not zero")
	assert.Equal(t, "non_measurable", row[5])
	assert.Equal(t, "0.0000", row[9])
	assert.Equal(t, "", row[10])
	assert.Equal(t, "", row[15], "unknown concordance")
}

func TestQCAndReviewTables(t *testing.T) {
	qc := QCTable([]model.ProgressionQC{
		{PatientID: "A", DiscontinuationDate: null.TimeFrom(day("2023-02-20")), ProgressionDate: null.TimeFrom(day("2023-02-10")), DayDifference: null.IntFrom(10), InRange: true},
		{PatientID: "B"},
	})
	assert.Equal(t, []string{"A", "2023-02-20", "2023-02-10", "10", "true"}, qc.Rows[0])
	assert.Equal(t, []string{"B", "", "", "", "false"}, qc.Rows[1])

	review := ReviewTable([]diag.Issue{
		{Kind: diag.KindDataGap, Severity: diag.SeverityError, Stage: "censoring", PatientID: "D", Assessment: diag.NoAssessment, Detail: "no date"},
		{Kind: diag.KindUnmappedCategory, Severity: diag.SeverityWarning, Stage: "response", PatientID: "R", Assessment: 2, Field: "response", Value: "NE", Detail: "unmapped"},
	})
	assert.Equal(t, "", review.Rows[0][1])
	assert.Equal(t, "2", review.Rows[1][1])
	assert.Equal(t, "unmapped_category", review.Rows[1][3])
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	tables := []Table{PFSTable(samplePFS()), ReviewTable(nil)}

	paths, err := WriteAll(dir, FormatBoth, tables...)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.FileExists(t, filepath.Join(dir, "pfs.csv"))
	assert.FileExists(t, filepath.Join(dir, "review.csv"))

	wb, err := xlsx.OpenFile(filepath.Join(dir, WorkbookName))
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, "pfs", wb.Sheets[0].Name)
	assert.Equal(t, "001-0001", wb.Sheets[0].Rows[1].Cells[0].String())

	data, err := os.ReadFile(filepath.Join(dir, "review.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(reviewColumns, ",")+"\n", string(data))

	_, err = WriteAll(dir, "pdf", tables...)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestDigest(t *testing.T) {
	a, err := Digest(PFSTable(samplePFS()), ResponseTable(nil))
	require.NoError(t, err)
	b, err := Digest(PFSTable(samplePFS()), ResponseTable(nil))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := samplePFS()
	changed[1].Event = 1
	c, err := Digest(PFSTable(changed), ResponseTable(nil))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestWriteCSVFile(t *testing.T) {
	dir := t.TempDir()
	var want bytes.Buffer
	require.NoError(t, WriteCSV(&want, PFSTable(samplePFS())))

	path, err := WriteCSVFile(dir, PFSTable(samplePFS()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, TablePFS+".csv"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got), "file is complete once WriteCSVFile returns")

	_, err = WriteCSVFile(filepath.Join(dir, "missing"), PFSTable(samplePFS()))
	assert.ErrorContains(t, err, "export: create file")
}
