package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "crf.xlsx")
	zipPath := filepath.Join(dir, "crf.zip")
	csvPath := filepath.Join(dir, "intake.csv")
	txtPath := filepath.Join(dir, "notes.txt")
	for _, p := range []string{xlsxPath, zipPath, csvPath, txtPath} {
		writeTestFile(t, p, "")
	}

	f, err := DetectFormat(dir, FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = DetectFormat(xlsxPath, "")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = DetectFormat(zipPath, FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, FormatZIP, f)

	f, err = DetectFormat(txtPath, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f, "explicit format wins")

	_, err = DetectFormat(csvPath, FormatAuto)
	assert.ErrorContains(t, err, "single CSV file")

	_, err = DetectFormat(txtPath, FormatAuto)
	assert.ErrorContains(t, err, "cannot detect format")

	_, err = DetectFormat(filepath.Join(dir, "missing"), FormatAuto)
	assert.Error(t, err)
}

func TestLoad_CSVDir(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "intake.csv"), "patient_id,first_dose_date\n001-0001,2023-01-10\n")
	writeTestFile(t, filepath.Join(dir, "discontinuation.csv"), "patient_id;reason\n001-0001;DP\n")
	writeTestFile(t, filepath.Join(dir, "README.txt"), "ignored")

	b, err := Load(context.Background(), dir, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, b.Format)
	assert.Equal(t, []string{"discontinuation", "intake"}, b.Names)

	rows, ok := b.Table("Intake")
	require.True(t, ok)
	assert.Equal(t, []string{"001-0001", "2023-01-10"}, rows[1])

	rows, ok = b.Table("discontinuation")
	require.True(t, ok)
	assert.Equal(t, []string{"001-0001", "DP"}, rows[1])

	_, ok = b.Table("end_of_study")
	assert.False(t, ok)
}

func TestLoad_CSVDirEmpty(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), LoadOptions{})
	assert.ErrorContains(t, err, "no .csv files")
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, []string{"intake"}, map[string][][]string{
		"intake": {{"patient_id"}, {"001-0001"}},
	})

	b, err := Load(context.Background(), path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, b.Format)
	assert.Equal(t, path, b.Path)
	rows, ok := b.Table("intake")
	require.True(t, ok)
	assert.Len(t, rows, 2)
}

func TestLoad_ZIPOfCSV(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"intake.csv":       "patient_id\n001-0001\n",
		"end_of_study.csv": "patient_id,date\n001-0001,2023-06-01\n",
	})

	b, err := Load(context.Background(), zipPath, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatZIP, b.Format)
	assert.ElementsMatch(t, []string{"intake", "end_of_study"}, b.Names)
}

func TestLoad_ZIPWithoutTables(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"notes.txt": "hello"})

	_, err := Load(context.Background(), zipPath, LoadOptions{})
	assert.ErrorContains(t, err, "neither a single workbook nor csv tables")
}

func TestDigest_StableAndSensitive(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.csv"), "x\n1\n")
	writeTestFile(t, filepath.Join(dir, "b.csv"), "y\n2\n")

	d1, err := Digest(dir)
	require.NoError(t, err)
	d2, err := Digest(dir)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	writeTestFile(t, filepath.Join(dir, "b.csv"), "y\n3\n")
	d3, err := Digest(dir)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)

	single, err := Digest(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.NotEqual(t, d1, single)
}

func TestBundleTable_CaseInsensitiveFollowsNames(t *testing.T) {
	b := &Bundle{
		Names: []string{"INTAKE", "Intake"},
		Tables: map[string][][]string{
			"INTAKE": {{"upper"}},
			"Intake": {{"title"}},
		},
	}

	for i := 0; i < 20; i++ {
		rows, ok := b.Table("intake")
		require.True(t, ok)
		assert.Equal(t, "upper", rows[0][0])
	}

	rows, ok := b.Table("Intake")
	require.True(t, ok)
	assert.Equal(t, "title", rows[0][0], "exact name wins")

	_, ok = b.Table("discontinuation")
	assert.False(t, ok)
}
