package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestReadCSV_SniffSemicolon(t *testing.T) {
	input := "patient_id;sum_diameters\n001-0001;42,5\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"001-0001", "42,5"}, rows[1])
}

func TestReadCSV_ExplicitDelimiter(t *testing.T) {
	input := "a|b\n1|2\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestReadCSV_TrimSpace(t *testing.T) {
	input := " a , b \n 1 , 2 \n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rows[0])
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestReadCSV_UTF8BOMStripped(t *testing.T) {
	input := "\ufeffpatient_id,date\n001-0001,2023-01-01\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "patient_id", rows[0][0])
}

func TestReadCSV_Windows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("motivo,Progressão\n")
	require.NoError(t, err)

	rows, err := ReadCSV(context.Background(), strings.NewReader(encoded), CSVOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Progressão", rows[0][1])
}

func TestReadCSV_UnsupportedEncoding(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{Encoding: "ebcdic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestReadCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadCSV_MalformedQuote(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,\"b\nc"), CSVOptions{})
	require.Error(t, err)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', SniffDelimiter("a;b;c"))
	assert.Equal(t, ',', SniffDelimiter("a,b;c,d"))
	assert.Equal(t, ',', SniffDelimiter("single"))
}
