package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/model"
)

// ReadPFSCSV parses a PFS table written by WriteCSV, for example to compare
// the output of two runs.
func ReadPFSCSV(r io.Reader) ([]model.PFSRecord, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "export: read pfs csv")
	}
	if len(records) == 0 {
		return nil, eris.New("export: pfs csv is empty")
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		colIdx[strings.TrimSpace(col)] = i
	}
	for _, col := range pfsColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("export: pfs csv missing column %q", col)
		}
	}

	out := make([]model.PFSRecord, 0, len(records)-1)
	for n, row := range records[1:] {
		line := n + 2
		index, err := time.Parse(model.DateLayout, getCol(row, colIdx, "index_date"))
		if err != nil {
			return nil, eris.Wrapf(err, "export: line %d: index_date", line)
		}
		resolved, err := time.Parse(model.DateLayout, getCol(row, colIdx, "resolved_date"))
		if err != nil {
			return nil, eris.Wrapf(err, "export: line %d: resolved_date", line)
		}
		months, err := strconv.ParseFloat(getCol(row, colIdx, "time_months"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "export: line %d: time_months", line)
		}
		event, err := strconv.Atoi(getCol(row, colIdx, "event"))
		if err != nil || (event != 0 && event != 1) {
			return nil, eris.Errorf("export: line %d: event must be 0 or 1", line)
		}
		out = append(out, model.PFSRecord{
			PatientID:    model.PatientID(getCol(row, colIdx, "patient_id")),
			Site:         getCol(row, colIdx, "site"),
			IndexDate:    index,
			ResolvedDate: resolved,
			DateSource:   model.DateSource(getCol(row, colIdx, "date_source")),
			Reason:       model.Reason(getCol(row, colIdx, "reason")),
			TimeMonths:   months,
			Event:        event,
		})
	}
	return out, nil
}

// getCol safely retrieves a column value from a CSV row.
func getCol(row []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
