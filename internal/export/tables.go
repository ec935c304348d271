// Package export renders the derived tables as flat files.
package export

import (
	"strconv"

	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// Table names, also used as file stems and sheet names.
const (
	TablePFS           = "pfs"
	TableResponse      = "response"
	TableProgressionQC = "progression_qc"
	TableReview        = "review"
)

// Table is a rendered output table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// pfsColumns defines the ordered PFS table columns.
var pfsColumns = []string{
	"patient_id",
	"site",
	"index_date",
	"resolved_date",
	"date_source",
	"reason",
	"time_months",
	"event",
}

// responseColumns defines the ordered response table columns.
var responseColumns = []string{
	"patient_id",
	"assessment_index",
	"evaluation_date",
	"sum_diameters",
	"baseline_sum",
	"baseline_kind",
	"nadir",
	"change_from_baseline",
	"pct_change_from_baseline",
	"change_from_nadir",
	"pct_change_from_nadir",
	"new_lesion",
	"response_code",
	"response",
	"measured_response",
	"concordant",
	"progression",
}

var qcColumns = []string{
	"patient_id",
	"discontinuation_date",
	"progression_date",
	"day_difference",
	"in_range",
}

var reviewColumns = []string{
	"patient_id",
	"assessment_index",
	"severity",
	"kind",
	"stage",
	"field",
	"value",
	"detail",
}

// PFSTable renders PFS records.
func PFSTable(recs []model.PFSRecord) Table {
	t := Table{Name: TablePFS, Columns: pfsColumns}
	for _, r := range recs {
		t.Rows = append(t.Rows, []string{
			string(r.PatientID),
			r.Site,
			r.IndexDate.Format(model.DateLayout),
			r.ResolvedDate.Format(model.DateLayout),
			string(r.DateSource),
			string(r.Reason),
			formatFloat(r.TimeMonths),
			strconv.Itoa(r.Event),
		})
	}
	return t
}

// ResponseTable renders response records.
func ResponseTable(recs []model.ResponseRecord) Table {
	t := Table{Name: TableResponse, Columns: responseColumns}
	for _, r := range recs {
		t.Rows = append(t.Rows, []string{
			string(r.PatientID),
			strconv.Itoa(r.Index),
			r.EvaluationDate.Format(model.DateLayout),
			nullFloat(r.SumDiameters),
			nullFloat(r.BaselineSum),
			string(r.BaselineKind),
			nullFloat(r.Nadir),
			nullFloat(r.ChangeFromBaseline),
			nullFloat(r.PctChangeFromBaseline),
			nullFloat(r.ChangeFromNadir),
			nullFloat(r.PctChangeFromNadir),
			strconv.FormatBool(r.NewLesion),
			r.ResponseCode,
			string(r.Response),
			string(r.MeasuredResponse),
			nullBool(r.Concordant),
			strconv.FormatBool(r.Progression),
		})
	}
	return t
}

// QCTable renders the progression gap table.
func QCTable(rows []model.ProgressionQC) Table {
	t := Table{Name: TableProgressionQC, Columns: qcColumns}
	for _, q := range rows {
		diff := ""
		if q.DayDifference.Valid {
			diff = strconv.FormatInt(q.DayDifference.Int64, 10)
		}
		t.Rows = append(t.Rows, []string{
			string(q.PatientID),
			nullDate(q.DiscontinuationDate),
			nullDate(q.ProgressionDate),
			diff,
			strconv.FormatBool(q.InRange),
		})
	}
	return t
}

// ReviewTable renders the diagnostic issues for manual review.
func ReviewTable(issues []diag.Issue) Table {
	t := Table{Name: TableReview, Columns: reviewColumns}
	for _, i := range issues {
		idx := ""
		if i.Assessment != diag.NoAssessment {
			idx = strconv.Itoa(i.Assessment)
		}
		t.Rows = append(t.Rows, []string{
			string(i.PatientID),
			idx,
			string(i.Severity),
			string(i.Kind),
			i.Stage,
			i.Field,
			i.Value,
			i.Detail,
		})
	}
	return t
}

// formatFloat uses a fixed precision so that reruns produce identical bytes.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func nullFloat(f null.Float) string {
	if !f.Valid {
		return ""
	}
	return formatFloat(f.Float64)
}

func nullBool(b null.Bool) string {
	if !b.Valid {
		return ""
	}
	return strconv.FormatBool(b.Bool)
}

func nullDate(t null.Time) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(model.DateLayout)
}
