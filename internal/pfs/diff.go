package pfs

import (
	"math"
	"sort"

	"github.com/sells-group/pfs-cli/internal/model"
)

// ChangeKind classifies a difference between two PFS tables.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "changed"
)

// monthsTolerance matches the four decimals written to the PFS table.
const monthsTolerance = 0.00005

// Change is one patient whose PFS row differs between two tables.
type Change struct {
	PatientID model.PatientID
	Kind      ChangeKind
	Before    *model.PFSRecord
	After     *model.PFSRecord
	Fields    []string // changed columns, ChangeModified only
}

// Diff compares two PFS tables patient by patient. The result is sorted by
// patient.
func Diff(before, after []model.PFSRecord) []Change {
	old := make(map[model.PatientID]*model.PFSRecord, len(before))
	for i := range before {
		old[before[i].PatientID] = &before[i]
	}
	cur := make(map[model.PatientID]*model.PFSRecord, len(after))
	for i := range after {
		cur[after[i].PatientID] = &after[i]
	}

	var out []Change
	for id, b := range old {
		a, ok := cur[id]
		if !ok {
			out = append(out, Change{PatientID: id, Kind: ChangeRemoved, Before: b})
			continue
		}
		if fields := changedFields(b, a); len(fields) > 0 {
			out = append(out, Change{PatientID: id, Kind: ChangeModified, Before: b, After: a, Fields: fields})
		}
	}
	for id, a := range cur {
		if _, ok := old[id]; !ok {
			out = append(out, Change{PatientID: id, Kind: ChangeAdded, After: a})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

func changedFields(b, a *model.PFSRecord) []string {
	var fields []string
	if b.Site != a.Site {
		fields = append(fields, "site")
	}
	if !b.IndexDate.Equal(a.IndexDate) {
		fields = append(fields, "index_date")
	}
	if !b.ResolvedDate.Equal(a.ResolvedDate) {
		fields = append(fields, "resolved_date")
	}
	if b.DateSource != a.DateSource {
		fields = append(fields, "date_source")
	}
	if b.Reason != a.Reason {
		fields = append(fields, "reason")
	}
	if math.Abs(b.TimeMonths-a.TimeMonths) >= monthsTolerance {
		fields = append(fields, "time_months")
	}
	if b.Event != a.Event {
		fields = append(fields, "event")
	}
	return fields
}
