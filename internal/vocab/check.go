package vocab

import (
	"sort"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Unmapped is a raw value that no table maps, with how often it occurs.
type Unmapped struct {
	Table    string
	Field    string
	Value    string
	Count    int
	Patients []model.PatientID
}

// Check reports every coded value of the dataset that its table cannot map.
// Empty values are not reported. The result is sorted by table, field and
// value.
func (s *Set) Check(ds *model.Dataset) []Unmapped {
	type key struct{ table, field, value string }
	found := make(map[key]*Unmapped)
	add := func(table, field, value string, p model.PatientID) {
		k := key{table, field, value}
		u, ok := found[k]
		if !ok {
			u = &Unmapped{Table: table, Field: field, Value: value}
			found[k] = u
		}
		u.Count++
		if n := len(u.Patients); n == 0 || u.Patients[n-1] != p {
			u.Patients = append(u.Patients, p)
		}
	}

	for _, d := range ds.Discontinuations {
		switch {
		case Fold(d.ReasonCode) == "":
		case s.IsOtherReason(d.ReasonCode):
			if _, ok := s.Reason(d.OtherReason); !ok && Fold(d.OtherReason) != "" {
				add(TableReasons, "other_reason", d.OtherReason, d.PatientID)
			}
		default:
			if _, ok := s.Reason(d.ReasonCode); !ok {
				add(TableReasons, "reason", d.ReasonCode, d.PatientID)
			}
		}
	}
	for _, e := range ds.EndOfStudy {
		if _, ok := s.FollowUpReason(e.FollowUpReason); !ok {
			add(TableFollowUp, "follow_up_reason", e.FollowUpReason, e.PatientID)
		}
		if _, ok := s.DeathCause(e.DeathCause); !ok {
			add(TableDeath, "death_cause", e.DeathCause, e.PatientID)
		}
	}
	for _, a := range ds.Assessments {
		if Fold(a.ResponseCode) == "" {
			continue
		}
		if _, ok := s.Response(a.ResponseCode); !ok {
			add(TableResponses, "response", a.ResponseCode, a.PatientID)
		}
	}

	out := make([]Unmapped, 0, len(found))
	for _, u := range found {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Value < out[j].Value
	})
	return out
}
