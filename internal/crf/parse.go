package crf

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/guregu/null.v3"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Excel serial day numbers accepted as dates: 1900-01-01 through 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// parseDate accepts the configured layouts, then Excel serial day numbers
// (workbooks exported without a date format). Empty input is a null date.
func parseDate(raw string, layouts []string) (null.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return null.Time{}, nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return null.TimeFrom(model.Date(t)), nil
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= minExcelSerial && f <= maxExcelSerial {
		return null.TimeFrom(model.Date(xlsx.TimeFromExcelTime(f, false))), nil
	}
	return null.Time{}, eris.Errorf("unrecognised date %q", raw)
}

var (
	trueWords  = map[string]bool{"1": true, "true": true, "yes": true, "y": true, "sim": true, "s": true, "x": true, "checked": true}
	falseWords = map[string]bool{"": true, "0": true, "false": true, "no": true, "n": true, "nao": true, "unchecked": true}
)

// parseBool reads checkbox-style values in English and Portuguese.
func parseBool(raw string) (bool, error) {
	k := vocab.Fold(raw)
	switch {
	case trueWords[k]:
		return true, nil
	case falseWords[k]:
		return false, nil
	}
	return false, eris.Errorf("unrecognised yes/no value %q", raw)
}

// parseNumber reads a measurement in millimetres. A lone comma is taken as
// the decimal mark and a trailing "mm" unit is dropped.
func parseNumber(raw string) (null.Float, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return null.Float{}, nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(s), "mm"))
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}, eris.Errorf("unrecognised number %q", raw)
	}
	if f < 0 {
		return null.Float{}, eris.Errorf("negative measurement %q", raw)
	}
	return null.FloatFrom(f), nil
}

// parseIndex reads an assessment index. Spreadsheets often store it as "2.0".
func parseIndex(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, eris.Errorf("unrecognised assessment index %q", raw)
	}
	return int(f), nil
}
