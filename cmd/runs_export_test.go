package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/pfs"
)

func TestFormatPFSChanges(t *testing.T) {
	index := time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)
	before := model.PFSRecord{PatientID: "001-0002", IndexDate: index, ResolvedDate: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), TimeMonths: 4.271, Event: 0}
	after := before
	after.ResolvedDate = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	after.TimeMonths = 7.0021
	removed := model.PFSRecord{PatientID: "002-0001", IndexDate: index, ResolvedDate: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), Event: 1}

	var buf bytes.Buffer
	formatPFSChanges(&buf, []pfs.Change{
		{PatientID: "001-0002", Kind: pfs.ChangeModified, Before: &before, After: &after, Fields: []string{"resolved_date", "time_months"}},
		{PatientID: "002-0001", Kind: pfs.ChangeRemoved, Before: &removed},
	})

	output := buf.String()
	assert.Contains(t, output, "PATIENT")
	assert.Contains(t, output, "resolved_date,time_months")
	assert.Contains(t, output, "2023-01-10 -> 2023-04-01")
	assert.Contains(t, output, "4.2710 -> 7.0021")
	assert.Contains(t, output, "removed")
	assert.Contains(t, output, "2023-03-01 -> -")
	assert.Contains(t, output, "1 -> -")
}
