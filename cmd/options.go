package main

import (
	"github.com/sells-group/pfs-cli/internal/cohort"
	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/crf"
	"github.com/sells-group/pfs-cli/internal/pfs"
	"github.com/sells-group/pfs-cli/internal/pipeline"
	"github.com/sells-group/pfs-cli/internal/recist"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// normalizeOptions maps the input section of the config to normalizer options.
func normalizeOptions(c *config.Config) crf.Options {
	return crf.Options{
		Format:         c.Input.Format,
		Encoding:       c.Input.Encoding,
		Sheets:         c.Input.Sheets,
		Columns:        c.Input.Columns,
		DateLayouts:    c.Input.DateLayouts,
		DiameterPrefix: c.Input.DiameterPrefix,
	}
}

func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		Normalize: normalizeOptions(c),
		Cohort: cohort.Options{
			ExpectedSize:  c.Cohort.ExpectedSize,
			Withdrawn:     c.Cohort.Withdrawn,
			SitePrefixLen: c.Cohort.SitePrefixLen,
		},
		Gap: pfs.GapRange{
			MinDays: c.QC.ProgressionGapMinDays,
			MaxDays: c.QC.ProgressionGapMaxDays,
		},
		Thresholds: recist.Thresholds{
			PRPct:           c.RECIST.PRThresholdPct,
			PDPct:           c.RECIST.PDThresholdPct,
			PDMinIncreaseMM: c.RECIST.PDMinIncreaseMM,
		},
	}
}

func vocabPaths(c *config.Config) vocab.Paths {
	return vocab.Paths{
		Reasons:   c.Vocab.ReasonsPath,
		Responses: c.Vocab.ResponsesPath,
		FollowUp:  c.Vocab.FollowUpPath,
		Death:     c.Vocab.DeathPath,
	}
}
