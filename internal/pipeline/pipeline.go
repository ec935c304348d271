// Package pipeline runs the derivation stages in order and records each run
// in the store.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/cohort"
	"github.com/sells-group/pfs-cli/internal/crf"
	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/export"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/pfs"
	"github.com/sells-group/pfs-cli/internal/recist"
	"github.com/sells-group/pfs-cli/internal/source"
	"github.com/sells-group/pfs-cli/internal/store"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

// Phase names, in execution order.
const (
	PhaseNormalize = "1_normalize"
	PhaseCohort    = "2_cohort"
	PhasePFS       = "3_pfs"
	PhaseRECIST    = "4_recist"
	PhasePersist   = "5_persist"
)

// Options configures every stage of a run.
type Options struct {
	Normalize  crf.Options
	Cohort     cohort.Options
	Gap        pfs.GapRange
	Thresholds recist.Thresholds
}

// Pipeline runs the PFS and response derivations over one export.
type Pipeline struct {
	store store.Store
	vocab *vocab.Set
	opts  Options
}

// New creates a Pipeline. A nil store runs without recording history.
func New(st store.Store, v *vocab.Set, opts Options) *Pipeline {
	return &Pipeline{store: st, vocab: v, opts: opts}
}

// Result is everything a run produced. On failure the fields of the stages
// that completed are set and Report holds the issues found so far.
type Result struct {
	RunID        string
	Dataset      *model.Dataset
	Cohort       *cohort.Cohort
	PFS          *pfs.Result
	Responses    []model.ResponseRecord
	Report       *diag.Report
	Summary      *model.RunSummary
	InputDigest  string
	OutputDigest string
}

// Tables renders the output tables in their fixed order.
func (r *Result) Tables() []export.Table {
	var tables []export.Table
	if r.PFS != nil {
		tables = append(tables,
			export.PFSTable(r.PFS.Records),
			export.ResponseTable(r.Responses),
			export.QCTable(r.PFS.QC),
		)
	}
	return append(tables, export.ReviewTable(r.Report.Issues()))
}

// Run executes the derivation once over the export at input.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	log := zap.L().With(zap.String("input", input))
	log.Info("pipeline: starting derivation")

	result := &Result{Report: &diag.Report{}}

	digest, err := source.Digest(input)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: digest input")
	}
	result.InputDigest = digest

	var runID string
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, input, digest)
		if err != nil {
			return result, eris.Wrap(err, "pipeline: create run")
		}
		runID = run.ID
		result.RunID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	var phases []model.PhaseResult
	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		var phase *model.RunPhase
		if p.store != nil {
			var phaseErr error
			phase, phaseErr = p.store.CreatePhase(ctx, runID, name)
			if phaseErr != nil {
				log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
			}
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if phase != nil {
			if err := p.store.CompletePhase(ctx, phase.ID, phaseResult); err != nil {
				log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
			}
		}
		phases = append(phases, *phaseResult)
		return fnErr
	}

	fail := func(err error) (*Result, error) {
		if p.store != nil {
			if saveErr := p.store.SaveIssues(ctx, runID, result.Report.Issues()); saveErr != nil {
				log.Warn("pipeline: failed to save issues", zap.Error(saveErr))
			}
			if failErr := p.store.FailRun(ctx, runID, err.Error()); failErr != nil {
				log.Warn("pipeline: failed to mark run failed", zap.Error(failErr))
			}
		}
		result.Summary = p.summarize(result, phases)
		return result, err
	}

	// ===== Phase 1: Normalize the CRF export =====
	err = trackPhase(PhaseNormalize, func() (*model.PhaseResult, error) {
		ds, err := crf.Load(ctx, input, p.opts.Normalize, result.Report)
		if err != nil {
			return nil, err
		}
		result.Dataset = ds
		return &model.PhaseResult{Metadata: map[string]any{
			"intake":           len(ds.Intake),
			"discontinuations": len(ds.Discontinuations),
			"end_of_study":     len(ds.EndOfStudy),
			"assessments":      len(ds.Assessments),
		}}, nil
	})
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: normalize"))
	}

	// ===== Phase 2: Cohort =====
	err = trackPhase(PhaseCohort, func() (*model.PhaseResult, error) {
		c, err := cohort.Build(result.Dataset, p.opts.Cohort, result.Report)
		if err != nil {
			return nil, err
		}
		result.Cohort = c
		return &model.PhaseResult{Metadata: map[string]any{"patients": c.Len()}}, nil
	})
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: cohort"))
	}

	// ===== Phase 3: PFS event table =====
	_ = trackPhase(PhasePFS, func() (*model.PhaseResult, error) {
		res := pfs.Derive(result.Cohort, result.Dataset, p.vocab, p.opts.Gap, result.Report)
		result.PFS = res
		return &model.PhaseResult{Metadata: map[string]any{
			"records":  len(res.Records),
			"events":   res.Events(),
			"excluded": len(res.Excluded),
			"qc_rows":  len(res.QC),
		}}, nil
	})

	// ===== Phase 4: RECIST responses =====
	_ = trackPhase(PhaseRECIST, func() (*model.PhaseResult, error) {
		result.Responses = recist.Derive(result.Cohort, result.Dataset, p.vocab, p.opts.Thresholds, result.Report)
		return &model.PhaseResult{Metadata: map[string]any{"records": len(result.Responses)}}, nil
	})

	// ===== Phase 5: Digest and persist =====
	err = trackPhase(PhasePersist, func() (*model.PhaseResult, error) {
		out, err := export.Digest(result.Tables()...)
		if err != nil {
			return nil, err
		}
		result.OutputDigest = out

		if p.store == nil {
			return &model.PhaseResult{Metadata: map[string]any{"persisted": false}}, nil
		}
		if err := p.store.SavePFSRecords(ctx, runID, result.PFS.Records); err != nil {
			return nil, err
		}
		if err := p.store.SaveResponseRecords(ctx, runID, result.Responses); err != nil {
			return nil, err
		}
		if err := p.store.SaveIssues(ctx, runID, result.Report.Issues()); err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{"persisted": true}}, nil
	})
	if err != nil {
		return fail(eris.Wrap(err, "pipeline: persist"))
	}

	result.Summary = p.summarize(result, phases)
	if p.store != nil {
		if err := p.store.CompleteRun(ctx, runID, result.Summary, result.OutputDigest); err != nil {
			return result, eris.Wrap(err, "pipeline: complete run")
		}
	}

	log.Info("pipeline: derivation complete",
		zap.Int("cohort", result.Summary.CohortSize),
		zap.Int("pfs_records", result.Summary.PFSRecords),
		zap.Int("events", result.Summary.Events),
		zap.Int("response_records", result.Summary.ResponseRecords),
		zap.Int("issues", result.Report.Len()),
		zap.String("output_digest", result.OutputDigest),
	)
	return result, nil
}

// Verify runs the derivation twice and fails if the two runs disagree on
// their output digest. Only the first run is recorded in the store.
func (p *Pipeline) Verify(ctx context.Context, input string) (*Result, error) {
	first, err := p.Run(ctx, input)
	if err != nil {
		return first, err
	}
	second, err := New(nil, p.vocab, p.opts).Run(ctx, input)
	if err != nil {
		return first, eris.Wrap(err, "pipeline: verify rerun")
	}
	if first.OutputDigest != second.OutputDigest {
		return first, eris.Errorf("pipeline: output is not reproducible: %s != %s", first.OutputDigest, second.OutputDigest)
	}
	zap.L().Info("pipeline: output verified", zap.String("output_digest", first.OutputDigest))
	return first, nil
}

func (p *Pipeline) summarize(r *Result, phases []model.PhaseResult) *model.RunSummary {
	s := &model.RunSummary{
		Issues: r.Report.Counts(),
		Phases: phases,
	}
	if p.vocab != nil {
		s.VocabVersions = p.vocab.Versions()
	}
	if r.Cohort != nil {
		s.CohortSize = r.Cohort.Len()
	}
	if r.PFS != nil {
		s.PFSRecords = len(r.PFS.Records)
		s.Events = r.PFS.Events()
		s.Censored = s.PFSRecords - s.Events
		s.Excluded = len(r.PFS.Excluded)
	}
	s.ResponseRecords = len(r.Responses)
	return s
}
