package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cohortforge/platform/pkg/codelist"
	"github.com/cohortforge/platform/pkg/cohort"
	"github.com/cohortforge/platform/pkg/common/logger"
	"github.com/cohortforge/platform/pkg/common/models"
	"github.com/cohortforge/platform/pkg/curation"
	"github.com/cohortforge/platform/pkg/dataset"
	"github.com/cohortforge/platform/pkg/report"
	"github.com/cohortforge/platform/pkg/temporal"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Runner executes study pipelines: assemble and resolve demographic assets,
// build the cohort, attach covariates and outcomes, combine and export.
type Runner struct {
	assembler   *curation.Assembler
	curationCfg curation.Config
	codes       codelist.Provider
	repo        *RunRepository
	reporter    report.Reporter
	writer      *dataset.Writer
	exportDir   string
	workers     chan struct{}
}

type RunnerOption func(*Runner)

func WithReporter(r report.Reporter) RunnerOption {
	return func(runner *Runner) { runner.reporter = r }
}

func WithDatasetWriter(w *dataset.Writer) RunnerOption {
	return func(runner *Runner) { runner.writer = w }
}

func WithExportDir(dir string) RunnerOption {
	return func(runner *Runner) { runner.exportDir = dir }
}

func NewRunner(assembler *curation.Assembler, cfg curation.Config, codes codelist.Provider, repo *RunRepository, maxWorkers int, opts ...RunnerOption) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	runner := &Runner{
		assembler:   assembler,
		curationCfg: cfg,
		codes:       codes,
		repo:        repo,
		exportDir:   "./exports",
		workers:     make(chan struct{}, maxWorkers),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner
}

// Enqueue validates the study configuration, records a queued run and starts
// it in the background. Configuration errors surface here, before any data is
// read.
func (r *Runner) Enqueue(ctx context.Context, study StudySpec, requestedBy string) (models.PipelineRun, error) {
	if err := study.Validate(); err != nil {
		return models.PipelineRun{}, err
	}
	if err := r.checkAssetReferences(study); err != nil {
		return models.PipelineRun{}, err
	}

	jobID := uuid.New()
	model := &runModel{
		ID:          jobID,
		Study:       study.Name,
		Status:      runStatusQueued,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, model); err != nil {
		return models.PipelineRun{}, err
	}

	go r.run(jobID, study)

	return modelToDomain(model), nil
}

// checkAssetReferences verifies every asset the study names against the
// curation configuration: existence, preferred-source overrides, and that the
// asset's kind matches the role it is named for.
func (r *Runner) checkAssetReferences(study StudySpec) error {
	demographic := []string{study.Demographics.DOBAsset, study.Demographics.SexAsset}
	if study.Demographics.EthnicityAsset != "" {
		demographic = append(demographic, study.Demographics.EthnicityAsset)
	}
	if study.Demographics.LSOAAsset != "" {
		demographic = append(demographic, study.Demographics.LSOAAsset)
	}
	if study.IndexDateAsset != "" {
		demographic = append(demographic, study.IndexDateAsset)
	}

	for _, name := range demographic {
		if err := r.checkAsset(study, name, curation.AssetKindDemographic); err != nil {
			return err
		}
	}
	for _, name := range study.EventAssets {
		if err := r.checkAsset(study, name, curation.AssetKindEvent); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) checkAsset(study StudySpec, name, wantKind string) error {
	asset, err := r.curationCfg.Asset(name)
	if err != nil {
		return err
	}
	if asset.Kind != wantKind {
		return fmt.Errorf("study %s: asset %s has kind %q, cannot serve a %s role", study.Name, name, asset.Kind, wantKind)
	}
	if _, err := curation.ApplyPreferredSource(asset, study.PreferredSources[name]); err != nil {
		return err
	}
	return nil
}

func (r *Runner) run(jobID uuid.UUID, study StudySpec) {
	r.workers <- struct{}{}
	defer func() { <-r.workers }()

	ctx := context.Background()
	started := time.Now().UTC()
	_ = r.repo.Update(ctx, jobID, map[string]interface{}{
		"status":     runStatusRunning,
		"started_at": started,
	})

	runReport, cohortSize, err := r.execute(ctx, jobID.String(), study)
	if err != nil {
		r.fail(ctx, jobID, err)
		return
	}

	reportJSON, _ := json.Marshal(runReport)
	completed := time.Now().UTC()
	_ = r.repo.Update(ctx, jobID, map[string]interface{}{
		"status":        runStatusCompleted,
		"cohort_size":   cohortSize,
		"report":        datatypes.JSON(reportJSON),
		"completed_at":  completed,
		"error_message": "",
	})
}

func (r *Runner) fail(ctx context.Context, jobID uuid.UUID, err error) {
	logger.Log.WithError(err).Error("Pipeline run failed")
	completed := time.Now().UTC()
	_ = r.repo.Update(ctx, jobID, map[string]interface{}{
		"status":        runStatusFailed,
		"error_message": err.Error(),
		"completed_at":  completed,
	})
}

func (r *Runner) execute(ctx context.Context, runID string, study StudySpec) (*report.RunReport, int, error) {
	runReport := &report.RunReport{Study: study.Name}

	dob, err := r.resolveAsset(ctx, runID, study, study.Demographics.DOBAsset, runReport)
	if err != nil {
		return nil, 0, err
	}
	sex, err := r.resolveAsset(ctx, runID, study, study.Demographics.SexAsset, runReport)
	if err != nil {
		return nil, 0, err
	}
	var ethnicity, lsoa *curation.Table
	if study.Demographics.EthnicityAsset != "" {
		if ethnicity, err = r.resolveAsset(ctx, runID, study, study.Demographics.EthnicityAsset, runReport); err != nil {
			return nil, 0, err
		}
	}
	if study.Demographics.LSOAAsset != "" {
		if lsoa, err = r.resolveAsset(ctx, runID, study, study.Demographics.LSOAAsset, runReport); err != nil {
			return nil, 0, err
		}
	}

	demographics := cohort.CombineDemographics(dob, sex, ethnicity, lsoa)

	indexDates, err := r.indexDates(ctx, runID, study, runReport)
	if err != nil {
		return nil, 0, err
	}

	members, cohortReport, err := cohort.Generate(demographics, indexDates, cohort.Restrictions{
		MinAge:                study.Restrictions.MinAge,
		MaxAge:                study.Restrictions.MaxAge,
		RequireKnownSex:       study.Restrictions.RequireKnownSex,
		RequireKnownEthnicity: study.Restrictions.RequireKnownEthnicity,
		RequireLSOA:           study.Restrictions.RequireLSOA,
	})
	if err != nil {
		return nil, 0, err
	}
	runReport.Cohort = cohortReport
	r.report(ctx, runID, report.StageCohort, cohortReport)

	events, err := r.assembleEvents(ctx, runID, study, members, runReport)
	if err != nil {
		return nil, 0, err
	}

	covariates, outcomes, err := r.generateResults(ctx, runID, study, events, members, runReport)
	if err != nil {
		return nil, 0, err
	}

	analysis, err := dataset.Combine(members, covariates, outcomes)
	if err != nil {
		return nil, 0, err
	}

	if err := r.export(ctx, runID, study, analysis); err != nil {
		return nil, 0, err
	}

	r.report(ctx, runID, report.StageRun, map[string]interface{}{
		"study":       study.Name,
		"cohort_size": len(members),
		"covariates":  len(covariates),
		"outcomes":    len(outcomes),
	})
	return runReport, len(members), nil
}

// resolveAsset assembles one demographic-style asset across its sources,
// runs any configured conflict checks on the long-format table, and resolves
// it to one row per patient.
func (r *Runner) resolveAsset(ctx context.Context, runID string, study StudySpec, name string, runReport *report.RunReport) (*curation.Table, error) {
	asset, err := r.curationCfg.Asset(name)
	if err != nil {
		return nil, err
	}
	asset, err = curation.ApplyPreferredSource(asset, study.PreferredSources[name])
	if err != nil {
		return nil, err
	}

	table, assemblyReport, err := r.assembler.Assemble(ctx, asset, nil)
	if assemblyReport != nil {
		runReport.Assemblies = append(runReport.Assemblies, *assemblyReport)
		r.report(ctx, runID, report.StageAssembly, assemblyReport)
	}
	if err != nil {
		return nil, err
	}

	for _, check := range study.ConflictChecks {
		if check.Asset != name {
			continue
		}
		if conflictReport := curation.CheckConflicts(table, check.Column); conflictReport != nil {
			runReport.Conflicts = append(runReport.Conflicts, conflictReport)
			r.report(ctx, runID, report.StageConflicts, conflictReport)
		}
	}

	return curation.Resolve(table), nil
}

func (r *Runner) indexDates(ctx context.Context, runID string, study StudySpec, runReport *report.RunReport) (cohort.IndexDates, error) {
	if study.IndexDate != "" {
		date, err := time.Parse("2006-01-02", study.IndexDate)
		if err != nil {
			return cohort.IndexDates{}, fmt.Errorf("study %s: invalid index_date: %w", study.Name, err)
		}
		return cohort.FixedIndexDate(date), nil
	}

	table, err := r.resolveAsset(ctx, runID, study, study.IndexDateAsset, runReport)
	if err != nil {
		return cohort.IndexDates{}, err
	}
	dates := make(map[string]time.Time, table.Len())
	for _, rec := range table.Records {
		if v := rec.Value(FieldIndexDate); v.Date != nil {
			dates[rec.PatientID] = *v.Date
		}
	}
	return cohort.PerPatientIndexDates(dates), nil
}

// assembleEvents unions every configured event asset, restricted to cohort
// patients at the source.
func (r *Runner) assembleEvents(ctx context.Context, runID string, study StudySpec, members []cohort.Member, runReport *report.RunReport) ([]temporal.ClinicalEvent, error) {
	if len(study.EventAssets) == 0 {
		return nil, nil
	}
	patientIDs := make([]string, 0, len(members))
	for _, m := range members {
		patientIDs = append(patientIDs, m.PatientID)
	}

	var events []temporal.ClinicalEvent
	for _, name := range study.EventAssets {
		asset, err := r.curationCfg.Asset(name)
		if err != nil {
			return nil, err
		}
		asset, err = curation.ApplyPreferredSource(asset, study.PreferredSources[name])
		if err != nil {
			return nil, err
		}
		table, assemblyReport, err := r.assembler.Assemble(ctx, asset, patientIDs)
		if assemblyReport != nil {
			runReport.Assemblies = append(runReport.Assemblies, *assemblyReport)
			r.report(ctx, runID, report.StageAssembly, assemblyReport)
		}
		if err != nil {
			return nil, err
		}
		events = append(events, temporal.EventsFromTable(table)...)
	}
	return events, nil
}

// generateResults computes every covariate and outcome. Each generation reads
// the shared cohort and event collections and writes a disjoint slot, so they
// run concurrently.
func (r *Runner) generateResults(ctx context.Context, runID string, study StudySpec, events []temporal.ClinicalEvent, members []cohort.Member, runReport *report.RunReport) ([]dataset.NamedResult, []dataset.NamedResult, error) {
	covariates := make([]dataset.NamedResult, len(study.Covariates))
	covariateReports := make([]*report.CoverageReport, len(study.Covariates))
	outcomes := make([]dataset.NamedResult, len(study.Outcomes))
	outcomeReports := make([]*report.CoverageReport, len(study.Outcomes))
	errs := make([]error, len(study.Covariates)+len(study.Outcomes))

	var wg sync.WaitGroup
	for i, spec := range study.Covariates {
		wg.Add(1)
		go func(i int, spec CovariateSpec) {
			defer wg.Done()
			codes, err := r.codeSet(ctx, spec.Name)
			if err != nil {
				errs[i] = err
				return
			}
			results, coverage, err := temporal.GenerateCovariate(events, members, codes, spec.Name, spec.Window(), temporal.SelectionMethod(spec.Method))
			if err != nil {
				errs[i] = err
				return
			}
			covariates[i] = dataset.NamedResult{Name: spec.Name, Results: results}
			covariateReports[i] = coverage
		}(i, spec)
	}
	for i, spec := range study.Outcomes {
		wg.Add(1)
		go func(i int, spec OutcomeSpec) {
			defer wg.Done()
			codes, err := r.codeSet(ctx, spec.Name)
			if err != nil {
				errs[len(study.Covariates)+i] = err
				return
			}
			results, coverage, err := temporal.GenerateOutcome(events, members, codes, spec.Name, spec.Window(), temporal.SelectionMethod(spec.Method))
			if err != nil {
				errs[len(study.Covariates)+i] = err
				return
			}
			outcomes[i] = dataset.NamedResult{Name: spec.Name, Results: results}
			outcomeReports[i] = coverage
		}(i, spec)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	for _, coverage := range covariateReports {
		runReport.Covariates = append(runReport.Covariates, *coverage)
		r.report(ctx, runID, report.StageCovariate, coverage)
	}
	for _, coverage := range outcomeReports {
		runReport.Outcomes = append(runReport.Outcomes, *coverage)
		r.report(ctx, runID, report.StageOutcome, coverage)
	}
	return covariates, outcomes, nil
}

// codeSet resolves the codes for a semantic name through the configured
// provider.
func (r *Runner) codeSet(ctx context.Context, name string) (map[string]struct{}, error) {
	codes, err := r.codes.CodeSet(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving codes for %s: %w", name, err)
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set, nil
}

func (r *Runner) export(ctx context.Context, runID string, study StudySpec, analysis *dataset.AnalysisTable) error {
	if study.Export.CSV {
		if err := os.MkdirAll(r.exportDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(r.exportDir, fmt.Sprintf("%s-%s.csv", study.Name, runID))
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := dataset.WriteCSV(file, analysis); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		logger.Log.WithField("path", path).Info("Analysis dataset exported")
	}

	if study.Export.Table != "" {
		if r.writer == nil {
			return fmt.Errorf("study %s: export table configured but no dataset writer", study.Name)
		}
		if err := r.writer.Write(ctx, study.Export.Table, analysis); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) report(ctx context.Context, runID, stage string, detail interface{}) {
	if r.reporter == nil {
		return
	}
	if err := r.reporter.Report(ctx, report.Event{RunID: runID, Stage: stage, Detail: detail}); err != nil {
		logger.Log.WithError(err).WithField("stage", stage).Warn("Reporter failed")
	}
}
