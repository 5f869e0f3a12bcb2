package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/cohortforge/platform/pkg/cohort"
	"github.com/cohortforge/platform/pkg/curation"
	"github.com/cohortforge/platform/pkg/report"
	"github.com/cohortforge/platform/pkg/temporal"
)

type fakeCodeProvider struct {
	sets     map[string][]string
	resolved []string
}

func (p *fakeCodeProvider) CodeSet(ctx context.Context, name string) ([]string, error) {
	p.resolved = append(p.resolved, name)
	return p.sets[name], nil
}

func TestGenerateResultsResolvesCodesThroughProvider(t *testing.T) {
	provider := &fakeCodeProvider{sets: map[string][]string{"diabetes": {"E11"}}}
	r := &Runner{codes: provider}

	index := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	members := []cohort.Member{{
		PatientID:   "P1",
		IndexDate:   index,
		DateOfBirth: time.Date(1950, 5, 15, 0, 0, 0, 0, time.UTC),
		AgeAtIndex:  73.6,
	}}
	events := []temporal.ClinicalEvent{
		{PatientID: "P1", EventDate: index.AddDate(0, 0, -100), Code: "E11", Terminology: "ICD10"},
	}
	study := StudySpec{
		Name:       "diabetes-study",
		Covariates: []CovariateSpec{{Name: "diabetes", DaysBeforeEnd: 0, Method: "min"}},
	}

	covariates, outcomes, err := r.generateResults(context.Background(), "run-1", study, events, members, &report.RunReport{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(outcomes))
	}
	if len(covariates) != 1 || !covariates[0].Results[0].Flag {
		t.Fatalf("covariate not generated from provider codes: %+v", covariates)
	}
	if len(provider.resolved) != 1 || provider.resolved[0] != "diabetes" {
		t.Fatalf("code set must resolve through the provider, resolved %v", provider.resolved)
	}
}

func runnerConfig() curation.Config {
	return curation.Config{Assets: []curation.AssetConfig{
		{Name: "date_of_birth", Kind: curation.AssetKindDemographic},
		{Name: "sex", Kind: curation.AssetKindDemographic},
		{Name: "hospital_admissions", Kind: curation.AssetKindEvent},
	}}
}

func TestCheckAssetReferencesKindMatchesRole(t *testing.T) {
	r := &Runner{curationCfg: runnerConfig()}

	if err := r.checkAssetReferences(validStudy()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	study := validStudy()
	study.Demographics.DOBAsset = "hospital_admissions"
	if err := r.checkAssetReferences(study); err == nil {
		t.Fatal("expected error when an event asset serves a demographic role")
	}

	study = validStudy()
	study.EventAssets = []string{"sex"}
	if err := r.checkAssetReferences(study); err == nil {
		t.Fatal("expected error when a demographic asset is listed under event_assets")
	}

	study = validStudy()
	study.Demographics.DOBAsset = "blood_pressure"
	if err := r.checkAssetReferences(study); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}
