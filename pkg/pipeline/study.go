package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cohortforge/platform/pkg/temporal"
	"gopkg.in/yaml.v3"
)

// Value field carried by a per-patient index date asset.
const FieldIndexDate = "index_date"

type DemographicsSpec struct {
	DOBAsset       string `yaml:"dob_asset" json:"dob_asset"`
	SexAsset       string `yaml:"sex_asset" json:"sex_asset"`
	EthnicityAsset string `yaml:"ethnicity_asset" json:"ethnicity_asset"`
	LSOAAsset      string `yaml:"lsoa_asset" json:"lsoa_asset"`
}

type RestrictionsSpec struct {
	MinAge                *float64 `yaml:"min_age" json:"min_age"`
	MaxAge                *float64 `yaml:"max_age" json:"max_age"`
	RequireKnownSex       bool     `yaml:"require_known_sex" json:"require_known_sex"`
	RequireKnownEthnicity bool     `yaml:"require_known_ethnicity" json:"require_known_ethnicity"`
	RequireLSOA           bool     `yaml:"require_lsoa" json:"require_lsoa"`
}

type CovariateSpec struct {
	Name            string `yaml:"name" json:"name"`
	DaysBeforeStart *int   `yaml:"days_before_start" json:"days_before_start"`
	DaysBeforeEnd   int    `yaml:"days_before_end" json:"days_before_end"`
	Method          string `yaml:"method" json:"method"`
}

func (c CovariateSpec) Window() temporal.Lookback {
	return temporal.Lookback{DaysBeforeStart: c.DaysBeforeStart, DaysBeforeEnd: c.DaysBeforeEnd}
}

type OutcomeSpec struct {
	Name           string `yaml:"name" json:"name"`
	DaysAfterStart int    `yaml:"days_after_start" json:"days_after_start"`
	DaysAfterEnd   *int   `yaml:"days_after_end" json:"days_after_end"`
	Method         string `yaml:"method" json:"method"`
}

func (o OutcomeSpec) Window() temporal.FollowUp {
	return temporal.FollowUp{DaysAfterStart: o.DaysAfterStart, DaysAfterEnd: o.DaysAfterEnd}
}

type ConflictCheckSpec struct {
	Asset  string `yaml:"asset" json:"asset"`
	Column string `yaml:"column" json:"column"`
}

type ExportSpec struct {
	CSV   bool   `yaml:"csv" json:"csv"`
	Table string `yaml:"table" json:"table"`
}

// StudySpec declares one end-to-end curation run: which assets feed the
// cohort, the index date, eligibility restrictions and the covariates and
// outcomes to attach.
type StudySpec struct {
	Name             string              `yaml:"name" json:"name"`
	IndexDate        string              `yaml:"index_date" json:"index_date"`
	IndexDateAsset   string              `yaml:"index_date_asset" json:"index_date_asset"`
	Demographics     DemographicsSpec    `yaml:"demographics" json:"demographics"`
	Restrictions     RestrictionsSpec    `yaml:"restrictions" json:"restrictions"`
	PreferredSources map[string]string   `yaml:"preferred_sources" json:"preferred_sources"`
	EventAssets      []string            `yaml:"event_assets" json:"event_assets"`
	Covariates       []CovariateSpec     `yaml:"covariates" json:"covariates"`
	Outcomes         []OutcomeSpec       `yaml:"outcomes" json:"outcomes"`
	ConflictChecks   []ConflictCheckSpec `yaml:"conflict_checks" json:"conflict_checks"`
	Export           ExportSpec          `yaml:"export" json:"export"`
}

func LoadStudy(path string) (StudySpec, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return StudySpec{}, err
	}
	var study StudySpec
	if err := yaml.Unmarshal(content, &study); err != nil {
		return StudySpec{}, err
	}
	if err := study.Validate(); err != nil {
		return StudySpec{}, err
	}
	return study, nil
}

// Validate applies every configuration check that can run before data is
// touched: window ordering, selection methods, index date shape and name
// uniqueness all fail fast here.
func (s StudySpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("study has no name")
	}
	if s.IndexDate == "" && s.IndexDateAsset == "" {
		return fmt.Errorf("study %s: one of index_date or index_date_asset is required", s.Name)
	}
	if s.IndexDate != "" && s.IndexDateAsset != "" {
		return fmt.Errorf("study %s: index_date and index_date_asset are mutually exclusive", s.Name)
	}
	if s.IndexDate != "" {
		if _, err := time.Parse("2006-01-02", s.IndexDate); err != nil {
			return fmt.Errorf("study %s: invalid index_date %q: %w", s.Name, s.IndexDate, err)
		}
	}
	if s.Demographics.DOBAsset == "" {
		return fmt.Errorf("study %s: demographics.dob_asset is required", s.Name)
	}
	if s.Demographics.SexAsset == "" {
		return fmt.Errorf("study %s: demographics.sex_asset is required", s.Name)
	}

	names := make(map[string]struct{}, len(s.Covariates)+len(s.Outcomes))
	for _, cov := range s.Covariates {
		if cov.Name == "" {
			return fmt.Errorf("study %s: covariate with no name", s.Name)
		}
		if _, ok := names[cov.Name]; ok {
			return fmt.Errorf("study %s: duplicate covariate/outcome name %q", s.Name, cov.Name)
		}
		names[cov.Name] = struct{}{}
		if err := cov.Window().Validate(); err != nil {
			return fmt.Errorf("study %s: covariate %s: %w", s.Name, cov.Name, err)
		}
		if _, err := temporal.ParseSelectionMethod(cov.Method); err != nil {
			return fmt.Errorf("study %s: covariate %s: %w", s.Name, cov.Name, err)
		}
	}
	for _, out := range s.Outcomes {
		if out.Name == "" {
			return fmt.Errorf("study %s: outcome with no name", s.Name)
		}
		if _, ok := names[out.Name]; ok {
			return fmt.Errorf("study %s: duplicate covariate/outcome name %q", s.Name, out.Name)
		}
		names[out.Name] = struct{}{}
		if err := out.Window().Validate(); err != nil {
			return fmt.Errorf("study %s: outcome %s: %w", s.Name, out.Name, err)
		}
		if _, err := temporal.ParseSelectionMethod(out.Method); err != nil {
			return fmt.Errorf("study %s: outcome %s: %w", s.Name, out.Name, err)
		}
	}

	if (len(s.Covariates) > 0 || len(s.Outcomes) > 0) && len(s.EventAssets) == 0 {
		return fmt.Errorf("study %s: covariates/outcomes configured but no event_assets", s.Name)
	}
	return nil
}
