package dataset

import (
	"fmt"

	"github.com/cohortforge/platform/pkg/cohort"
	"github.com/cohortforge/platform/pkg/temporal"
)

// NamedResult is one covariate's or outcome's result set, keyed by the stable
// identifier it was generated under.
type NamedResult struct {
	Name    string
	Results []temporal.Result
}

// Row is one cohort member with every covariate and outcome result attached,
// keyed by identifier rather than by constructed column names.
type Row struct {
	Member     cohort.Member
	Covariates map[string]temporal.Result
	Outcomes   map[string]temporal.Result
}

// AnalysisTable is the final wide analysis dataset: exactly one row per
// cohort member.
type AnalysisTable struct {
	CovariateNames []string
	OutcomeNames   []string
	Rows           []Row
}

// Combine left-joins the cohort with every covariate and outcome result set.
// Result sets are keyed by patient; a member missing from a result set gets
// an explicit all-false result rather than a missing row. Duplicate
// identifiers are a configuration error.
func Combine(members []cohort.Member, covariates, outcomes []NamedResult) (*AnalysisTable, error) {
	names := make(map[string]struct{}, len(covariates)+len(outcomes))
	for _, set := range append(append([]NamedResult{}, covariates...), outcomes...) {
		if set.Name == "" {
			return nil, fmt.Errorf("result set with empty name")
		}
		if _, ok := names[set.Name]; ok {
			return nil, fmt.Errorf("duplicate covariate/outcome name %q", set.Name)
		}
		names[set.Name] = struct{}{}
	}

	covariateIndex := indexResults(covariates)
	outcomeIndex := indexResults(outcomes)

	table := &AnalysisTable{
		CovariateNames: resultNames(covariates),
		OutcomeNames:   resultNames(outcomes),
		Rows:           make([]Row, 0, len(members)),
	}
	for _, member := range members {
		row := Row{
			Member:     member,
			Covariates: make(map[string]temporal.Result, len(covariates)),
			Outcomes:   make(map[string]temporal.Result, len(outcomes)),
		}
		for _, name := range table.CovariateNames {
			row.Covariates[name] = lookupResult(covariateIndex[name], member)
		}
		for _, name := range table.OutcomeNames {
			row.Outcomes[name] = lookupResult(outcomeIndex[name], member)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func indexResults(sets []NamedResult) map[string]map[string]temporal.Result {
	index := make(map[string]map[string]temporal.Result, len(sets))
	for _, set := range sets {
		byPatient := make(map[string]temporal.Result, len(set.Results))
		for _, result := range set.Results {
			byPatient[result.PatientID] = result
		}
		index[set.Name] = byPatient
	}
	return index
}

func resultNames(sets []NamedResult) []string {
	names := make([]string, 0, len(sets))
	for _, set := range sets {
		names = append(names, set.Name)
	}
	return names
}

func lookupResult(byPatient map[string]temporal.Result, member cohort.Member) temporal.Result {
	if result, ok := byPatient[member.PatientID]; ok {
		return result
	}
	return temporal.Result{PatientID: member.PatientID, IndexDate: member.IndexDate}
}
