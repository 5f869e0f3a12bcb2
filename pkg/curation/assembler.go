package curation

import (
	"context"
	"fmt"
	"time"

	"github.com/cohortforge/platform/pkg/common/logger"
	"github.com/cohortforge/platform/pkg/report"
)

// SourceFetcher retrieves raw rows for one configured source. Implementations
// translate the column mapping into whatever the backing store needs and
// return rows keyed by internal field name.
type SourceFetcher interface {
	Fetch(ctx context.Context, table string, columns map[string]string, patientIDs []string) ([]map[string]interface{}, error)
}

// Assembler builds an asset's long-format table by retrieving every
// configured source, tagging rows with source metadata and concatenating them
// in configured source order.
type Assembler struct {
	fetcher SourceFetcher
}

func NewAssembler(fetcher SourceFetcher) *Assembler {
	return &Assembler{fetcher: fetcher}
}

// Assemble merges all configured sources for one asset. A source that errors
// or returns zero rows is skipped with a warning; the asset only fails when
// every source fails.
func (a *Assembler) Assemble(ctx context.Context, asset AssetConfig, patientIDs []string) (*Table, *report.AssemblyReport, error) {
	rep := &report.AssemblyReport{Asset: asset.Name}
	table := &Table{Asset: asset.Name}

	for _, src := range asset.Sources {
		rows, err := a.fetcher.Fetch(ctx, src.Table, src.Columns, patientIDs)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"asset":  asset.Name,
				"source": src.Name,
			}).Warn("Source unreachable, skipping")
			rep.Sources = append(rep.Sources, report.SourceOutcome{
				Source:  src.Name,
				Skipped: true,
				Reason:  err.Error(),
			})
			continue
		}
		if len(rows) == 0 {
			logger.Log.WithFields(map[string]interface{}{
				"asset":  asset.Name,
				"source": src.Name,
			}).Warn("Source returned no rows, skipping")
			rep.Sources = append(rep.Sources, report.SourceOutcome{
				Source:  src.Name,
				Skipped: true,
				Reason:  "no rows",
			})
			continue
		}

		added := a.appendSource(table, asset, src, rows)
		rep.Sources = append(rep.Sources, report.SourceOutcome{Source: src.Name, Rows: added})
	}

	if allSkipped(rep.Sources) {
		return nil, rep, fmt.Errorf("asset %s: every configured source failed", asset.Name)
	}

	rep.RowCount = table.Len()
	rep.Patients = len(table.PatientIDs())
	return table, rep, nil
}

// appendSource tags each row with source metadata and appends it to the
// table. Demographic assets carry at most one row per (patient, source), so
// duplicates are dropped keeping the first; event assets keep every row.
func (a *Assembler) appendSource(table *Table, asset AssetConfig, src SourceConfig, rows []map[string]interface{}) int {
	seen := make(map[string]struct{}, len(rows))
	added := 0
	for _, row := range rows {
		patientID := asText(row["patient_id"])
		if patientID == "" {
			continue
		}
		if asset.Kind == AssetKindDemographic {
			if _, ok := seen[patientID]; ok {
				logger.Log.WithFields(map[string]interface{}{
					"source":     src.Name,
					"patient_id": patientID,
				}).Warn("Duplicate patient row within source, keeping first")
				continue
			}
			seen[patientID] = struct{}{}
		}

		values := make(map[string]Value, len(row))
		for field, raw := range row {
			if field == "patient_id" {
				continue
			}
			values[field] = asValue(raw)
		}

		table.Records = append(table.Records, LongFormatRecord{
			PatientID:         patientID,
			SourceName:        src.Name,
			SourcePriority:    src.Priority,
			SourceQuality:     src.Quality,
			SourceCoverage:    src.Coverage,
			SourceLastUpdated: src.LastUpdatedDate(),
			Values:            values,
		})
		added++
	}
	return added
}

func allSkipped(outcomes []report.SourceOutcome) bool {
	for _, o := range outcomes {
		if !o.Skipped {
			return false
		}
	}
	return true
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

func asValue(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return NullValue()
	case time.Time:
		return DateValue(v)
	case *time.Time:
		if v == nil {
			return NullValue()
		}
		return DateValue(*v)
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return DateValue(t)
			}
		}
		return TextValue(v)
	default:
		return TextValue(fmt.Sprintf("%v", v))
	}
}

func asText(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
