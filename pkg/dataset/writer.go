package dataset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Writer persists an analysis table to a destination database table, one
// column set per covariate/outcome mirroring the CSV layout.
type Writer struct {
	db *gorm.DB
}

func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) Write(ctx context.Context, tableName string, table *AnalysisTable) error {
	if tableName == "" {
		return fmt.Errorf("destination table name is required")
	}
	if table == nil {
		return fmt.Errorf("nil analysis table")
	}
	if len(table.Rows) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := map[string]interface{}{
			"patient_id":    row.Member.PatientID,
			"index_date":    row.Member.IndexDate,
			"date_of_birth": row.Member.DateOfBirth,
			"age_at_index":  row.Member.AgeAtIndex,
			"sex":           row.Member.Sex,
			"ethnicity":     row.Member.Ethnicity,
			"lsoa":          row.Member.LSOA,
		}
		for _, name := range table.CovariateNames {
			result := row.Covariates[name]
			record[name+"_flag"] = result.Flag
			record[name+"_date"] = result.EventDate
			record[name+"_days_to_index"] = result.DaysOffset
		}
		for _, name := range table.OutcomeNames {
			result := row.Outcomes[name]
			record[name+"_flag"] = result.Flag
			record[name+"_date"] = result.EventDate
			record[name+"_days_from_index"] = result.DaysOffset
		}
		rows = append(rows, record)
	}

	if err := w.db.WithContext(ctx).Table(tableName).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("writing analysis table %s: %w", tableName, err)
	}
	return nil
}
