package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// GormAdapter reads source tables through gorm, renaming columns to internal
// field names as declared by the column mapping.
type GormAdapter struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormAdapter(db *gorm.DB, queryTimeout time.Duration) *GormAdapter {
	return &GormAdapter{db: db, timeout: queryTimeout}
}

func (a *GormAdapter) Fetch(ctx context.Context, table string, columns map[string]string, patientIDs []string) ([]map[string]interface{}, error) {
	if table == "" {
		return nil, fmt.Errorf("source table is required")
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	patientColumn, ok := columns["patient_id"]
	if !ok {
		return nil, fmt.Errorf("source table %s: no patient_id column mapping", table)
	}

	fields := make([]string, 0, len(columns))
	for field := range columns {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	selects := make([]string, 0, len(fields))
	for _, field := range fields {
		selects = append(selects, fmt.Sprintf("%s AS %s", columns[field], field))
	}

	query := a.db.WithContext(ctx).Table(table).Select(selects)
	if len(patientIDs) > 0 {
		query = query.Where(fmt.Sprintf("%s IN ?", patientColumn), patientIDs)
	}

	var rows []map[string]interface{}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("source table %s: %w", table, err)
	}
	return rows, nil
}
