package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cohortforge/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	runStatusQueued    = "queued"
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

type runModel struct {
	ID           uuid.UUID      `gorm:"primaryKey;column:id"`
	Study        string         `gorm:"column:study"`
	Status       string         `gorm:"column:status"`
	CohortSize   int            `gorm:"column:cohort_size"`
	ErrorMessage string         `gorm:"column:error_message"`
	RequestedBy  string         `gorm:"column:requested_by"`
	Report       datatypes.JSON `gorm:"column:report"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	StartedAt    *time.Time     `gorm:"column:started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
}

func (runModel) TableName() string {
	return "pipeline_runs"
}

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&runModel{})
}

func (r *RunRepository) Create(ctx context.Context, model *runModel) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *RunRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (models.PipelineRun, error) {
	var model runModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.PipelineRun{}, result.Error
	}
	if result.Error != nil {
		return models.PipelineRun{}, result.Error
	}
	return modelToDomain(&model), nil
}

func (r *RunRepository) List(ctx context.Context, study string, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if study != "" {
		query = query.Where("study = ?", study)
	}
	var records []runModel
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	runs := make([]models.PipelineRun, 0, len(records))
	for _, record := range records {
		copy := record
		runs = append(runs, modelToDomain(&copy))
	}
	return runs, nil
}

func modelToDomain(model *runModel) models.PipelineRun {
	run := models.PipelineRun{
		ID:           model.ID,
		Study:        model.Study,
		Status:       model.Status,
		CohortSize:   model.CohortSize,
		ErrorMessage: model.ErrorMessage,
		RequestedBy:  model.RequestedBy,
		CreatedAt:    model.CreatedAt,
		StartedAt:    model.StartedAt,
		CompletedAt:  model.CompletedAt,
	}
	if len(model.Report) > 0 {
		report := map[string]interface{}{}
		if err := json.Unmarshal(model.Report, &report); err == nil {
			run.Report = report
		}
	}
	return run
}
