package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cohortforge/platform/pkg/codelist"
	"github.com/cohortforge/platform/pkg/common/config"
	"github.com/cohortforge/platform/pkg/common/database"
	"github.com/cohortforge/platform/pkg/common/kafka"
	"github.com/cohortforge/platform/pkg/common/logger"
	"github.com/cohortforge/platform/pkg/curation"
	"github.com/cohortforge/platform/pkg/dataset"
	"github.com/cohortforge/platform/pkg/pipeline"
	"github.com/cohortforge/platform/pkg/report"
	"github.com/cohortforge/platform/pkg/source"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type CurationService struct {
	runner    *pipeline.Runner
	repo      *pipeline.RunRepository
	codelists *codelist.Repository
}

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}

	runRepo := pipeline.NewRunRepository(db)
	if err := runRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate pipeline run table")
	}

	if cfg.CurationConfigPath == "" {
		logger.Log.Fatal("CURATION_CONFIG_PATH is required")
	}
	curationCfg, err := curation.LoadConfig(cfg.CurationConfigPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load curation configuration")
	}

	codes, codelistRepo, err := loadCodelist(cfg, db)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load codelists")
	}

	producer := kafka.NewProducer(cfg.KafkaAuditTopic)
	defer producer.Close()

	reporter := report.Multi{
		report.NewLogReporter(),
		report.NewKafkaReporter(producer),
	}

	assembler := curation.NewAssembler(source.NewGormAdapter(db, cfg.SourceQueryTimeout))
	runner := pipeline.NewRunner(
		assembler,
		curationCfg,
		codes,
		runRepo,
		cfg.PipelineWorkers,
		pipeline.WithReporter(reporter),
		pipeline.WithDatasetWriter(dataset.NewWriter(db)),
		pipeline.WithExportDir(cfg.ExportDir),
	)

	service := &CurationService{runner: runner, repo: runRepo, codelists: codelistRepo}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/api/v1/runs", service.handleEnqueue).Methods("POST")
	router.HandleFunc("/api/v1/runs", service.handleList).Methods("GET")
	router.HandleFunc("/api/v1/runs/{id}", service.handleGet).Methods("GET")
	if codelistRepo != nil {
		router.HandleFunc("/api/v1/codelists", service.handleGetCodelists).Methods("GET")
		router.HandleFunc("/api/v1/codelists", service.handleReplaceCodelists).Methods("PUT")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Curation Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Curation Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close PostgreSQL")
	}

	logger.Log.Info("Curation Service stopped")
}

// loadCodelist picks the code set provider: a static in-memory provider when a
// codelist file is configured, otherwise the database repository with its
// redis cache. The repository is returned separately so codelist management
// routes are only registered in database mode.
func loadCodelist(cfg *config.Config, db *gorm.DB) (codelist.Provider, *codelist.Repository, error) {
	if cfg.CodelistPath != "" {
		list, err := codelist.Load(cfg.CodelistPath)
		if err != nil {
			return nil, nil, err
		}
		return codelist.NewStatic(list), nil, nil
	}
	repo := codelist.NewRepository(db, database.GetRedis(), cfg.CodelistCacheTTL)
	if err := repo.AutoMigrate(); err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *CurationService) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Study       *pipeline.StudySpec `json:"study"`
		StudyPath   string              `json:"study_path"`
		RequestedBy string              `json:"requested_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	var study pipeline.StudySpec
	switch {
	case req.Study != nil && req.StudyPath != "":
		http.Error(w, "study and study_path are mutually exclusive", http.StatusBadRequest)
		return
	case req.Study != nil:
		study = *req.Study
	case req.StudyPath != "":
		loaded, err := pipeline.LoadStudy(req.StudyPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid study file: %v", err), http.StatusBadRequest)
			return
		}
		study = loaded
	default:
		http.Error(w, "one of study or study_path is required", http.StatusBadRequest)
		return
	}

	run, err := s.runner.Enqueue(r.Context(), study, req.RequestedBy)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid study configuration: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

func (s *CurationService) handleList(w http.ResponseWriter, r *http.Request) {
	study := r.URL.Query().Get("study")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	runs, err := s.repo.List(r.Context(), study, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (s *CurationService) handleGetCodelists(w http.ResponseWriter, r *http.Request) {
	list, err := s.codelists.Codelist(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (s *CurationService) handleReplaceCodelists(w http.ResponseWriter, r *http.Request) {
	var list codelist.Codelist
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := list.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid codelist: %v", err), http.StatusBadRequest)
		return
	}

	if err := s.codelists.Replace(r.Context(), list); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CurationService) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.repo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}
