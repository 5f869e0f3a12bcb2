package codelist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cohortforge/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type entryModel struct {
	Code        string `gorm:"column:code;primaryKey"`
	Name        string `gorm:"column:name;primaryKey"`
	Description string `gorm:"column:description"`
	Terminology string `gorm:"column:terminology"`
}

func (entryModel) TableName() string {
	return "codelist_entries"
}

// Repository serves codelists from a database table, caching code sets by
// name in redis. The cache is an optimization only; a nil client disables it.
type Repository struct {
	db    *gorm.DB
	cache *redis.Client
	ttl   time.Duration
}

func NewRepository(db *gorm.DB, cache *redis.Client, ttl time.Duration) *Repository {
	return &Repository{db: db, cache: cache, ttl: ttl}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&entryModel{})
}

// Codelist loads the full codelist table.
func (r *Repository) Codelist(ctx context.Context) (Codelist, error) {
	var entries []entryModel
	if err := r.db.WithContext(ctx).Order("name, code").Find(&entries).Error; err != nil {
		return Codelist{}, fmt.Errorf("loading codelist entries: %w", err)
	}
	list := Codelist{Entries: make([]Entry, 0, len(entries))}
	for _, entry := range entries {
		list.Entries = append(list.Entries, Entry{
			Code:        entry.Code,
			Name:        entry.Name,
			Description: entry.Description,
			Terminology: entry.Terminology,
		})
	}
	return list, nil
}

// CodeSet resolves the codes for a semantic name, consulting the cache first.
func (r *Repository) CodeSet(ctx context.Context, name string) ([]string, error) {
	cacheKey := fmt.Sprintf("codelist:codes:%s", name)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			var codes []string
			if err := json.Unmarshal([]byte(cached), &codes); err == nil {
				return codes, nil
			}
		}
	}

	var entries []entryModel
	if err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("loading codes for %s: %w", name, err)
	}
	codes := make([]string, 0, len(entries))
	for _, entry := range entries {
		codes = append(codes, entry.Code)
	}
	sort.Strings(codes)

	if r.cache != nil {
		if encoded, err := json.Marshal(codes); err == nil {
			if err := r.cache.Set(ctx, cacheKey, encoded, r.ttl).Err(); err != nil {
				logger.Log.WithError(err).WithField("name", name).Warn("Failed to cache code set")
			}
		}
	}
	return codes, nil
}

// Replace swaps the stored codelist for a new one inside a transaction and
// drops any cached code sets.
func (r *Repository) Replace(ctx context.Context, list Codelist) error {
	if err := list.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&entryModel{}).Error; err != nil {
			return err
		}
		models := make([]entryModel, 0, len(list.Entries))
		for _, entry := range list.Entries {
			models = append(models, entryModel{
				Code:        entry.Code,
				Name:        entry.Name,
				Description: entry.Description,
				Terminology: entry.Terminology,
			})
		}
		return tx.Create(&models).Error
	})
	if err != nil {
		return fmt.Errorf("replacing codelist: %w", err)
	}

	if r.cache != nil {
		for _, name := range list.Names() {
			if err := r.cache.Del(ctx, fmt.Sprintf("codelist:codes:%s", name)).Err(); err != nil {
				logger.Log.WithError(err).WithField("name", name).Warn("Failed to invalidate cached code set")
			}
		}
	}
	return nil
}
