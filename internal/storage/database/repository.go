package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/storage"
)

// Config selects the SQL backend
type Config struct {
	Driver string // sqlite or postgres
	DSN    string
}

// Repository implements storage.Repository on top of gorm
type Repository struct {
	db *gorm.DB
}

// New opens the database described by cfg
func New(cfg Config) (*Repository, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		// Ensure directory exists
		dir := filepath.Dir(cfg.DSN)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	// SQLite allows a single writer; serialize runner goroutines on one connection
	if cfg.Driver == "sqlite" || cfg.Driver == "" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.ScheduledTask{},
		&models.ContentItem{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Task operations

func (r *Repository) ListTasks(ctx context.Context) ([]*models.ScheduledTask, error) {
	var tasks []*models.ScheduledTask
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	var task models.ScheduledTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	return &task, nil
}

func (r *Repository) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ScheduledTask{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.ScheduledTask{}).
		Where("id = ? AND enabled = ?", id, true).
		Updates(map[string]interface{}{
			"next_run":   next,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Either missing or disabled; only the former is an error
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ScheduledTask{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// Content operations

func (r *Repository) InsertIfAbsent(ctx context.Context, item *models.ContentItem) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "content_id"}},
			DoNothing: true,
		}).
		Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) MarkPosted(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.ContentItem{}).
		Where("id = ?", id).
		Update("posted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("content %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (r *Repository) GetContentByKey(ctx context.Context, platform models.Platform, contentID string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := r.db.WithContext(ctx).
		Where("platform = ? AND content_id = ?", platform, contentID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("content %s/%s: %w", platform, contentID, storage.ErrNotFound)
		}
		return nil, err
	}
	return &item, nil
}

func (r *Repository) IsPosted(ctx context.Context, platform models.Platform, contentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContentItem{}).
		Where("platform = ? AND content_id = ? AND posted = ?", platform, contentID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) QueryContent(ctx context.Context, filter storage.ContentFilter) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	query := r.db.WithContext(ctx).Model(&models.ContentItem{})

	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.Posted != nil {
		query = query.Where("posted = ?", *filter.Posted)
	}

	query = query.Order("created_at DESC").Order("id DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
