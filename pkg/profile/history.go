package profile

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ExecutionRecord is one row of the optional execution-history sink: an
// operational supplement to the JSON profile, not a replacement for it
// (spec.md §4.9). The JSON profile's round-trip property holds regardless
// of whether a HistorySink is configured.
type ExecutionRecord struct {
	gorm.Model
	TaskId         int64
	Implementation string
	ResourceId     string
	DurationMs     int64
	Status         string
}

// HistorySink appends one ExecutionRecord per completed job, grounded on
// the teacher's db.RabbitLog PostgreSQL/GORM persistence idiom.
type HistorySink struct {
	db *gorm.DB
}

// OpenHistorySink connects to dsn and migrates the execution_records table.
func OpenHistorySink(dsn string) (*HistorySink, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("profile: open postgres history sink: %w", err)
	}
	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("profile: migrate history sink: %w", err)
	}
	return &HistorySink{db: db}, nil
}

// Record inserts one row describing a completed job.
func (h *HistorySink) Record(taskId int64, implementation, resourceId string, duration time.Duration, status string) error {
	rec := ExecutionRecord{
		TaskId:         taskId,
		Implementation: implementation,
		ResourceId:     resourceId,
		DurationMs:     duration.Milliseconds(),
		Status:         status,
	}
	return h.db.Create(&rec).Error
}
