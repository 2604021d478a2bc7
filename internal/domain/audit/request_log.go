package audit

import (
	"time"

	"github.com/google/uuid"
)

type APIRequestLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Method     string     `gorm:"column:method;not null" json:"method"`
	Path       string     `gorm:"column:path;not null;index" json:"path"`
	Status     int        `gorm:"column:status;not null" json:"status"`
	DurationMS int64      `gorm:"column:duration_ms" json:"duration_ms"`
	RequestID  string     `gorm:"column:request_id" json:"request_id"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (APIRequestLog) TableName() string { return "api_request_log" }
