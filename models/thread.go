package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ThreadStatusGenerating = "generating"
	ThreadStatusReady      = "ready"

	// Số unit cố định của một thread
	UnitsPerThread = 5
)

type Thread struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	Slug      string    `gorm:"size:255;index" json:"slug"`
	Status    string    `gorm:"type:VARCHAR(20);default:'generating'" json:"status"` // generating | ready
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Videos []Video `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE;" json:"videos,omitempty"`
}

// BeforeCreate sinh UUID phía ứng dụng để schema chạy được cả trên SQLite
func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
