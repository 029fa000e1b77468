package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoScriptAsset lưu audio thuyết minh của một unit
type VideoScriptAsset struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"video_id"`
	ScriptText      string    `gorm:"type:text;not null" json:"script_text"`
	AudioBlobName   string    `gorm:"type:text;not null" json:"audio_blob_name"`
	AudioBlobURL    string    `gorm:"type:text;not null" json:"audio_blob_url"`
	AudioDurationMs int       `json:"audio_duration_ms"`
	Provider        string    `gorm:"size:50" json:"provider"`      // elevenlabs | google
	LanguageCode    string    `gorm:"size:20" json:"language_code"` // en
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (a *VideoScriptAsset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
