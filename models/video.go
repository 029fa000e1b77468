package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Video là một unit của thread: kịch bản + video đã ingest
type Video struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_video_thread_unit" json:"thread_id"`
	Index       int        `gorm:"column:unit_index;not null;uniqueIndex:idx_video_thread_unit" json:"index"` // 1..5
	Title       string     `gorm:"size:255;not null" json:"title"`
	ScriptText  string     `gorm:"type:text" json:"script_text"`
	TaskID      *string    `gorm:"size:128;index" json:"task_id"`
	BlobName    *string    `gorm:"type:text" json:"blob_name"`
	BlobURL     *string    `gorm:"type:text" json:"blob_url"`
	DurationSec int        `json:"duration_sec"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	IngestedAt  *time.Time `json:"ingested_at"`

	Quiz        *Quiz             `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE;" json:"quiz,omitempty"`
	ScriptAsset *VideoScriptAsset `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE;" json:"script_asset,omitempty"`
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Playable: chỉ video đã có blob mới được phát
func (v *Video) Playable() bool {
	return v.BlobURL != nil && *v.BlobURL != ""
}
