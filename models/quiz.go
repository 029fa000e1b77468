package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const OptionsPerQuiz = 4

type Quiz struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID      uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"video_id"`
	QuestionText string       `gorm:"type:text;not null" json:"question_text"`
	CorrectIndex int          `gorm:"not null;default:0" json:"correct_index"` // 0..3
	Explanation  string       `gorm:"type:text" json:"explanation"`
	Options      []QuizOption `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE;" json:"options"`
}

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type QuizOption struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_option" json:"quiz_id"`
	OptionIndex int       `gorm:"not null;uniqueIndex:idx_quiz_option" json:"option_index"` // 0..3
	OptionText  string    `gorm:"type:text" json:"option_text"`
}

func (o *QuizOption) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
