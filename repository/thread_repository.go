package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/edu-reels-backend/models"
)

const DefaultThreadPrompt = "New feed"

var (
	ErrThreadNotFound   = errors.New("thread not found")
	ErrVideoNotFound    = errors.New("video not found")
	ErrThreadHasContent = errors.New("thread already has content")
	ErrThreadFull       = errors.New("thread already has 5 units")
	ErrAlreadyIngested  = errors.New("video already ingested")
	ErrInvalidUnits     = errors.New("invalid units")
)

type QuizInput struct {
	Question     string
	Options      []string
	CorrectIndex int
	Explanation  string
}

type UnitInput struct {
	Index  int
	Title  string
	Script string
	Quiz   QuizInput
}

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) DB() *gorm.DB { return r.db }

func (r *ThreadRepository) CreateThread(ctx context.Context, prompt string) (*models.Thread, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultThreadPrompt
	}
	thread := models.Thread{
		Prompt: prompt,
		Slug:   slug.Make(prompt),
		Status: models.ThreadStatusGenerating,
	}
	if err := r.db.WithContext(ctx).Create(&thread).Error; err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// ListThreads trả về các thread mới nhất
func (r *ThreadRepository) ListThreads(ctx context.Context, limit int) ([]models.Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	var threads []models.Thread
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

func (r *ThreadRepository) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.WithContext(ctx).First(&thread, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &thread, nil
}

func (r *ThreadRepository) RenameThread(ctx context.Context, id uuid.UUID, prompt string) (*models.Thread, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidUnits)
	}
	thread, err := r.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).Model(thread).Updates(map[string]interface{}{
		"prompt": prompt,
		"slug":   slug.Make(prompt),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("rename thread: %w", err)
	}
	return thread, nil
}

// PersistUnits ghi cả lô unit + quiz + option trong một transaction.
// Thread đã có unit thì từ chối (ErrThreadHasContent).
func (r *ThreadRepository) PersistUnits(ctx context.Context, threadID uuid.UUID, units []UnitInput) ([]models.Video, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no units", ErrInvalidUnits)
	}
	var videos []models.Video
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.First(&thread, "id = ?", threadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}
		var existing int64
		if err := tx.Model(&models.Video{}).Where("thread_id = ?", threadID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrThreadHasContent
		}

		// 1. N video
		videos = make([]models.Video, len(units))
		for i, u := range units {
			videos[i] = newVideo(threadID, u)
			if err := tx.Omit(clause.Associations).Create(&videos[i]).Error; err != nil {
				return fmt.Errorf("insert unit %d: %w", u.Index, err)
			}
		}
		// 2. N quiz
		quizzes := make([]models.Quiz, len(units))
		for i, u := range units {
			quizzes[i] = newQuiz(videos[i].ID, u.Quiz)
			if err := tx.Omit(clause.Associations).Create(&quizzes[i]).Error; err != nil {
				return fmt.Errorf("insert quiz for unit %d: %w", u.Index, err)
			}
		}
		// 3. N×4 option
		for i, u := range units {
			opts := newOptions(quizzes[i].ID, u.Quiz.Options)
			if err := tx.Create(&opts).Error; err != nil {
				return fmt.Errorf("insert options for unit %d: %w", u.Index, err)
			}
			quizzes[i].Options = opts
			videos[i].Quiz = &quizzes[i]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return videos, nil
}

// AppendUnit thêm một unit vào thread, index = max + 1
func (r *ThreadRepository) AppendUnit(ctx context.Context, threadID uuid.UUID, unit UnitInput) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.First(&thread, "id = ?", threadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrThreadNotFound
			}
			return err
		}
		var maxIndex int
		row := tx.Model(&models.Video{}).Where("thread_id = ?", threadID).Select("COALESCE(MAX(unit_index), 0)").Row()
		if err := row.Scan(&maxIndex); err != nil {
			return err
		}
		if maxIndex >= models.UnitsPerThread {
			return ErrThreadFull
		}
		unit.Index = maxIndex + 1
		video = newVideo(threadID, unit)
		if err := tx.Omit(clause.Associations).Create(&video).Error; err != nil {
			return err
		}
		quiz := newQuiz(video.ID, unit.Quiz)
		if err := tx.Omit(clause.Associations).Create(&quiz).Error; err != nil {
			return err
		}
		opts := newOptions(quiz.ID, unit.Quiz.Options)
		if err := tx.Create(&opts).Error; err != nil {
			return err
		}
		quiz.Options = opts
		video.Quiz = &quiz
		// status chỉ đi generating -> ready; unit chưa ingest được nhận ra qua blob_url IS NULL
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (r *ThreadRepository) AttachTask(ctx context.Context, videoID uuid.UUID, taskID string) error {
	res := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", videoID).Update("task_id", taskID)
	if res.Error != nil {
		return fmt.Errorf("attach task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// MarkIngested ghi blob cho video (một lần duy nhất). Khi mọi unit của thread
// đã có blob thì thread chuyển sang ready trong cùng transaction.
func (r *ThreadRepository) MarkIngested(ctx context.Context, videoID uuid.UUID, blobName, blobURL string, durationSec int) (bool, error) {
	if blobURL == "" {
		return false, fmt.Errorf("%w: empty blob url", ErrInvalidUnits)
	}
	threadReady := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video models.Video
		if err := tx.First(&video, "id = ?", videoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVideoNotFound
			}
			return err
		}
		now := time.Now()
		res := tx.Model(&models.Video{}).
			Where("id = ? AND blob_url IS NULL", videoID).
			Updates(map[string]interface{}{
				"blob_name":    blobName,
				"blob_url":     blobURL,
				"duration_sec": durationSec,
				"ingested_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyIngested
		}

		var pending int64
		if err := tx.Model(&models.Video{}).
			Where("thread_id = ? AND blob_url IS NULL", video.ThreadID).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}
		if err := tx.Model(&models.Thread{}).
			Where("id = ?", video.ThreadID).
			Update("status", models.ThreadStatusReady).Error; err != nil {
			return err
		}
		threadReady = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return threadReady, nil
}

func (r *ThreadRepository) InsertScriptAsset(ctx context.Context, asset *models.VideoScriptAsset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("insert script asset: %w", err)
	}
	return nil
}

// Units trả về tất cả unit của thread (kể cả chưa ingest), theo thứ tự index
func (r *ThreadRepository) Units(ctx context.Context, threadID uuid.UUID) ([]models.Video, error) {
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("unit_index ASC").
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return videos, nil
}

// LoadFeed chỉ trả về video đã ingest, kèm quiz + option + audio
func (r *ThreadRepository) LoadFeed(ctx context.Context, threadID uuid.UUID) ([]models.Video, error) {
	if _, err := r.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Preload("Quiz").
		Preload("Quiz.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("option_index ASC")
		}).
		Preload("ScriptAsset").
		Where("thread_id = ? AND blob_url IS NOT NULL", threadID).
		Order("unit_index ASC").
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	return videos, nil
}

// PendingIngestions: unit đã có task nhưng chưa có blob
func (r *ThreadRepository) PendingIngestions(ctx context.Context, limit int) ([]models.Video, error) {
	if limit <= 0 {
		limit = 100
	}
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("task_id IS NOT NULL AND task_id <> '' AND blob_url IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("pending ingestions: %w", err)
	}
	return videos, nil
}

func newVideo(threadID uuid.UUID, u UnitInput) models.Video {
	return models.Video{
		ThreadID:   threadID,
		Index:      u.Index,
		Title:      strings.TrimSpace(u.Title),
		ScriptText: strings.TrimSpace(u.Script),
	}
}

func newQuiz(videoID uuid.UUID, q QuizInput) models.Quiz {
	correct := q.CorrectIndex
	if correct < 0 || correct >= models.OptionsPerQuiz {
		correct = 0
	}
	return models.Quiz{
		VideoID:      videoID,
		QuestionText: strings.TrimSpace(q.Question),
		CorrectIndex: correct,
		Explanation:  strings.TrimSpace(q.Explanation),
	}
}

// Luôn đúng 4 option; thiếu thì bù chuỗi rỗng
func newOptions(quizID uuid.UUID, texts []string) []models.QuizOption {
	opts := make([]models.QuizOption, models.OptionsPerQuiz)
	for i := range opts {
		text := ""
		if i < len(texts) {
			text = strings.TrimSpace(texts[i])
		}
		opts[i] = models.QuizOption{QuizID: quizID, OptionIndex: i, OptionText: text}
	}
	return opts
}
