package controllers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/models"
	"github.com/vnkhanh/edu-reels-backend/player"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/storage"
)

type FeedVideo struct {
	ID         uuid.UUID `json:"id"`
	Index      int       `json:"index"`
	Title      string    `json:"title"`
	TaskID     string    `json:"task_id"`
	Src        string    `json:"src"`
	AudioSrc   string    `json:"audio_src,omitempty"`
	ScriptText string    `json:"script_text"`
	Duration   int       `json:"duration"`
}

type FeedQuestion struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Feed là feed bền vững của thread: chỉ các video đã ingest
type Feed struct {
	ThreadID  uuid.UUID         `json:"thread_id"`
	Status    player.FeedStatus `json:"status"`
	Videos    []FeedVideo       `json:"videos"`
	Questions []FeedQuestion    `json:"questions"`
}

// Units ghép video + quiz cho player; feed lệch số quiz thì bỏ quiz
func (f *Feed) Units() []player.Unit {
	withQuiz := len(f.Questions) == len(f.Videos)
	units := make([]player.Unit, len(f.Videos))
	for i, v := range f.Videos {
		units[i] = player.Unit{VideoID: v.ID.String(), Title: v.Title, Src: v.Src, AudioSrc: v.AudioSrc}
		if withQuiz {
			q := f.Questions[i]
			units[i].Quiz = &player.Quiz{
				Question:     q.Text,
				Options:      q.Options,
				CorrectIndex: q.CorrectIndex,
				Explanation:  q.Explanation,
			}
		}
	}
	return units
}

type FeedLoader struct {
	Repo    *repository.ThreadRepository
	Blobs   storage.BlobStore
	Running func(threadID uuid.UUID) bool
	Log     *logger.Logger
}

func (l *FeedLoader) Load(ctx context.Context, threadID uuid.UUID) (*Feed, error) {
	videos, err := l.Repo.LoadFeed(ctx, threadID)
	if err != nil {
		return nil, err
	}
	feed := &Feed{ThreadID: threadID, Videos: []FeedVideo{}, Questions: []FeedQuestion{}}
	for _, v := range videos {
		fv := FeedVideo{
			ID:         v.ID,
			Index:      v.Index,
			Title:      v.Title,
			ScriptText: v.ScriptText,
			Duration:   v.DurationSec,
			Src:        l.sign(ctx, deref(v.BlobName), deref(v.BlobURL)),
		}
		if v.TaskID != nil {
			fv.TaskID = *v.TaskID
		}
		if a := v.ScriptAsset; a != nil {
			fv.AudioSrc = l.sign(ctx, a.AudioBlobName, a.AudioBlobURL)
		}
		feed.Videos = append(feed.Videos, fv)
		if v.Quiz != nil {
			feed.Questions = append(feed.Questions, questionOf(v.Quiz))
		}
	}

	loading := len(feed.Videos) == 0 && l.Running != nil && l.Running(threadID)
	feed.Status = player.Classify(loading, len(feed.Videos), len(feed.Questions))
	return feed, nil
}

// sign tạo signed URL; lỗi thì dùng URL đã lưu lúc ingest (không bao giờ là URL của provider)
func (l *FeedLoader) sign(ctx context.Context, name, stored string) string {
	if l.Blobs == nil || strings.TrimSpace(name) == "" {
		return stored
	}
	u, err := l.Blobs.SignedURL(ctx, name)
	if err != nil || u == "" {
		if l.Log != nil {
			l.Log.Warn("sign url failed", "blob", name, "error", err)
		}
		return stored
	}
	return u
}

func questionOf(q *models.Quiz) FeedQuestion {
	opts := make([]string, len(q.Options))
	for i, o := range q.Options {
		opts[i] = o.OptionText
	}
	return FeedQuestion{
		Text:         q.QuestionText,
		Options:      opts,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
