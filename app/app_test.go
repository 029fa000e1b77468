package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/edu-reels-backend/config"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/services"
	"github.com/vnkhanh/edu-reels-backend/storage"
	"github.com/vnkhanh/edu-reels-backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubScripts struct {
	err error
}

func (s *stubScripts) GenerateScript(_ context.Context, req services.ScriptRequest) (*services.ThreadScript, error) {
	if s.err != nil {
		return nil, s.err
	}
	script := &services.ThreadScript{Topic: req.Topic, Difficulty: req.Difficulty, Sources: req.Sources}
	for i := 1; i <= 5; i++ {
		script.Units = append(script.Units, services.ScriptUnit{
			Index:  i,
			Title:  fmt.Sprintf("Part %d", i),
			Script: fmt.Sprintf("Narration %d", i),
			Quiz: services.ScriptQuiz{
				Question:     fmt.Sprintf("Q%d?", i),
				Options:      []string{"A", "B", "C", "D"},
				CorrectIndex: 1,
				Explanation:  "B",
			},
		})
	}
	return script, nil
}

type stubVideos struct {
	base string
	mu   sync.Mutex
	n    int
}

func (s *stubVideos) CreateTask(context.Context, services.VideoTask) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("task-%d", s.n), nil
}

func (s *stubVideos) TaskStatus(_ context.Context, id string) (*services.TaskStatus, error) {
	return &services.TaskStatus{TaskID: id, State: services.TaskStateSuccess, ResultURL: s.base + "/" + id + ".mp4"}, nil
}

type stubNarrator struct{}

func (stubNarrator) Name() string         { return "stub" }
func (stubNarrator) LanguageCode() string { return "en" }
func (stubNarrator) Synthesize(context.Context, string) ([]byte, error) {
	return []byte("mp3"), nil
}

type testApp struct {
	*App
	scripts *stubScripts
	blobs   *storage.MemoryStore
}

func newTestApp(t *testing.T, secret string) *testApp {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4"))
	}))
	t.Cleanup(remote.Close)

	cfg := config.Settings{
		JWTSecret:            secret,
		GenerateRate:         100,
		CORSOrigins:          []string{"http://localhost:5173"},
		PollInterval:         time.Millisecond,
		PollMaxAttempts:      5,
		NarrationConcurrency: 2,
		VideoPromptTemplate:  services.PromptTemplateTopic,
		ResumeInterval:       time.Hour,
		AutoAdvanceDelay:     time.Hour,
		QuizCooldown:         time.Hour,
		PlaySettleDelay:      time.Hour,
		SessionTTL:           time.Hour,
		SessionCacheSize:     16,
	}
	ta := &testApp{scripts: &stubScripts{}, blobs: storage.NewMemoryStore("")}
	ta.App = Build(cfg, logger.Nop(), db, Clients{
		Scripts:  ta.scripts,
		Videos:   &stubVideos{base: remote.URL},
		Narrator: stubNarrator{},
		Blobs:    ta.blobs,
		HTTP:     remote.Client(),
	}, clock.New())

	require.NoError(t, ta.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ta.Shutdown(ctx)
	})
	return ta
}

func (ta *testApp) call(t *testing.T, method, path string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ta.Router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestGenerateFeedAndPlaySession(t *testing.T) {
	ta := newTestApp(t, "")

	code, body := ta.call(t, http.MethodPost, "/api/generate", gin.H{"topic": "Tides", "difficulty": "HARD", "sources": "Moon pulls water\n\n"})
	require.Equal(t, http.StatusAccepted, code)
	threadID := body["thread_id"].(string)
	require.Len(t, body["items"], 5)

	var feed map[string]interface{}
	require.Eventually(t, func() bool {
		_, feed = ta.call(t, http.MethodGet, "/api/feeds/"+threadID+"/feed", nil)
		videos, _ := feed["videos"].([]interface{})
		return len(videos) == 5
	}, 5*time.Second, 10*time.Millisecond)
	tid, err := uuid.Parse(threadID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !ta.Orch.Running(tid) }, 5*time.Second, 10*time.Millisecond)
	_, feed = ta.call(t, http.MethodGet, "/api/feeds/"+threadID+"/feed", nil)
	assert.Equal(t, "ready", feed["status"])
	assert.Len(t, feed["questions"], 5)

	first := feed["videos"].([]interface{})[0].(map[string]interface{})
	assert.True(t, strings.HasPrefix(first["src"].(string), "memory://blobs/video-task-"))
	assert.NotEmpty(t, first["audio_src"])

	require.Eventually(t, func() bool {
		_, list := ta.call(t, http.MethodGet, "/api/feeds", nil)
		feeds := list["feeds"].([]interface{})
		return len(feeds) == 1 && feeds[0].(map[string]interface{})["status"] == "ready"
	}, 5*time.Second, 10*time.Millisecond)

	code, body = ta.call(t, http.MethodPost, "/api/feeds/"+threadID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	sid := body["session"].(map[string]interface{})["id"].(string)
	state := body["state"].(map[string]interface{})
	assert.EqualValues(t, 10, state["section_count"])
	assert.EqualValues(t, 1, state["max_reachable"])

	code, body = ta.call(t, http.MethodPost, "/api/sessions/"+sid+"/navigate", gin.H{"section": 6})
	require.Equal(t, http.StatusOK, code)
	nav := body["result"].(map[string]interface{})
	assert.EqualValues(t, 1, nav["section"])
	assert.Equal(t, true, nav["clamped"])

	code, body = ta.call(t, http.MethodPost, "/api/sessions/"+sid+"/answer", gin.H{"unit": 0, "option": 0})
	require.Equal(t, http.StatusOK, code)
	res := body["result"].(map[string]interface{})
	assert.Equal(t, true, res["accepted"])
	assert.Equal(t, false, res["correct"])

	_, body = ta.call(t, http.MethodPost, "/api/sessions/"+sid+"/answer", gin.H{"unit": 0, "option": 1})
	res = body["result"].(map[string]interface{})
	assert.Equal(t, false, res["accepted"])
	assert.Equal(t, "cooling_down", res["reason"])

	code, _ = ta.call(t, http.MethodPost, "/api/sessions/"+sid+"/mute", gin.H{"muted": true})
	assert.Equal(t, http.StatusOK, code)

	code, _ = ta.call(t, http.MethodDelete, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = ta.call(t, http.MethodGet, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGenerateRequiresTopic(t *testing.T) {
	ta := newTestApp(t, "")
	code, body := ta.call(t, http.MethodPost, "/api/generate", gin.H{"topic": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing required field: topic", body["error"])
}

func TestGenerateForFeedConflict(t *testing.T) {
	ta := newTestApp(t, "")
	code, body := ta.call(t, http.MethodPost, "/api/feeds", gin.H{})
	require.Equal(t, http.StatusCreated, code)
	id := body["thread_id"].(string)

	code, _ = ta.call(t, http.MethodPost, "/api/feeds/"+id+"/generate", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.call(t, http.MethodPost, "/api/feeds/"+id+"/units", gin.H{
		"title":    "Handmade",
		"script":   "A single unit",
		"quiz":     gin.H{"question": "Q?", "options": []string{"a", "b", "c", "d"}, "correct_index": 3},
		"generate": false,
	})
	require.Equal(t, http.StatusCreated, code)

	code, body = ta.call(t, http.MethodPost, "/api/feeds/"+id+"/generate", gin.H{"topic": "Volcanoes"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["code"])
}

func TestAppendUnitValidation(t *testing.T) {
	ta := newTestApp(t, "")
	_, body := ta.call(t, http.MethodPost, "/api/feeds", gin.H{"prompt": "Owls"})
	id := body["thread_id"].(string)

	code, body := ta.call(t, http.MethodPost, "/api/feeds/"+id+"/units", gin.H{
		"title":  "t",
		"script": "s",
		"quiz":   gin.H{"question": "Q?", "options": []string{"a", "b"}, "correct_index": 0},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "quiz.options must be an array of 4 strings", body["error"])
}

func TestRenameAndNotFound(t *testing.T) {
	ta := newTestApp(t, "")
	_, body := ta.call(t, http.MethodPost, "/api/feeds", nil)
	id := body["thread_id"].(string)
	assert.Equal(t, "New feed", body["feed"].(map[string]interface{})["label"])

	code, body := ta.call(t, http.MethodPatch, "/api/feeds/"+id, gin.H{"label": "Black holes"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Black holes", body["feed"].(map[string]interface{})["label"])

	code, _ = ta.call(t, http.MethodPatch, "/api/feeds/"+id, gin.H{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.call(t, http.MethodGet, "/api/feeds/00000000-0000-0000-0000-000000000001/feed", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = ta.call(t, http.MethodGet, "/api/feeds/not-a-uuid/feed", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ta.call(t, http.MethodGet, "/api/feeds/"+id+"/feed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "empty", body["status"])

	code, _ = ta.call(t, http.MethodPost, "/api/feeds/"+id+"/sessions", nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = ta.call(t, http.MethodDelete, "/api/feeds/"+id+"/generation", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScriptEndpointReportsIssues(t *testing.T) {
	ta := newTestApp(t, "")
	ta.scripts.err = &services.ScriptValidationError{Issues: []string{"Unit 3: quiz.correctIndex must be 0..3"}}

	code, body := ta.call(t, http.MethodPost, "/api/script", gin.H{"topic": "Tides"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, []interface{}{"Unit 3: quiz.correctIndex must be 0..3"}, body["issues"])

	ta.scripts.err = &services.ProviderError{Provider: "groq", Code: "rate_limit_exceeded", Message: "slow down", Status: 429}
	code, body = ta.call(t, http.MethodPost, "/api/script", gin.H{"topic": "Tides"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "rate_limit_exceeded", body["provider_code"])
}

func TestMutatingRoutesNeedTokenWhenSecretSet(t *testing.T) {
	ta := newTestApp(t, "s3cret")

	code, _ := ta.call(t, http.MethodPost, "/api/feeds", gin.H{"prompt": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ta.call(t, http.MethodGet, "/api/feeds", nil)
	assert.Equal(t, http.StatusOK, code)

	token, err := utils.GenerateToken("s3cret", "tester", "user", time.Minute)
	require.NoError(t, err)
	code, _ = ta.call(t, http.MethodPost, "/api/feeds", gin.H{"prompt": "x"}, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusCreated, code)
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestApp(t, "")
	code, body := ta.call(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["db"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ta.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reels_player_sessions_active")

	code, body = ta.call(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body["message"])
}
