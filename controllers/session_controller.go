package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/edu-reels-backend/player"
)

// SessionController điều khiển player phía server; event timer đi qua /ws/sessions/:sid
type SessionController struct {
	Sessions *player.SessionStore
	Loader   *FeedLoader
}

func (sc *SessionController) session(c *gin.Context) (*player.Session, bool) {
	sess, ok := sc.Sessions.Get(c.Param("sid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "code": "session_not_found"})
		return nil, false
	}
	return sess, true
}

func (sc *SessionController) CreateSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	feed, err := sc.Loader.Load(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if feed.Status != player.FeedReady {
		c.JSON(http.StatusConflict, gin.H{"error": "Feed is not ready", "code": "feed_not_ready", "status": feed.Status})
		return
	}
	sess, err := sc.Sessions.Create(id.String(), feed.Units())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "feed_malformed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess, "state": sess.Snapshot()})
}

func (sc *SessionController) GetSession(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "state": sess.Snapshot()})
}

type navigateRequest struct {
	Section   *int   `json:"section"`
	Direction string `json:"direction"` // next | prev
}

// Navigate: nhảy tới section (bị kẹp trong vùng đã mở) hoặc next/prev
func (sc *SessionController) Navigate(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	var res player.NavResult
	switch {
	case req.Section != nil:
		res = sess.GoTo(*req.Section, true)
	case strings.EqualFold(req.Direction, "next"):
		res = sess.Next()
	case strings.EqualFold(req.Direction, "prev"):
		res = sess.Prev()
	default:
		badRequest(c, "Provide section or direction (next|prev)")
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "state": sess.Snapshot()})
}

type scrollRequest struct {
	Delta int `json:"delta"`
}

func (sc *SessionController) Scroll(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	var req scrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	res := sess.Scroll(req.Delta)
	c.JSON(http.StatusOK, gin.H{"result": res, "state": sess.Snapshot()})
}

type answerRequest struct {
	Unit   *int `json:"unit"`
	Option *int `json:"option"`
}

// Answer luôn trả 200; câu trả lời bị từ chối có accepted=false và reason
func (sc *SessionController) Answer(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Unit == nil || req.Option == nil {
		badRequest(c, "Missing required fields: unit, option")
		return
	}
	res := sess.Answer(*req.Unit, *req.Option)
	c.JSON(http.StatusOK, gin.H{"result": res, "state": sess.Snapshot()})
}

func (sc *SessionController) CancelAutoAdvance(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	canceled := sess.CancelAutoAdvance()
	c.JSON(http.StatusOK, gin.H{"canceled": canceled, "state": sess.Snapshot()})
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (sc *SessionController) Mute(c *gin.Context) {
	sess, ok := sc.session(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Muted == nil {
		badRequest(c, "Missing required field: muted")
		return
	}
	sess.SetMuted(*req.Muted)
	c.JSON(http.StatusOK, gin.H{"state": sess.Snapshot()})
}

func (sc *SessionController) DeleteSession(c *gin.Context) {
	if !sc.Sessions.Delete(c.Param("sid")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found", "code": "session_not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Exists dùng cho ws handler
func (sc *SessionController) Exists(id string) bool {
	_, ok := sc.Sessions.Get(id)
	return ok
}
