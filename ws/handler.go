package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS đã chặn ở tầng HTTP
	},
}

// sendJSON xếp message vào hàng đợi của client; chỉ writePump được ghi vào conn
func sendJSON(client *Client, data interface{}) {
	msg, err := json.Marshal(data)
	if err != nil {
		return
	}
	select {
	case client.Send <- msg:
	default:
	}
}

// authorize: khi có secret thì bắt buộc ?token= hợp lệ
func authorize(c *gin.Context, secret string) bool {
	if secret == "" {
		return true
	}
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return false
	}
	if _, err := utils.VerifyToken(secret, token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return false
	}
	return true
}

// FeedSocket: tiến trình sinh video của một thread
func FeedSocket(hub *Hub, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, secret) {
			return
		}
		serveTopic(c, hub, events.FeedTopic(c.Param("id")))
	}
}

// SessionSocket: event của player session
func SessionSocket(hub *Hub, secret string, exists func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, secret) {
			return
		}
		sid := c.Param("sid")
		if exists != nil && !exists(sid) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		serveTopic(c, hub, events.SessionTopic(sid))
	}
}

// StatusSocket: thay đổi danh sách feed
func StatusSocket(hub *Hub, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorize(c, secret) {
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		client := hub.RegisterGlobal(conn)
		defer hub.UnregisterGlobal(conn)

		sendJSON(client, gin.H{"type": "connected", "topic": events.TopicGlobal})
		readUntilClosed(conn)
	}
}

func serveTopic(c *gin.Context, hub *Hub, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", "topic", topic, "error", err)
		return
	}
	client := hub.Register(topic, conn)
	defer hub.Unregister(topic, conn)

	hub.log.Debug("ws connected", "topic", topic)
	sendJSON(client, gin.H{"type": "connected", "topic": topic})
	readUntilClosed(conn)
	hub.log.Debug("ws disconnected", "topic", topic)
}

// client không gửi gì có ý nghĩa; đọc để nhận close frame
func readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
