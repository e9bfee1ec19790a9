package notify

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxControlSize = 1024
	sendBuffer     = 32
)

// Control message types sent by clients.
const (
	JoinGroup  = "join_group"
	LeaveGroup = "leave_group"
)

// Control is a client request to join or leave a class group.
type Control struct {
	Type    string `json:"type"`
	ClassID string `json:"class_id"`
}

// Handler upgrades requests to websocket subscribers of reg.
// An empty allowedOrigin accepts any origin.
func Handler(reg *Registry, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigin == "" || allowedOrigin == "*" || strings.EqualFold(origin, allowedOrigin)
		},
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		sub := NewSubscriber(sendBuffer)
		reg.Add(sub)
		log.Debug().Str("subscriber", sub.ID).Msg("subscriber connected")

		go writeLoop(conn, sub)
		readLoop(conn, reg, sub)
	}
}

// readLoop handles control messages until the connection fails, then unregisters.
func readLoop(conn *websocket.Conn, reg *Registry, sub *Subscriber) {
	defer func() {
		reg.Remove(sub)
		_ = conn.Close()
		log.Debug().Str("subscriber", sub.ID).Msg("subscriber disconnected")
	}()
	conn.SetReadLimit(maxControlSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ctl Control
		if err := json.Unmarshal(data, &ctl); err != nil {
			continue
		}
		classID := strings.TrimSpace(ctl.ClassID)
		switch ctl.Type {
		case JoinGroup:
			reg.Join(sub, classID)
		case LeaveGroup:
			reg.Leave(sub, classID)
		}
	}
}

// writeLoop drains the subscriber's queue and keeps the connection alive with pings.
func writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
