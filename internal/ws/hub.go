package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/internal/vote"
	"github.com/jukebox-queue-system/pkg/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Voter applies votes sent over the socket.
type Voter interface {
	ApplyVote(ctx context.Context, itemID, userID uuid.UUID, isUpvote bool) (*vote.Result, error)
}

// EventSource feeds the hub from a broker shared by all server instances.
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler func(events.Event) error) error
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans change events out to connected clients. Notifications addressed to
// a user only reach that user's connections.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// Publish delivers the event to local clients. It makes the hub usable as the
// events.Publisher when no broker is configured.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	message, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if event.UserID != "" && event.UserID != c.userID {
			continue
		}
		select {
		case c.send <- message:
		default:
			log.Warn().Str("user_id", c.userID).Str("event", string(event.Type)).Msg("websocket client too slow, dropping event")
		}
	}
	return nil
}

// Run relays events from source until ctx is done.
func (h *Hub) Run(ctx context.Context, source EventSource) error {
	return source.ConsumeEvents(ctx, func(event events.Event) error {
		return h.Publish(ctx, event)
	})
}

// Handler upgrades the request and streams events until the client leaves.
// Vote messages from the client are applied through voter.
func (h *Hub) Handler(voter Voter) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		cl := &client{
			userID: c.GetString("user_id"), // Set by auth middleware
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
		}
		h.register(cl)
		defer h.unregister(cl)

		go cl.writePump()
		h.readPump(c.Request.Context(), cl, voter)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	log.Debug().Str("user_id", c.userID).Int("clients", len(h.clients)).Msg("websocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

type inboundMessage struct {
	Type        string `json:"type"`
	QueueItemID string `json:"queue_item_id"`
	IsUpvote    bool   `json:"is_upvote"`
}

type voteReply struct {
	Type    string       `json:"type"`
	Success bool         `json:"success"`
	Vote    *vote.Result `json:"vote,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (h *Hub) readPump(ctx context.Context, c *client, voter Voter) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("failed to parse websocket message")
			continue
		}

		switch msg.Type {
		case "vote":
			h.reply(c, handleVote(ctx, voter, c, msg))
		}
	}
}

func handleVote(ctx context.Context, voter Voter, c *client, msg inboundMessage) voteReply {
	reply := voteReply{Type: "voteResult"}
	userID, err := uuid.Parse(c.userID)
	if err != nil {
		reply.Error = "invalid user"
		return reply
	}
	itemID, err := uuid.Parse(msg.QueueItemID)
	if err != nil {
		reply.Error = "invalid queue item id"
		return reply
	}

	result, err := voter.ApplyVote(ctx, itemID, userID, msg.IsUpvote)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Success = true
	reply.Vote = result
	return reply
}

func (h *Hub) reply(c *client, reply voteReply) {
	message, err := json.Marshal(reply)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
