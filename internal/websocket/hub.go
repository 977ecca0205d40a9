package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressWatcher streams the course progress of an enrollment.
type ProgressWatcher interface {
	OwnedEnrollment(ctx context.Context, userID, enrollmentID string) (*models.Enrollment, error)
	WatchCourseProgress(ctx context.Context, enrollmentID string) (<-chan int, error)
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex

	watchMu sync.Mutex
	watches map[string]context.CancelFunc
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) writeJSON(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(data)
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*client
	redisClient *redis.Client
	jwt         *middleware.JWTAuth
	progress    ProgressWatcher
	cancelFuncs map[string]context.CancelFunc
}

// NewHub fans user events out to WebSocket connections. With a Redis client
// events arrive over the user's pub/sub channel, so any server instance may
// publish them; without one only Publish on this hub reaches the user.
func NewHub(redisClient *redis.Client, jwt *middleware.JWTAuth, progress ProgressWatcher) *Hub {
	return &Hub{
		connections: make(map[string][]*client),
		redisClient: redisClient,
		jwt:         jwt,
		progress:    progress,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// SetProgressWatcher enables watch_progress requests. It must be called
// before the hub serves connections.
func (h *Hub) SetProgressWatcher(p ProgressWatcher) {
	h.progress = p
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := h.jwt.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, watches: make(map[string]context.CancelFunc)}
	h.registerConnection(userID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			h.handleClientMessage(userID, c, data)
		}
	}()
}

type watchRequest struct {
	EnrollmentID string `json:"enrollment_id"`
}

type progressEvent struct {
	EnrollmentID string `json:"enrollment_id"`
	Progress     int    `json:"progress"`
}

// handleClientMessage serves the few requests a client may send:
// watch_progress and unwatch_progress for one of its enrollments.
func (h *Hub) handleClientMessage(userID string, c *client, data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	var req watchRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return
		}
	}

	switch msg.Type {
	case "watch_progress":
		h.watchProgress(userID, c, req.EnrollmentID)
	case "unwatch_progress":
		c.watchMu.Lock()
		if cancel, ok := c.watches[req.EnrollmentID]; ok {
			cancel()
			delete(c.watches, req.EnrollmentID)
		}
		c.watchMu.Unlock()
	}
}

func (h *Hub) watchProgress(userID string, c *client, enrollmentID string) {
	if h.progress == nil || enrollmentID == "" {
		return
	}

	c.watchMu.Lock()
	if _, ok := c.watches[enrollmentID]; ok {
		c.watchMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.watches[enrollmentID] = cancel
	c.watchMu.Unlock()

	fail := func(code, message string) {
		cancel()
		c.watchMu.Lock()
		delete(c.watches, enrollmentID)
		c.watchMu.Unlock()
		c.writeJSON(models.WSMessage{Type: "error", Payload: models.ErrorEvent{ErrorCode: code, ErrorMessage: message}})
	}

	if _, err := h.progress.OwnedEnrollment(ctx, userID, enrollmentID); err != nil {
		fail("NOT_FOUND", "Enrollment not found")
		return
	}
	updates, err := h.progress.WatchCourseProgress(ctx, enrollmentID)
	if err != nil {
		fail("WATCH_FAILED", err.Error())
		return
	}

	go func() {
		for pct := range updates {
			if err := c.writeJSON(models.WSMessage{
				Type:    "progress",
				Payload: progressEvent{EnrollmentID: enrollmentID, Progress: pct},
			}); err != nil {
				cancel()
			}
		}
	}()
}

func (h *Hub) registerConnection(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	// Start pub/sub subscription if this is the first connection for this user
	if len(h.connections[userID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribeToPubSub(ctx, userID)
	}

	log.Printf("WebSocket connected: user %s (total: %d)", userID, len(h.connections[userID]))
}

func (h *Hub) unregisterConnection(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()
	c.watchMu.Lock()
	for id, cancel := range c.watches {
		cancel()
		delete(c.watches, id)
	}
	c.watchMu.Unlock()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	log.Printf("WebSocket disconnected: user %s", userID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, userID string) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID string, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			log.Printf("WebSocket write to user %s failed: %v", userID, err)
		}
	}
}

// Publish delivers msg to the user's connections on this instance.
func (h *Hub) Publish(_ context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(userID, data)
}

// Connected reports how many connections the user has on this instance.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
