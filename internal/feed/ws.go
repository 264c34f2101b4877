package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]bool)}
}

var (
	hubsMu sync.RWMutex
	hubs   = make(map[string]*hub)

	// adminHub receives every order event regardless of order
	adminHub = newHub()
)

func getHub(orderID string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	if h, ok := hubs[orderID]; ok {
		return h
	}
	h := newHub()
	hubs[orderID] = h
	return h
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// canSubscribe decides who may join an order's feed: the customer, the
// assigned freelancer (matched by user id, not profile id) or an admin.
func canSubscribe(userID, role, customerID, freelancerUserID string) bool {
	if role == "admin" {
		return true
	}
	return userID == customerID || (freelancerUserID != "" && userID == freelancerUserID)
}

// OrderWS - websocket for realtime updates on a single order
func OrderWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	orderID := c.Param("id")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order id"})
	}

	// Only the customer, the assigned freelancer or an admin may subscribe.
	// participants resolves the assigned freelancer's user id; the order row
	// holds the freelancer profile id, not a user id.
	customerID, freelancerUserID, err := participants(context.Background(), orderID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found or inaccessible"})
	}
	role, _ := c.Get("role").(string)
	if !canSubscribe(userID, role, customerID, freelancerUserID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this order"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h := getHub(orderID)
	h.register(ws)
	h.broadcast(wsEvent{Type: "presence_join", Data: echo.Map{"user_id": userID}})

	// Read loop (discard client messages; protocol is server push for now)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(ws)
			_ = ws.Close()
			h.broadcast(wsEvent{Type: "presence_leave", Data: echo.Map{"user_id": userID}})
			break
		}
	}
	return nil
}

// AdminFeedWS - firehose of every order event, admin only
func AdminFeedWS(c echo.Context) error {
	role, _ := c.Get("role").(string)
	if role != "admin" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin only"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	adminHub.register(ws)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			adminHub.unregister(ws)
			_ = ws.Close()
			break
		}
	}
	return nil
}

// PublishOrderEvent pushes a lifecycle event to the order's subscribers
// and the admin feed.
func PublishOrderEvent(eventType, orderID, assignmentID, title string) {
	evt := wsEvent{Type: eventType, Data: echo.Map{
		"order_id":      orderID,
		"assignment_id": assignmentID,
		"title":         title,
		"at":            time.Now().UTC().Format(time.RFC3339),
	}}
	getHub(orderID).broadcast(evt)
	adminHub.broadcast(evt)
}
