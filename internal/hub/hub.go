// Package hub fans queue events out to WebSocket clients. Staff follow clinic
// topics or TopicAll; patients only ever follow their own patient topic.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"qms/clinic-queue/internal/models"
	"qms/clinic-queue/internal/queue"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TopicAll receives every queue event regardless of clinic.
const TopicAll = "queues"

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func PatientTopic(patientID string) string {
	return "patient:" + patientID
}

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
	// patientID pins the client to PatientTopic(patientID) when set.
	patientID string
}

func NewClient(topics ...string) *Client {
	client := &Client{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, sendBuffer),
		topics: make(map[string]struct{}),
	}
	for _, topic := range topics {
		client.topics[topic] = struct{}{}
	}
	return client
}

// NewPatientClient returns a client that only receives events about the
// given patient's own entries.
func NewPatientClient(patientID string) *Client {
	client := NewClient(PatientTopic(patientID))
	client.patientID = patientID
	return client
}

// allows reports whether the client may follow topic.
func (c *Client) allows(topic string) bool {
	if c.patientID == "" {
		return true
	}
	return topic == PatientTopic(c.patientID)
}

type SubscribeMessage struct {
	Action  string   `json:"action"`
	Topics  []string `json:"topics"`
	Clinics []string `json:"clinic_ids"`
}

// AllTopics merges explicit topics with clinic ids expressed as topics.
func (m SubscribeMessage) AllTopics() []string {
	topics := append([]string(nil), m.Topics...)
	for _, clinicID := range m.Clinics {
		topics = append(topics, queue.ClinicTopic(clinicID))
	}
	return topics
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  *logrus.Logger
}

func New(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
	for topic := range client.topics {
		if !client.allows(topic) {
			delete(client.topics, topic)
			continue
		}
		h.addLocked(client, topic)
	}
}

// Unregister drops the client from every topic and closes its Send channel.
// Calling it twice is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if !client.allows(topic) {
			continue
		}
		client.topics[topic] = struct{}{}
		if _, ok := h.all[client]; ok {
			h.addLocked(client, topic)
		}
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		delete(client.topics, topic)
		h.removeLocked(client, topic)
	}
}

func (h *Hub) addLocked(client *Client, topic string) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	subscribers, ok := h.clients[topic]
	if !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.clients, topic)
	}
}

// Broadcast delivers payload to every subscriber of the given topics. A
// client subscribed to several of them receives it once. Clients whose buffer
// is full are skipped.
func (h *Hub) Broadcast(payload []byte, topics ...string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := make(map[*Client]struct{})
	for _, topic := range topics {
		for client := range h.clients[topic] {
			if _, done := delivered[client]; done {
				continue
			}
			delivered[client] = struct{}{}
			select {
			case client.Send <- payload:
			default:
				h.logger.WithField("client_id", client.ID).Warn("drop message for slow client")
			}
		}
	}
	return len(delivered)
}

// Publish sends a queue event to its clinic topic, to TopicAll and to the
// topic of the patient who owns the entry.
func (h *Hub) Publish(_ context.Context, event queue.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topics := []string{queue.ClinicTopic(event.ClinicID), TopicAll}
	if event.Entry.PatientID != "" {
		topics = append(topics, PatientTopic(event.Entry.PatientID))
	}
	h.Broadcast(payload, topics...)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request on behalf of an authenticated actor. Staff
// are subscribed to the clinics listed in the clinic_id query parameter
// (comma separated), or TopicAll when none is given. Patients are pinned to
// their own topic and clinic_id is ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	var client *Client
	if actor.IsStaff() {
		client = NewClient(initialTopics(r.URL.Query().Get("clinic_id"))...)
	} else {
		client = NewPatientClient(actor.ID)
	}
	h.Register(client)
	h.logger.WithFields(logrus.Fields{
		"client_id": client.ID,
		"actor_id":  actor.ID,
		"role":      actor.Role,
	}).Debug("websocket client connected")

	go h.writePump(client, ws)
	h.readPump(client, ws)
}

func initialTopics(raw string) []string {
	var topics []string
	for _, clinicID := range strings.Split(raw, ",") {
		if clinicID = strings.TrimSpace(clinicID); clinicID != "" {
			topics = append(topics, queue.ClinicTopic(clinicID))
		}
	}
	if len(topics) == 0 {
		topics = append(topics, TopicAll)
	}
	return topics
}

func (h *Hub) readPump(client *Client, ws *websocket.Conn) {
	defer func() {
		h.Unregister(client)
		_ = ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, ok := ParseSubscribe(data)
		if !ok {
			continue
		}
		if msg.Action == "unsubscribe" {
			h.Unsubscribe(client, msg.AllTopics())
		} else {
			h.Subscribe(client, msg.AllTopics())
		}
	}
}

func (h *Hub) writePump(client *Client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
