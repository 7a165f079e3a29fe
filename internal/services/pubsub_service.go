package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"roomwatch/internal/models"

	"github.com/redis/go-redis/v9"
)

// RoomEventsPattern matches every room's event channel
const RoomEventsPattern = "room:*:events"

// RoomChannel returns the event channel for a room
func RoomChannel(room string) string {
	return "room:" + room + ":events"
}

// RoomFromChannel extracts the room name from an event channel
func RoomFromChannel(channel string) string {
	return strings.TrimSuffix(strings.TrimPrefix(channel, "room:"), ":events")
}

// EventHandler is a callback for room events
type EventHandler func(channel string, event *models.Event)

// PubSubService carries room events between the decision loop and dashboards
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handlers   map[string][]EventHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		handlers:   make(map[string][]EventHandler),
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// InstanceID identifies this process on the bus
func (s *PubSubService) InstanceID() string {
	return s.instanceID
}

// Subscribe registers a handler for channels matching the glob pattern
func (s *PubSubService) Subscribe(pattern string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[pattern] = append(s.handlers[pattern], handler)
	log.Printf("📡 [PUBSUB] Subscribed to pattern: %s", pattern)
}

// Start begins listening for room events
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.PSubscribe(s.ctx, RoomEventsPattern)

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		s.pubsub.Close()
		s.pubsub = nil
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Started listening for room events (instance: %s)", s.instanceID)
	return nil
}

func (s *PubSubService) processMessages() {
	defer close(s.done)
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

func (s *PubSubService) handleMessage(msg *redis.Message) {
	var event models.Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal event: %v", err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if event.InstanceID == s.instanceID {
		return
	}
	if event.Room == "" {
		event.Room = RoomFromChannel(msg.Channel)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for pattern, handlers := range s.handlers {
		if !matchPattern(pattern, msg.Channel) {
			continue
		}
		for _, handler := range handlers {
			handler(msg.Channel, &event)
		}
	}
}

// Publish sends an event on its room's channel
func (s *PubSubService) Publish(ctx context.Context, event *models.Event) error {
	if event.Room == "" {
		return errors.New("event has no room")
	}
	event.InstanceID = s.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, RoomChannel(event.Room), data)
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub == nil {
		return nil
	}
	err := s.pubsub.Close()
	<-s.done
	return err
}

// matchPattern reports whether channel matches a Redis-style glob pattern
func matchPattern(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}
