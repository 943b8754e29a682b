package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

var ErrChannelForbidden = errors.New("subscription to channel not permitted")

// envelope is the frame carried on the shared Redis fan-out channel.
// Origin lets a process skip its own messages: local delivery already
// happened synchronously at publish time.
type envelope struct {
	Origin string                      `json:"origin"`
	Event  domain.InventoryUpdateEvent `json:"event"`
}

// Hub routes inventory/booking events to locally connected websocket
// observers and relays them across sibling processes through a shared Redis
// pub/sub channel. Observer connections are process-local; state changes can
// originate on any process, so both legs are required.
type Hub struct {
	origin      string
	redisClient *redis.Client
	fanoutChan  string
	repo        port.ReservationRepository
	logger      *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{}
}

func NewHub(redisClient *redis.Client, fanoutChan string, repo port.ReservationRepository, log *logger.Logger) *Hub {
	return &Hub{
		origin:      uuid.NewString(),
		redisClient: redisClient,
		fanoutChan:  fanoutChan,
		repo:        repo,
		logger:      log,
		subscribers: make(map[string]map[*Client]struct{}),
	}
}

// Run consumes the shared fan-out channel and delivers sibling-originated
// events to local subscribers. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.redisClient == nil {
		h.logger.Warn("realtime hub running without redis fan-out: events stay process-local")
		<-ctx.Done()
		return
	}

	sub := h.redisClient.Subscribe(ctx, h.fanoutChan)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warnw("realtime: dropping malformed fan-out message", "error", err)
				continue
			}
			if env.Origin == h.origin {
				continue
			}
			h.deliverLocal(env.Event)
		}
	}
}

// Publish delivers the event to local subscribers synchronously and relays
// it to sibling processes. Best-effort on both legs.
func (h *Hub) Publish(ctx context.Context, event domain.InventoryUpdateEvent) error {
	h.deliverLocal(event)

	if h.redisClient == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: h.origin, Event: event})
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	if err := h.redisClient.Publish(ctx, h.fanoutChan, payload).Err(); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

func (h *Hub) deliverLocal(event domain.InventoryUpdateEvent) {
	data, err := json.Marshal(eventFrame{Type: "event", InventoryUpdateEvent: event})
	if err != nil {
		return
	}

	h.mu.RLock()
	subs := h.subscribers[event.Channel]
	clients := make([]*Client, 0, len(subs))
	for c := range subs {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		// Non-blocking: a slow observer never back-pressures the publisher.
		if !c.trySend(data) {
			h.logger.Warnw("realtime: dropping slow client", "channel", event.Channel)
			c.closeSlow()
		}
	}
}

// Subscribe attaches a client to a channel after an access check.
func (h *Hub) Subscribe(ctx context.Context, c *Client, channel string) error {
	allowed, err := h.canSubscribe(ctx, c.identity, channel)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrChannelForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[*Client]struct{})
	}
	h.subscribers[channel][c] = struct{}{}
	c.subscriptions[channel] = struct{}{}
	return nil
}

func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, channel)
}

func (h *Hub) removeLocked(c *Client, channel string) {
	if subs := h.subscribers[channel]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subscribers, channel)
		}
	}
	delete(c.subscriptions, channel)
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range c.subscriptions {
		h.removeLocked(c, channel)
	}
}

// canSubscribe enforces channel access: inventory channels are public,
// booking channels belong to the booking's owner or an admin, vendor
// channels to the vendor or an admin. Unauthenticated connections get
// public channels only.
func (h *Hub) canSubscribe(ctx context.Context, id *auth.Identity, channel string) (bool, error) {
	switch {
	case strings.HasPrefix(channel, "inventory:"):
		return true, nil

	case strings.HasPrefix(channel, "booking:"):
		if id == nil {
			return false, nil
		}
		if id.IsAdmin() {
			return true, nil
		}
		bookingNumber := strings.TrimPrefix(channel, "booking:")
		res, err := h.repo.GetReservation(ctx, bookingNumber)
		if errors.Is(err, domain.ErrReservationNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return res.UserID == id.UserID, nil

	case strings.HasPrefix(channel, "vendor:"):
		if id == nil {
			return false, nil
		}
		if id.IsAdmin() {
			return true, nil
		}
		return id.Role == auth.RoleVendor && id.VendorID == strings.TrimPrefix(channel, "vendor:"), nil
	}
	return false, nil
}
