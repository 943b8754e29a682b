package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"

	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/core/domain"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

// stubRepo serves only the ownership lookups the hub performs.
type stubRepo struct {
	reservations map[string]*domain.Reservation
}

func (s *stubRepo) GetReservation(ctx context.Context, bookingNumber string) (*domain.Reservation, error) {
	// Real drivers refuse work on a dead context; do the same so a lookup
	// arriving on one is caught here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res, exists := s.reservations[bookingNumber]; exists {
		return res, nil
	}
	return nil, domain.ErrReservationNotFound
}

func (s *stubRepo) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	return errors.New("not implemented")
}

func (s *stubRepo) ConfirmReservation(ctx context.Context, bookingNumber string) error {
	return errors.New("not implemented")
}

func (s *stubRepo) CancelReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	return errors.New("not implemented")
}

func (s *stubRepo) ExpireReservation(ctx context.Context, bookingNumber, reason string, now time.Time) error {
	return errors.New("not implemented")
}

func (s *stubRepo) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return nil, nil
}

func (s *stubRepo) GetInventory(ctx context.Context, category, itemID string) (*domain.Inventory, error) {
	return nil, domain.ErrInventoryNotFound
}

func newTestHub(repo *stubRepo) *Hub {
	if repo == nil {
		repo = &stubRepo{reservations: make(map[string]*domain.Reservation)}
	}
	// nil redis client: events stay process-local, which is what these
	// tests exercise.
	return NewHub(nil, "travleap:events", repo, logger.NewNop())
}

func newTestClient(hub *Hub, identity *auth.Identity, buffer int) *Client {
	return &Client{
		hub:           hub,
		identity:      identity,
		send:          make(chan []byte, buffer),
		subscriptions: make(map[string]struct{}),
	}
}

func receiveEvent(t *testing.T, c *Client) domain.InventoryUpdateEvent {
	t.Helper()
	select {
	case data := <-c.send:
		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		return frame.InventoryUpdateEvent
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return domain.InventoryUpdateEvent{}
	}
}

func TestHub_PublishDeliversToLocalSubscribers(t *testing.T) {
	hub := newTestHub(nil)
	ctx := context.Background()

	subscribed := newTestClient(hub, nil, 8)
	other := newTestClient(hub, nil, 8)

	if err := hub.Subscribe(ctx, subscribed, "inventory:rentcar:veh_1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := hub.Subscribe(ctx, other, "inventory:rentcar:veh_2"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event := domain.InventoryUpdateEvent{
		Channel:  "inventory:rentcar:veh_1",
		Category: "rentcar",
		ItemID:   "veh_1",
		Action:   domain.EventActionHold,
	}
	if err := hub.Publish(ctx, event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	got := receiveEvent(t, subscribed)
	if got.Action != domain.EventActionHold || got.ItemID != "veh_1" {
		t.Errorf("unexpected event %+v", got)
	}

	select {
	case data := <-other.send:
		t.Errorf("client on another channel received %s", data)
	default:
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := newTestHub(nil)
	ctx := context.Background()

	c := newTestClient(hub, nil, 8)
	if err := hub.Subscribe(ctx, c, "inventory:rentcar:veh_1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	hub.Unsubscribe(c, "inventory:rentcar:veh_1")

	hub.Publish(ctx, domain.InventoryUpdateEvent{Channel: "inventory:rentcar:veh_1"})

	select {
	case data := <-c.send:
		t.Errorf("unsubscribed client received %s", data)
	default:
	}
}

func TestHub_BookingChannelAccess(t *testing.T) {
	repo := &stubRepo{reservations: map[string]*domain.Reservation{
		"TL-1": {BookingNumber: "TL-1", UserID: "owner-1"},
	}}
	hub := newTestHub(repo)
	ctx := context.Background()

	cases := []struct {
		name     string
		identity *auth.Identity
		channel  string
		allowed  bool
	}{
		{"anonymous denied", nil, "booking:TL-1", false},
		{"owner allowed", &auth.Identity{UserID: "owner-1", Role: auth.RoleUser}, "booking:TL-1", true},
		{"stranger denied", &auth.Identity{UserID: "other", Role: auth.RoleUser}, "booking:TL-1", false},
		{"admin allowed", &auth.Identity{UserID: "staff", Role: auth.RoleAdmin}, "booking:TL-1", true},
		{"unknown booking denied", &auth.Identity{UserID: "owner-1", Role: auth.RoleUser}, "booking:TL-404", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(hub, tc.identity, 1)
			err := hub.Subscribe(ctx, c, tc.channel)
			if tc.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrChannelForbidden) {
				t.Errorf("expected ErrChannelForbidden, got %v", err)
			}
		})
	}
}

func TestHub_VendorChannelAccess(t *testing.T) {
	hub := newTestHub(nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		identity *auth.Identity
		allowed  bool
	}{
		{"anonymous denied", nil, false},
		{"matching vendor allowed", &auth.Identity{UserID: "u1", Role: auth.RoleVendor, VendorID: "v42"}, true},
		{"other vendor denied", &auth.Identity{UserID: "u2", Role: auth.RoleVendor, VendorID: "v7"}, false},
		{"plain user denied", &auth.Identity{UserID: "u3", Role: auth.RoleUser, VendorID: "v42"}, false},
		{"admin allowed", &auth.Identity{UserID: "staff", Role: auth.RoleAdmin}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(hub, tc.identity, 1)
			err := hub.Subscribe(ctx, c, "vendor:v42")
			if tc.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrChannelForbidden) {
				t.Errorf("expected ErrChannelForbidden, got %v", err)
			}
		})
	}
}

func TestHub_UnknownChannelForbidden(t *testing.T) {
	hub := newTestHub(nil)
	c := newTestClient(hub, &auth.Identity{UserID: "u1", Role: auth.RoleAdmin}, 1)

	err := hub.Subscribe(context.Background(), c, "internal:secrets")
	if !errors.Is(err, ErrChannelForbidden) {
		t.Errorf("expected ErrChannelForbidden, got %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("malformed frame %s: %v", data, err)
	}
	return frame
}

func expectFrameType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != want {
		t.Fatalf("expected %q frame, got %v", want, frame)
	}
	return frame
}

// Drives the full client protocol over a real connection: the ownership
// lookup for the booking channel must run on the connection's lifetime, not
// on the upgrade request's context, which is long dead by the time the
// subscribe frame arrives.
func TestClient_OwnerSubscribesToBookingChannelOverWire(t *testing.T) {
	const secret = "wire-test-secret"

	repo := &stubRepo{reservations: map[string]*domain.Reservation{
		"TL-1": {BookingNumber: "TL-1", UserID: "owner-1"},
	}}
	hub := newTestHub(repo)
	verifier := auth.NewVerifier(secret)
	log := logger.NewNop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, verifier, log, w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectFrameType(t, conn, "connected")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "owner-1",
		"role": auth.RoleUser,
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if err := conn.WriteJSON(inboundFrame{Type: "authenticate", Token: token}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	expectFrameType(t, conn, "authenticated")

	if err := conn.WriteJSON(inboundFrame{Type: "subscribe", Channel: "booking:TL-1"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	sub := expectFrameType(t, conn, "subscribed")
	if sub["channel"] != "booking:TL-1" {
		t.Fatalf("subscribed to wrong channel: %v", sub)
	}

	hub.Publish(context.Background(), domain.InventoryUpdateEvent{
		Channel:       "booking:TL-1",
		Category:      "rentcar",
		ItemID:        "veh_1",
		Action:        domain.EventActionConfirm,
		BookingNumber: "TL-1",
	})

	event := expectFrameType(t, conn, "event")
	if event["booking_number"] != "TL-1" || event["action"] != string(domain.EventActionConfirm) {
		t.Errorf("unexpected event payload: %v", event)
	}
}

func TestHub_SlowClientIsDroppedNotBlockedOn(t *testing.T) {
	hub := newTestHub(nil)
	ctx := context.Background()

	slow := newTestClient(hub, nil, 1)
	if err := hub.Subscribe(ctx, slow, "inventory:rentcar:veh_1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			hub.Publish(ctx, domain.InventoryUpdateEvent{Channel: "inventory:rentcar:veh_1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow client")
	}

	slow.sendMu.Lock()
	closed := slow.closed
	slow.sendMu.Unlock()
	if !closed {
		t.Error("overflowing client should be closed")
	}
}
