package hass

import (
	"context"
	"errors"
	"fmt"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/pkg/pubsub"
	"github.com/gorilla/websocket"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultReconnectDelay = 10 * time.Second

// A Cache receives every changed entity before the change is published.
type Cache interface {
	Refresh(ctx context.Context) error
	Update(Entity)
}

// Listener subscribes to Home Assistant's state_changed events and publishes each one as a host.Event. When the
// connection drops, Listener reconnects and reloads the Cache, as changes may have been missed.
type Listener struct {
	*pubsub.Publisher[host.Event]
	URL            string
	Token          string
	Cache          Cache
	ReconnectDelay time.Duration
	logger         *slog.Logger
	ready          chan struct{}
	readyOnce      sync.Once
}

func NewListener(url, token string, cache Cache, logger *slog.Logger) *Listener {
	return &Listener{
		Publisher:      pubsub.New[host.Event](logger),
		URL:            websocketURL(url),
		Token:          token,
		Cache:          cache,
		ReconnectDelay: defaultReconnectDelay,
		logger:         logger,
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the Listener has connected and loaded the Cache for the first time.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

func websocketURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	if !strings.HasSuffix(url, "/api/websocket") {
		url += "/api/websocket"
	}
	return strings.Replace(url, "http", "ws", 1)
}

type message struct {
	ID      int    `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Event   *struct {
		EventType string    `json:"event_type"`
		TimeFired time.Time `json:"time_fired"`
		Data      struct {
			EntityID string  `json:"entity_id"`
			OldState *Entity `json:"old_state"`
			NewState *Entity `json:"new_state"`
		} `json:"data"`
	} `json:"event,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (l *Listener) Run(ctx context.Context) error {
	l.logger.Debug("listener started")
	defer l.logger.Debug("listener stopped")

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("connection to home assistant lost. reconnecting", "err", err, "delay", l.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.ReconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// unblock ReadJSON on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err = l.authenticate(conn); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err = conn.WriteJSON(map[string]any{"id": 1, "type": "subscribe_events", "event_type": "state_changed"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if l.Cache != nil {
		if err = l.Cache.Refresh(ctx); err != nil {
			return err
		}
	}
	l.logger.Info("connected to home assistant", "url", l.URL)
	l.readyOnce.Do(func() { close(l.ready) })

	for {
		var msg message
		if err = conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("connection closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		switch msg.Type {
		case "event":
			l.handle(msg)
		case "result":
			if !msg.Success && msg.Error != nil {
				return fmt.Errorf("request %d failed: %s", msg.ID, msg.Error.Message)
			}
		}
	}
}

func (l *Listener) authenticate(conn *websocket.Conn) error {
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		return err
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("unexpected message: %s", msg.Type)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": l.Token}); err != nil {
		return err
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return err
	}
	if msg.Type != "auth_ok" {
		return fmt.Errorf("authentication failed: %s %s", msg.Type, msg.Message)
	}
	return nil
}

func (l *Listener) handle(msg message) {
	if msg.Event == nil || msg.Event.EventType != "state_changed" {
		return
	}
	data := msg.Event.Data
	ev := host.Event{Key: data.EntityID, Time: msg.Event.TimeFired}
	if data.OldState != nil {
		ev.Old = data.OldState.State
	}
	if data.NewState != nil {
		ev.New = data.NewState.State
		ev.Attributes = data.NewState.Attributes
	}
	if l.Cache != nil {
		if data.NewState != nil {
			l.Cache.Update(*data.NewState)
		} else {
			l.Cache.Update(Entity{EntityID: data.EntityID})
		}
	}
	l.Publish(ev)
}
