package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jaemin-s/eventsync/pkg/events"
)

// Change message event names sent by the backend on the events stream.
const (
	ChangeCreated = "event.created"
	ChangeUpdated = "event.updated"
	ChangeDeleted = "event.deleted"
)

// ChangeMessage is one frame of the backend's change stream.
type ChangeMessage struct {
	Stream string     `json:"stream"`
	Event  string     `json:"event"`
	Data   ChangeData `json:"data"`
}

// ChangeData identifies the event that changed.
type ChangeData struct {
	ID string `json:"id"`
}

const (
	defaultReconnectDelay = 2 * time.Second
	maxReconnectDelay     = 30 * time.Second
	liveReadLimit         = 1 << 20
)

// LiveOption customises Listen.
type LiveOption func(*liveConfig)

type liveConfig struct {
	dialer   *websocket.Dialer
	header   http.Header
	delay    time.Duration
	onChange func(ChangeMessage)
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) LiveOption {
	return func(cfg *liveConfig) {
		if d != nil {
			cfg.dialer = d
		}
	}
}

// WithHeader adds handshake headers, e.g. Authorization.
func WithHeader(h http.Header) LiveOption {
	return func(cfg *liveConfig) {
		cfg.header = h
	}
}

// WithReconnectDelay sets the first reconnect delay. It doubles up to 30s while the backend is unreachable.
func WithReconnectDelay(d time.Duration) LiveOption {
	return func(cfg *liveConfig) {
		if d > 0 {
			cfg.delay = d
		}
	}
}

// WithChangeHook is called after each change has been applied to the cache.
func WithChangeHook(fn func(ChangeMessage)) LiveOption {
	return func(cfg *liveConfig) {
		cfg.onChange = fn
	}
}

// Listen follows the backend change stream at wsURL and invalidates affected keys until ctx ends.
// Dropped connections are re-established. It returns ctx.Err() on shutdown.
func (c *Client) Listen(ctx context.Context, wsURL string, opts ...LiveOption) error {
	cfg := liveConfig{dialer: websocket.DefaultDialer, delay: defaultReconnectDelay}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := c.log.With(zap.String("url", wsURL))
	delay := cfg.delay
	for {
		connected, err := c.listenOnce(ctx, wsURL, cfg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = cfg.delay
			// missed changes while disconnected
			c.store.Invalidate(ListKey())
		}
		log.Warn("live connection lost, reconnecting", zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, wsURL string, cfg liveConfig) (bool, error) {
	conn, _, err := cfg.dialer.DialContext(ctx, wsURL, cfg.header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	conn.SetReadLimit(liveReadLimit)
	c.log.Debug("live connection established", zap.String("url", wsURL))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("server closed the stream")
			}
			return true, err
		}

		var msg ChangeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.log.Debug("ignoring malformed change message", zap.Error(err))
			continue
		}
		if !c.ApplyChange(msg) {
			continue
		}
		if cfg.onChange != nil {
			cfg.onChange(msg)
		}
	}
}

// ApplyChange updates the cache for one change message. It reports whether the message concerned events.
func (c *Client) ApplyChange(msg ChangeMessage) bool {
	if !strings.EqualFold(strings.TrimSpace(msg.Stream), events.Collection) {
		return false
	}
	id := strings.TrimSpace(msg.Data.ID)

	switch msg.Event {
	case ChangeDeleted:
		if id != "" {
			c.store.Remove(DetailKey(id))
		}
		c.store.Invalidate(ListKey())
	case ChangeCreated, ChangeUpdated:
		c.store.Invalidate(ListKey())
	default:
		return false
	}
	c.log.Debug("applied change", zap.String("event", msg.Event), zap.String("id", id))
	return true
}
