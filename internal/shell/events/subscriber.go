// Package events feeds change triggers published on NATS into the
// scheduling service.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/nats-io/nats.go"
)

// TriggerHandler runs the builds for one trigger.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, t routing.Trigger) (*scheduler.TriggerResult, error)
}

// Config configures the subscriber.
type Config struct {
	// URL of the NATS server.
	// Default: nats.DefaultURL
	URL string

	// Subject triggers are published on.
	// Default: "dynroute.triggers"
	Subject string

	// Queue group shared by all instances, so each trigger is handled once.
	// Default: "dynroute"
	Queue string

	// HandleTimeout bounds the builds run for one message.
	// Default: 2 minutes
	HandleTimeout time.Duration
}

// DefaultConfig returns the default subscriber configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "dynroute.triggers",
		Queue:         "dynroute",
		HandleTimeout: 2 * time.Minute,
	}
}

// Reply is sent back to requesters that set a reply subject.
type Reply struct {
	OK        bool                     `json:"ok"`
	Error     string                   `json:"error,omitempty"`
	Result    *scheduler.TriggerResult `json:"result,omitempty"`
	Conflicts []routing.ConflictReport `json:"conflicts,omitempty"`
}

// Subscriber consumes trigger messages from NATS.
type Subscriber struct {
	handler TriggerHandler
	config  Config
	logger  *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription

	// ctx is the parent of every message's build context.
	ctx context.Context
}

// NewSubscriber creates a new subscriber. Zero config fields take defaults.
func NewSubscriber(handler TriggerHandler, config Config, logger *slog.Logger) *Subscriber {
	defaults := DefaultConfig()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.Subject == "" {
		config.Subject = defaults.Subject
	}
	if config.Queue == "" {
		config.Queue = defaults.Queue
	}
	if config.HandleTimeout == 0 {
		config.HandleTimeout = defaults.HandleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		handler: handler,
		config:  config,
		logger:  logger.With("component", "events"),
		ctx:     context.Background(),
	}
}

// Start connects to NATS and subscribes to the trigger subject.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return errors.New("subscriber already started")
	}

	conn, err := nats.Connect(s.config.URL,
		nats.Name("dynroute"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.ctx = ctx
	sub, err := conn.QueueSubscribe(s.config.Subject, s.config.Queue, s.handleMessage)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Subject, err)
	}

	s.conn = conn
	s.sub = sub
	s.logger.Info("subscribed to triggers",
		"url", s.config.URL,
		"subject", s.config.Subject,
		"queue", s.config.Queue,
	)
	return nil
}

// Stop drains the subscription and closes the connection. Messages already
// delivered are still handled.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("failed to drain NATS connection", "error", err)
		s.conn.Close()
	}
	s.conn = nil
	s.sub = nil
	s.logger.Info("trigger subscriber stopped")
}

// handleMessage decodes one trigger and runs it. Malformed messages are
// logged and dropped.
func (s *Subscriber) handleMessage(msg *nats.Msg) {
	var t routing.Trigger
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		s.logger.Warn("dropping malformed trigger", "subject", msg.Subject, "error", err)
		s.reply(msg, Reply{Error: "malformed trigger: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.HandleTimeout)
	defer cancel()

	res, err := s.handler.HandleTrigger(ctx, t)
	if err != nil {
		out := Reply{Error: err.Error(), Result: res}
		if fatal, ok := slugbuild.IsFatalConflict(err); ok {
			out.Conflicts = fatal.Conflicts
		} else {
			s.logger.Error("trigger failed",
				"kind", t.Kind,
				"site_id", t.SiteID,
				"node_id", t.NodeID,
				"error", err,
			)
		}
		s.reply(msg, out)
		return
	}

	s.logger.Debug("trigger handled",
		"kind", t.Kind,
		"site_id", t.SiteID,
		"builds", res.Builds,
		"suppressed", res.Suppressed,
	)
	s.reply(msg, Reply{OK: true, Result: res})
}

func (s *Subscriber) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("failed to encode reply", "error", err)
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Publish(msg.Reply, data); err != nil {
		s.logger.Warn("failed to send reply", "reply", msg.Reply, "error", err)
	}
}
