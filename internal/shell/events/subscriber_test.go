package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type recordingHandler struct {
	mu       sync.Mutex
	triggers []routing.Trigger
	deadline bool
	err      error
}

func (h *recordingHandler) HandleTrigger(ctx context.Context, t routing.Trigger) (*scheduler.TriggerResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggers = append(h.triggers, t)
	_, h.deadline = ctx.Deadline()
	if h.err != nil {
		return &scheduler.TriggerResult{}, h.err
	}
	return &scheduler.TriggerResult{Builds: 1}, nil
}

// =============================================================================
// Config Tests
// =============================================================================

func TestNewSubscriber_Defaults(t *testing.T) {
	s := NewSubscriber(&recordingHandler{}, Config{}, nil)

	assert.Equal(t, nats.DefaultURL, s.config.URL)
	assert.Equal(t, "dynroute.triggers", s.config.Subject)
	assert.Equal(t, "dynroute", s.config.Queue)
	assert.Equal(t, 2*time.Minute, s.config.HandleTimeout)
}

func TestNewSubscriber_KeepsOverrides(t *testing.T) {
	s := NewSubscriber(&recordingHandler{}, Config{Subject: "cms.changes", HandleTimeout: time.Second}, nil)

	assert.Equal(t, "cms.changes", s.config.Subject)
	assert.Equal(t, time.Second, s.config.HandleTimeout)
}

// =============================================================================
// Message Handling Tests
// =============================================================================

func TestHandleMessage_DispatchesTrigger(t *testing.T) {
	h := &recordingHandler{}
	s := NewSubscriber(h, Config{}, nil)

	s.handleMessage(&nats.Msg{
		Subject: "dynroute.triggers",
		Data:    []byte(`{"kind":"node.updated","site_id":"s1","node_id":"about","build_siblings":true}`),
	})

	require.Len(t, h.triggers, 1)
	assert.Equal(t, routing.Trigger{
		Kind:          routing.NodeUpdated,
		SiteID:        "s1",
		NodeID:        "about",
		BuildSiblings: true,
	}, h.triggers[0])
	assert.True(t, h.deadline, "builds run under the handle timeout")
}

func TestHandleMessage_DropsMalformed(t *testing.T) {
	h := &recordingHandler{}
	s := NewSubscriber(h, Config{}, nil)

	s.handleMessage(&nats.Msg{Subject: "dynroute.triggers", Data: []byte("not json")})

	assert.Empty(t, h.triggers)
}

func TestHandleMessage_HandlerErrorsAreAbsorbed(t *testing.T) {
	for _, err := range []error{
		errors.New("database is locked"),
		&slugbuild.FatalConflictError{Conflicts: []routing.ConflictReport{{Text: "home", NodeID: "a", ConflictingNodeID: "b"}}},
	} {
		h := &recordingHandler{err: err}
		s := NewSubscriber(h, Config{}, nil)

		assert.NotPanics(t, func() {
			s.handleMessage(&nats.Msg{Data: []byte(`{"kind":"site.reconcile","site_id":"s1"}`)})
		})
		assert.Len(t, h.triggers, 1)
	}
}

func TestHandleMessage_ReplyWithoutConnectionIsSkipped(t *testing.T) {
	h := &recordingHandler{}
	s := NewSubscriber(h, Config{}, nil)

	assert.NotPanics(t, func() {
		s.handleMessage(&nats.Msg{Reply: "_INBOX.1", Data: []byte(`{"kind":"site.reconcile","site_id":"s1"}`)})
	})
	assert.Len(t, h.triggers, 1)
}

func TestStop_NotStarted(t *testing.T) {
	s := NewSubscriber(&recordingHandler{}, Config{}, nil)
	assert.NotPanics(t, s.Stop)
}
