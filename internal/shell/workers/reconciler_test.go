package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/pattern"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/artpar/dynroute/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type staticSites struct {
	sites []domain.Site
	err   error
}

func (s *staticSites) ListSites(ctx context.Context) ([]domain.Site, error) {
	return s.sites, s.err
}

type countingHandler struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
}

func (h *countingHandler) HandleTrigger(ctx context.Context, t routing.Trigger) (*scheduler.TriggerResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[t.SiteID]++
	res := &scheduler.TriggerResult{Builds: 1, Stats: slugbuild.CommitStats{Updated: 1}}
	return res, h.errs[t.SiteID]
}

func (h *countingHandler) count(siteID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[siteID]
}

// =============================================================================
// Test Configuration
// =============================================================================

func TestDefaultReconcilerConfig(t *testing.T) {
	config := DefaultReconcilerConfig()

	assert.Equal(t, time.Hour, config.Interval)
	assert.Equal(t, 10*time.Minute, config.SiteTimeout)
	assert.Equal(t, 2, config.MaxConcurrent)
	assert.False(t, config.RunOnStart)
}

func TestNewReconciler_DefaultConfig(t *testing.T) {
	r := NewReconciler(&staticSites{}, &countingHandler{}, ReconcilerConfig{}, nil)

	assert.Equal(t, time.Hour, r.config.Interval)
	assert.Equal(t, 10*time.Minute, r.config.SiteTimeout)
	assert.Equal(t, 2, r.config.MaxConcurrent)
}

// =============================================================================
// Test Cycles
// =============================================================================

func TestRunCycle_EverySite(t *testing.T) {
	h := &countingHandler{errs: map[string]error{
		"broken":   errors.New("database is locked"),
		"conflict": &slugbuild.FatalConflictError{Conflicts: []routing.ConflictReport{{Text: "a"}, {Text: "b"}}},
	}}
	sites := &staticSites{sites: []domain.Site{{ID: "s1"}, {ID: "broken"}, {ID: "conflict"}}}
	r := NewReconciler(sites, h, ReconcilerConfig{MaxConcurrent: 1}, nil)

	report := r.RunCycle(context.Background())

	assert.Equal(t, 3, report.Sites)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Conflicts)
	assert.Equal(t, 3, report.Stats.Updated)
	for _, id := range []string{"s1", "broken", "conflict"} {
		assert.Equal(t, 1, h.count(id), id)
	}
}

func TestRunCycle_ListFails(t *testing.T) {
	h := &countingHandler{}
	r := NewReconciler(&staticSites{err: errors.New("closed")}, h, ReconcilerConfig{}, nil)

	report := r.RunCycle(context.Background())

	assert.Zero(t, report.Sites)
	assert.Empty(t, h.calls)
}

func TestRunCycle_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreateSite(ctx, &domain.Site{ID: "s1", DefaultLocale: "en", Locales: []string{"en"}}))
	require.NoError(t, s.UpsertNodeType(ctx, &domain.NodeType{Name: "root", PathTemplate: "{Title}"}))
	require.NoError(t, s.CreateNode(ctx, &domain.Node{ID: "home", SiteID: "s1", TypeName: "root", Name: "Home"}))
	require.NoError(t, s.SaveDocument(ctx, &domain.Document{
		NodeID: "home", Locale: "en", Published: true, Fields: map[string]string{"Title": "Home"},
	}))

	engine := slugbuild.NewEngine(s, s, pattern.NewResolver(), slugbuild.DefaultEngineConfig(), nil)
	svc := scheduler.NewService(s, engine, nil, nil, scheduler.Config{}, nil)
	r := NewReconciler(s, svc, ReconcilerConfig{}, nil)

	report := r.RunCycle(ctx)
	assert.Equal(t, 1, report.Stats.Inserted)

	report = r.RunCycle(ctx)
	assert.Zero(t, report.Stats.Total(), "second cycle finds no drift")

	rec, err := s.GetSlugByNodeLocale(ctx, "home", "en")
	require.NoError(t, err)
	assert.Equal(t, "home", rec.Text)
}

// =============================================================================
// Test Lifecycle
// =============================================================================

func TestReconciler_StartStop(t *testing.T) {
	h := &countingHandler{}
	sites := &staticSites{sites: []domain.Site{{ID: "s1"}}}
	r := NewReconciler(sites, h, ReconcilerConfig{Interval: time.Hour, RunOnStart: true}, nil)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start(), "second start is refused")

	require.Eventually(t, func() bool { return h.count("s1") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
}
