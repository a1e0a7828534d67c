package mapview

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/mapview"
	"momentmap/internal/domain/moment"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recenterCall struct {
	center geo.Location
	zoom   float64
}

type fitCall struct {
	count     int
	paddingPx int
}

type fakeCamera struct {
	mu        sync.Mutex
	recenters []recenterCall
	fits      []fitCall
}

func (c *fakeCamera) Recenter(center geo.Location, zoom float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recenters = append(c.recenters, recenterCall{center, zoom})
}

func (c *fakeCamera) FitToMoments(moments []moment.Moment, paddingPx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fits = append(c.fits, fitCall{len(moments), paddingPx})
}

func (c *fakeCamera) commandCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recenters) + len(c.fits)
}

func (c *fakeCamera) lastFit() fitCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fits[len(c.fits)-1]
}

type stubCatalog struct {
	mu       sync.Mutex
	moments  []moment.Moment
	extra    map[string]moment.Moment
	getCalls int
	gate     chan struct{}
	onGet    func(id string)
}

func (c *stubCatalog) ListMoments(ctx context.Context) ([]moment.Moment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]moment.Moment, len(c.moments))
	copy(out, c.moments)
	return out, nil
}

func (c *stubCatalog) GetMoment(ctx context.Context, id string) (*moment.Moment, error) {
	c.mu.Lock()
	c.getCalls++
	gate := c.gate
	m, ok := c.extra[id]
	c.mu.Unlock()

	if c.onGet != nil {
		c.onGet(id)
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return nil, moment.ErrNotFound
	}
	return &m, nil
}

func (c *stubCatalog) SaveMoment(ctx context.Context, m moment.Moment) error { return nil }

func (c *stubCatalog) FindNearbyMoments(ctx context.Context, location geo.Location, radiusKm float64) ([]moment.Moment, error) {
	return nil, nil
}

func (c *stubCatalog) IncrementCounter(ctx context.Context, id string, reaction moment.Reaction) error {
	return nil
}

func (c *stubCatalog) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCalls
}

func f64(v float64) *float64 { return &v }

func testMoment(id string, lat, lng float64) moment.Moment {
	return moment.Moment{
		ID:        id,
		Title:     "Moment " + id,
		Latitude:  f64(lat),
		Longitude: f64(lng),
		StartsAt:  "2026-08-29T18:00:00Z",
		EndsAt:    "2026-08-29T22:00:00Z",
	}
}

func testMoments(n int) []moment.Moment {
	out := make([]moment.Moment, n)
	for i := range out {
		out[i] = testMoment(fmt.Sprintf("m%d", i), float64(i), float64(i))
	}
	return out
}

func newTestEngine(t *testing.T, moments []moment.Moment) (*Engine, *fakeCamera, *fakeClock, *stubCatalog) {
	t.Helper()
	clock := newFakeClock()
	camera := &fakeCamera{}
	catalog := &stubCatalog{moments: moments}
	engine := NewEngine(catalog, camera, DefaultConfig(), clock.Now)
	return engine, camera, clock, catalog
}

func TestFirstRefreshEntersViewportWithoutCameraFit(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(3))

	require.NoError(t, engine.Refresh(context.Background()))

	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeViewport, snap.Mode)
	assert.Len(t, snap.Moments, 3)
	assert.Equal(t, 3, snap.PeekCount)
	assert.Equal(t, 0, camera.commandCount(), "first load must not move the camera")
}

func TestRefreshWithNoCandidatesStaysIdle(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, nil)

	require.NoError(t, engine.Refresh(context.Background()))

	assert.Equal(t, mapview.ModeIdle, engine.Snapshot().Mode)
}

func TestMarkerTapAlwaysYieldsSingle(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(4))
	require.NoError(t, engine.Refresh(context.Background()))

	target := testMoment("m2", 2, 2)

	// From viewport
	engine.SelectMoment(target)
	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeSingle, snap.Mode)
	require.Len(t, snap.Moments, 1)
	assert.Equal(t, "m2", snap.ActiveMomentID)
	assert.Equal(t, 1, snap.SheetIndex, "single mode opens at the highest snap")

	// From single (another tap)
	engine.SelectMoment(testMoment("m3", 3, 3))
	snap = engine.Snapshot()
	assert.Equal(t, mapview.ModeSingle, snap.Mode)
	assert.Equal(t, "m3", snap.ActiveMomentID)
	require.Len(t, snap.Moments, 1)

	assert.Equal(t, 2, camera.commandCount(), "each tap recenters")
}

func TestEmptySelectionsAreNoops(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(2))
	require.NoError(t, engine.Refresh(context.Background()))

	before := engine.Snapshot()

	engine.SelectMoment(moment.Moment{})
	engine.SelectCluster(nil)
	engine.SelectClusterIDs([]string{"unknown-1", "unknown-2"})

	after := engine.Snapshot()
	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, len(before.Moments), len(after.Moments))
	assert.Equal(t, 0, camera.commandCount())
}

func TestClusterTapSheetIndexDependsOnSize(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(8))
	require.NoError(t, engine.Refresh(context.Background()))

	// Six members: large cluster opens at the top snap
	engine.SelectCluster(testMoments(6))
	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeCluster, snap.Mode)
	assert.Equal(t, 2, snap.SheetIndex)
	assert.Equal(t, 6, snap.PeekCount)
	assert.Equal(t, 160, camera.lastFit().paddingPx)

	// Three members: opens at the middle snap
	engine.SelectCluster(testMoments(3))
	snap = engine.Snapshot()
	assert.Equal(t, mapview.ModeCluster, snap.Mode)
	assert.Equal(t, 1, snap.SheetIndex)
	assert.Equal(t, 100, camera.lastFit().paddingPx)
}

func TestBoundsDuringSettleAreDiscarded(t *testing.T) {
	engine, _, clock, _ := newTestEngine(t, testMoments(4))
	require.NoError(t, engine.Refresh(context.Background()))

	// Cluster fit opens the settle window
	engine.SelectCluster(testMoments(3))

	reported := geo.Bounds{
		NorthEast: geo.Location{Latitude: 1.5, Longitude: 1.5},
		SouthWest: geo.Location{Latitude: -0.5, Longitude: -0.5},
	}

	// 100ms into a 425ms settle window: the report is the camera echoing the
	// fit back and must vanish without a trace
	clock.Advance(100 * time.Millisecond)
	engine.ReportBounds(reported)

	engine.Dismiss()
	snap := engine.Snapshot()
	require.Equal(t, mapview.ModeViewport, snap.Mode)
	assert.Len(t, snap.Moments, 4, "discarded bounds must not confine the viewport")
}

func TestBoundsAfterSettleAreApplied(t *testing.T) {
	engine, _, clock, _ := newTestEngine(t, testMoments(4))
	require.NoError(t, engine.Refresh(context.Background()))

	engine.SelectCluster(testMoments(3))
	clock.Advance(500 * time.Millisecond)

	// Only m0 and m1 fall inside these bounds
	engine.ReportBounds(geo.Bounds{
		NorthEast: geo.Location{Latitude: 1.5, Longitude: 1.5},
		SouthWest: geo.Location{Latitude: -0.5, Longitude: -0.5},
	})

	// A pinned cluster selection survives the pan
	require.Equal(t, mapview.ModeCluster, engine.Snapshot().Mode)

	engine.Dismiss()
	snap := engine.Snapshot()
	require.Equal(t, mapview.ModeViewport, snap.Mode)
	assert.Len(t, snap.Moments, 2)
}

func TestBoundsJitterBelowEpsilonIsIgnored(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, []moment.Moment{
		testMoment("inside", 5, 5),
		testMoment("edge", 10.00002, 5),
	})
	require.NoError(t, engine.Refresh(context.Background()))

	first := geo.Bounds{
		NorthEast: geo.Location{Latitude: 10, Longitude: 10},
		SouthWest: geo.Location{Latitude: 0, Longitude: 0},
	}
	engine.ReportBounds(first)
	require.Len(t, engine.Snapshot().Moments, 1)

	// Nudging one edge by 5e-5 degrees would admit "edge", but the delta is
	// below the epsilon and the report is treated as jitter
	jittered := first
	jittered.NorthEast.Latitude += 5e-5
	engine.ReportBounds(jittered)
	assert.Len(t, engine.Snapshot().Moments, 1)

	// A material change is applied
	moved := first
	moved.NorthEast.Latitude += 2e-4
	engine.ReportBounds(moved)
	assert.Len(t, engine.Snapshot().Moments, 2)
}

func TestSheetDragUpdatesIndexOnly(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(3))
	require.NoError(t, engine.Refresh(context.Background()))

	before := camera.commandCount()
	engine.DragSheet(2)

	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeViewport, snap.Mode)
	assert.Equal(t, 2, snap.SheetIndex)
	assert.Equal(t, before, camera.commandCount(), "viewport mode never auto-fits")
}

func TestSheetDragRefitsPinnedSelection(t *testing.T) {
	engine, camera, _, _ := newTestEngine(t, testMoments(6))
	require.NoError(t, engine.Refresh(context.Background()))

	engine.SelectCluster(testMoments(6))
	require.Equal(t, 2, engine.Snapshot().SheetIndex)

	engine.DragSheet(0)
	assert.Equal(t, 0, engine.Snapshot().SheetIndex)
	assert.Equal(t, 40, camera.lastFit().paddingPx, "snap change re-fits with the new padding")

	// Dragging to the same index changes nothing
	fits := camera.commandCount()
	engine.DragSheet(0)
	assert.Equal(t, fits, camera.commandCount())
}

func TestSheetDragToBottomWhileIdleBrowsesViewport(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, testMoments(3))
	require.NoError(t, engine.Refresh(context.Background()))

	engine.Reset()
	require.Equal(t, mapview.ModeIdle, engine.Snapshot().Mode)

	engine.DragSheet(0)

	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeViewport, snap.Mode)
	assert.Equal(t, 0, snap.SheetIndex)
	assert.Len(t, snap.Moments, 3)
}

func TestResetClearsToIdle(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, testMoments(3))
	require.NoError(t, engine.Refresh(context.Background()))

	engine.SelectMoment(testMoment("m1", 1, 1))
	engine.Reset()

	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeIdle, snap.Mode)
	assert.Empty(t, snap.Moments)
	assert.Empty(t, snap.ActiveMomentID)
}

func TestTransitionHandlersAreNotified(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, testMoments(2))

	var mu sync.Mutex
	type hop struct{ from, to mapview.Mode }
	var hops []hop
	engine.RegisterTransitionHandler(func(from mapview.Mode, snap mapview.Snapshot) error {
		mu.Lock()
		defer mu.Unlock()
		hops = append(hops, hop{from, snap.Mode})
		return nil
	})

	require.NoError(t, engine.Refresh(context.Background()))
	engine.SelectMoment(testMoment("m0", 0, 0))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hops, 2)
	assert.Equal(t, hop{mapview.ModeIdle, mapview.ModeViewport}, hops[0])
	assert.Equal(t, hop{mapview.ModeViewport, mapview.ModeSingle}, hops[1])
}

func TestFocusOnPresentCandidateSelectsImmediately(t *testing.T) {
	engine, _, _, catalog := newTestEngine(t, testMoments(3))
	require.NoError(t, engine.Refresh(context.Background()))

	engine.Focus(context.Background(), "m1")

	snap := engine.Snapshot()
	assert.Equal(t, mapview.ModeSingle, snap.Mode)
	assert.Equal(t, "m1", snap.ActiveMomentID)
	assert.Equal(t, 1, snap.SheetIndex)
	assert.Equal(t, 0, catalog.calls(), "no backfill for a present candidate")
}

func TestFocusOnMissingMomentFetchesOnce(t *testing.T) {
	engine, _, _, catalog := newTestEngine(t, testMoments(2))
	catalog.extra = map[string]moment.Moment{"deep": testMoment("deep", 7, 7)}
	require.NoError(t, engine.Refresh(context.Background()))

	engine.Focus(context.Background(), "deep")
	// Re-focusing the same id must not fetch again
	engine.Focus(context.Background(), "deep")

	require.Eventually(t, func() bool {
		return engine.Snapshot().ActiveMomentID == "deep"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, mapview.ModeSingle, engine.Snapshot().Mode)
	assert.Equal(t, 1, catalog.calls(), "exactly one fetch per focus change")
}

func TestFocusSupersededFetchIsDiscarded(t *testing.T) {
	engine, _, _, catalog := newTestEngine(t, testMoments(2))
	catalog.extra = map[string]moment.Moment{
		"first":  testMoment("first", 7, 7),
		"second": testMoment("second", 8, 8),
	}
	gate := make(chan struct{})
	catalog.gate = gate
	require.NoError(t, engine.Refresh(context.Background()))

	engine.Focus(context.Background(), "first")
	engine.Focus(context.Background(), "second")

	// Release both in-flight fetches; only the still-current focus may apply
	close(gate)

	require.Eventually(t, func() bool {
		return engine.Snapshot().ActiveMomentID == "second"
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, catalog.calls())
	assert.Equal(t, "second", engine.Snapshot().ActiveMomentID, "stale focus result must never apply")
}

func TestFocusBackfillNeverOverwritesNewerSelection(t *testing.T) {
	engine, _, _, catalog := newTestEngine(t, testMoments(3))
	catalog.extra = map[string]moment.Moment{"ghost": testMoment("ghost", 9, 9)}
	require.NoError(t, engine.Refresh(context.Background()))

	// While the backfill fetch for "ghost" is in flight, a focus lands on a
	// candidate that selects immediately. The late fetch result is stale the
	// moment it resolves and must not displace the newer selection.
	raced := make(chan struct{})
	catalog.onGet = func(id string) {
		engine.Focus(context.Background(), "m1")
		close(raced)
	}

	engine.Focus(context.Background(), "ghost")
	<-raced

	require.Eventually(t, func() bool {
		snap := engine.Snapshot()
		return snap.Mode == mapview.ModeSingle && snap.ActiveMomentID == "m1"
	}, time.Second, 5*time.Millisecond)

	// Let the stale backfill finish before checking it left no mark
	time.Sleep(50 * time.Millisecond)
	snap := engine.Snapshot()
	assert.Equal(t, "m1", snap.ActiveMomentID)
	assert.Equal(t, mapview.ModeSingle, snap.Mode)
}

func TestFocusFetchFailureReportsErrorAndLeavesStateUnchanged(t *testing.T) {
	engine, _, _, _ := newTestEngine(t, testMoments(2))
	require.NoError(t, engine.Refresh(context.Background()))

	errCh := make(chan error, 1)
	engine.RegisterErrorHandler(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	before := engine.Snapshot()
	engine.Focus(context.Background(), "missing")

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a fetch error to surface")
	}

	after := engine.Snapshot()
	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, before.ActiveMomentID, after.ActiveMomentID)
}

func TestSetFilterRecomputesViewportList(t *testing.T) {
	free := testMoment("free", 1, 1)
	free.IsFree = true
	paid := testMoment("paid", 2, 2)

	engine, _, _, _ := newTestEngine(t, []moment.Moment{free, paid})
	require.NoError(t, engine.Refresh(context.Background()))
	require.Len(t, engine.Snapshot().Moments, 2)

	engine.SetFilter(moment.Filter{FreeOnly: true})

	snap := engine.Snapshot()
	require.Len(t, snap.Moments, 1)
	assert.Equal(t, "free", snap.Moments[0].ID)
}
