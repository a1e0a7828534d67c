// internal/service/mapview/engine.go

package mapview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/mapview"
	"momentmap/internal/domain/moment"
	"momentmap/internal/service/filter"
	"momentmap/internal/service/rank"
	"momentmap/internal/service/viewport"
)

// Config contains tunables for a map results engine
type Config struct {
	// SettleDelay is how long the camera is expected to take to finish a
	// programmatic move. Observed behavior is 400-450ms; this is a tunable,
	// not a contract.
	SettleDelay time.Duration

	// BoundsEpsilon is the minimum per-edge delta, in degrees, for a bounds
	// report to count as a materially different viewport
	BoundsEpsilon float64

	// Padding budgets (px) per sheet snap index
	PaddingLow    int
	PaddingMedium int
	PaddingHigh   int

	// LargeClusterSize is the member count at which a cluster selection
	// opens the sheet at its top snap
	LargeClusterSize int

	// FocusZoom is the camera zoom used when centering on a single moment
	FocusZoom float64
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		SettleDelay:      425 * time.Millisecond,
		BoundsEpsilon:    1e-4,
		PaddingLow:       40,
		PaddingMedium:    100,
		PaddingHigh:      160,
		LargeClusterSize: 5,
		FocusZoom:        14,
	}
}

// Engine keeps the map viewport, the ranked results list and the results
// sheet mutually consistent. It owns the results state; collaborators read
// snapshots and drive it through its transition methods. Entry points are
// serialized by a mutex, so each triggering input is handled to completion
// before the next one starts.
type Engine struct {
	catalog moment.Catalog
	filters *filter.Engine
	sorter  *rank.Sorter
	camera  *Coordinator
	config  Config
	now     func() time.Time

	mu          sync.Mutex
	all         []moment.Moment
	filter      moment.Filter
	restriction moment.FocusRestriction
	userLoc     *geo.Location
	bounds      *geo.Bounds
	state       mapview.ResultsState

	focusGen uint64
	focusID  string

	transitionHandlers []mapview.TransitionHandler
	errorHandlers      []func(error)
}

// NewEngine creates a map results engine reading moments from catalog and
// steering the map through port. A nil clock falls back to time.Now.
func NewEngine(catalog moment.Catalog, port mapview.CameraPort, config Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		catalog: catalog,
		filters: filter.NewEngine(now),
		sorter:  rank.NewSorter(now),
		camera:  NewCoordinator(port, config, now),
		config:  config,
		now:     now,
		state:   mapview.ResultsState{Mode: mapview.ModeIdle},
	}
}

// RegisterTransitionHandler registers a callback for mode transitions
func (e *Engine) RegisterTransitionHandler(handler mapview.TransitionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transitionHandlers = append(e.transitionHandlers, handler)
}

// RegisterErrorHandler registers a callback for asynchronous failures,
// such as a focus backfill fetch going wrong
func (e *Engine) RegisterErrorHandler(handler func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorHandlers = append(e.errorHandlers, handler)
}

// Refresh reloads the full moment set from the catalog and recomputes the
// candidate list. The first time candidates become non-empty the engine
// leaves idle for viewport mode without touching the camera, so the user is
// not disoriented on initial load.
func (e *Engine) Refresh(ctx context.Context) error {
	moments, err := e.catalog.ListMoments(ctx)
	if err != nil {
		return fmt.Errorf("error listing moments: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.all = moments
	e.recomputeLocked()
	return nil
}

// SetFilter replaces the active filter and recomputes candidates
func (e *Engine) SetFilter(f moment.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.filter = f.Normalize()
	e.recomputeLocked()
}

// Filter returns the active filter
func (e *Engine) Filter() moment.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// SetUserLocation updates the location used by distance-aware ranking
func (e *Engine) SetUserLocation(loc *geo.Location) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if loc == nil {
		e.userLoc = nil
	} else {
		l := *loc
		e.userLoc = &l
	}
	e.recomputeLocked()
}

// SelectMoment handles a marker tap. The sheet opens at its highest snap
// with the tapped moment as the single payload. An empty selection is a
// no-op; callers must guard against it.
func (e *Engine) SelectMoment(m moment.Moment) {
	if m.ID == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectMomentLocked(m)
}

func (e *Engine) selectMomentLocked(m moment.Moment) {
	from := e.state.Mode
	e.restriction = nil
	e.state = mapview.ResultsState{
		Mode:           mapview.ModeSingle,
		Moments:        []moment.Moment{m},
		ActiveMomentID: m.ID,
		SheetIndex:     mapview.ModeSingle.SnapCount() - 1,
	}

	if loc, ok := m.Coordinates(); ok {
		e.camera.Recenter(loc, e.config.FocusZoom)
	}
	e.notifyTransitionLocked(from)
}

// SelectCluster handles a cluster tap. The cluster's members become the
// payload and a focus restriction; larger clusters open the sheet further.
// An empty selection is a no-op.
func (e *Engine) SelectCluster(members []moment.Moment) {
	if len(members) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make(moment.FocusRestriction, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	sheetIndex := 1
	if len(members) >= e.config.LargeClusterSize {
		sheetIndex = mapview.ModeCluster.SnapCount() - 1
	}

	from := e.state.Mode
	e.restriction = ids
	e.state = mapview.ResultsState{
		Mode:       mapview.ModeCluster,
		Moments:    members,
		SheetIndex: sheetIndex,
	}

	e.camera.FitToMoments(members, sheetIndex)
	e.notifyTransitionLocked(from)
}

// SelectMomentID resolves a marker tap reported by ID against the current
// candidates. Unknown IDs are a no-op.
func (e *Engine) SelectMomentID(id string) {
	e.mu.Lock()
	m, ok := findByID(e.candidatesLocked(), id)
	e.mu.Unlock()

	if ok {
		e.SelectMoment(m)
	}
}

// SelectClusterIDs resolves a cluster tap reported as member IDs against the
// current candidates. IDs that resolve to nothing are dropped; an entirely
// unknown cluster is a no-op.
func (e *Engine) SelectClusterIDs(ids []string) {
	e.mu.Lock()
	candidates := e.candidatesLocked()
	members := make([]moment.Moment, 0, len(ids))
	for _, id := range ids {
		if m, ok := findByID(candidates, id); ok {
			members = append(members, m)
		}
	}
	e.mu.Unlock()

	e.SelectCluster(members)
}

// ReportBounds handles a camera-idle report from the map. Reports arriving
// while a programmatic move is settling are discarded entirely; that is the
// anti-feedback-loop invariant. A materially different viewport while no
// selection is pinned moves the engine to viewport mode with the visible
// candidate subset.
func (e *Engine) ReportBounds(b geo.Bounds) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.camera.MoveInProgress() {
		return
	}

	if e.bounds != nil && !b.DiffersFrom(*e.bounds, e.config.BoundsEpsilon) {
		return
	}

	nb := b
	e.bounds = &nb

	// An explicit selection pins the current payload; panning around it
	// only updates the stored viewport
	if e.state.Mode == mapview.ModeSingle || e.state.Mode == mapview.ModeCluster {
		return
	}

	e.enterViewportLocked()
}

// DragSheet handles a sheet drag gesture, updating only the snap index.
// Dragging to the bottom snap while idle with available moments browses the
// viewport instead. In single and cluster modes a snap change re-fits the
// camera so the payload stays clear of the sheet.
func (e *Engine) DragSheet(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	maxIndex := e.state.Mode.SnapCount() - 1
	if index < 0 {
		index = 0
	}
	if index > maxIndex {
		index = maxIndex
	}

	if e.state.Mode == mapview.ModeIdle {
		if index == 0 && len(e.candidatesLocked()) > 0 {
			e.enterViewportLocked()
			e.state.SheetIndex = 0
		}
		return
	}

	if index == e.state.SheetIndex {
		return
	}
	e.state.SheetIndex = index

	switch e.state.Mode {
	case mapview.ModeSingle, mapview.ModeCluster:
		e.camera.FitToMoments(e.state.Moments, index)
	}
}

// Dismiss releases a pinned selection, returning to viewport browsing when
// candidates remain and to idle otherwise
func (e *Engine) Dismiss() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Mode != mapview.ModeSingle && e.state.Mode != mapview.ModeCluster {
		return
	}

	e.restriction = nil
	if len(e.candidatesLocked()) > 0 {
		e.enterViewportLocked()
		return
	}

	from := e.state.Mode
	e.state = mapview.ResultsState{Mode: mapview.ModeIdle}
	e.notifyTransitionLocked(from)
}

// Reset returns the engine to idle with an empty result list
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.state.Mode
	e.restriction = nil
	e.state = mapview.ResultsState{Mode: mapview.ModeIdle}
	e.notifyTransitionLocked(from)
}

// Snapshot returns a copy of the current results state for consumers
func (e *Engine) Snapshot() mapview.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() mapview.Snapshot {
	moments := make([]moment.Moment, len(e.state.Moments))
	copy(moments, e.state.Moments)

	return mapview.Snapshot{
		Mode:           e.state.Mode,
		Moments:        moments,
		ActiveMomentID: e.state.ActiveMomentID,
		SheetIndex:     e.state.SheetIndex,
		PeekCount:      len(moments),
	}
}

// candidatesLocked runs the filter pipeline over the full set
func (e *Engine) candidatesLocked() []moment.Moment {
	return e.filters.Apply(e.all, e.filter, e.restriction)
}

// rankedLocked orders candidates by the active sort mode. Distance sorting
// without a user location is a documented no-op: the list comes back in
// candidate order.
func (e *Engine) rankedLocked(candidates []moment.Moment) []moment.Moment {
	f := e.filter.Normalize()
	ranked, _ := e.sorter.Sort(candidates, f.Sort, e.userLoc, f.Order)
	return ranked
}

// recomputeLocked refreshes the displayed list after the inputs changed.
// Pinned selections keep their payload; idle fires the one-time transition
// to viewport browsing once candidates exist.
func (e *Engine) recomputeLocked() {
	switch e.state.Mode {
	case mapview.ModeSingle, mapview.ModeCluster:
		return
	case mapview.ModeIdle:
		if len(e.candidatesLocked()) == 0 {
			return
		}
		e.enterViewportLocked()
	case mapview.ModeViewport:
		e.state.Moments = e.rankedLocked(viewport.Visible(e.candidatesLocked(), e.bounds))
	}
}

// enterViewportLocked moves to viewport mode with the visible candidate
// subset. Viewport browsing never auto-fits the camera: the user is panning
// deliberately.
func (e *Engine) enterViewportLocked() {
	from := e.state.Mode

	sheetIndex := e.state.SheetIndex
	if from == mapview.ModeIdle || from == mapview.ModeSingle {
		sheetIndex = 1
	}

	e.restriction = nil
	e.state = mapview.ResultsState{
		Mode:       mapview.ModeViewport,
		Moments:    e.rankedLocked(viewport.Visible(e.candidatesLocked(), e.bounds)),
		SheetIndex: sheetIndex,
	}

	if from != mapview.ModeViewport {
		e.notifyTransitionLocked(from)
	}
}

func (e *Engine) notifyTransitionLocked(from mapview.Mode) {
	snap := e.snapshotLocked()
	for _, handler := range e.transitionHandlers {
		if err := handler(from, snap); err != nil {
			e.reportErrorLocked(fmt.Errorf("transition handler: %w", err))
		}
	}
}

func (e *Engine) reportErrorLocked(err error) {
	for _, handler := range e.errorHandlers {
		handler(err)
	}
}
