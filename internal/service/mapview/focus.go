// internal/service/mapview/focus.go

package mapview

import (
	"context"
	"fmt"

	"momentmap/internal/domain/moment"
)

// Focus opens the map on one moment by ID (deep link). When the target is
// already among the current candidates it is selected immediately. Otherwise
// the catalog is asked for that one moment in the background, the result is
// merged into the working set, and the selection is retried exactly once. A
// newer focus supersedes a pending backfill: the stale fetch result is
// discarded by generation check, never applied.
func (e *Engine) Focus(ctx context.Context, id string) {
	e.mu.Lock()
	if id == "" || id == e.focusID {
		e.mu.Unlock()
		return
	}
	e.focusID = id
	e.focusGen++
	gen := e.focusGen

	if m, ok := findByID(e.candidatesLocked(), id); ok {
		e.selectMomentLocked(m)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	go e.backfillFocus(ctx, id, gen)
}

func (e *Engine) backfillFocus(ctx context.Context, id string, gen uint64) {
	m, err := e.catalog.GetMoment(ctx, id)

	e.mu.Lock()
	if gen != e.focusGen {
		// A newer focus change superseded this fetch
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.reportErrorLocked(fmt.Errorf("error fetching focused moment %s: %w", id, err))
		e.mu.Unlock()
		return
	}
	if m == nil {
		e.reportErrorLocked(fmt.Errorf("focused moment %s not found", id))
		e.mu.Unlock()
		return
	}

	if _, exists := findByID(e.all, id); !exists {
		e.all = append(e.all, *m)
	}

	// One retry against the merged set, applied inside the same critical
	// section as the generation check so a newer focus cannot slip in between
	// the check and the selection. A moment the active filter still rejects
	// stays unselected.
	if target, ok := findByID(e.candidatesLocked(), id); ok {
		e.selectMomentLocked(target)
	}
	e.mu.Unlock()
}

func findByID(moments []moment.Moment, id string) (moment.Moment, bool) {
	for _, m := range moments {
		if m.ID == id {
			return m, true
		}
	}
	return moment.Moment{}, false
}
