// internal/service/mapview/camera.go

package mapview

import (
	"time"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/mapview"
	"momentmap/internal/domain/moment"
)

// guardPhase tracks whether a programmatic camera move is settling
type guardPhase int

const (
	guardIdle guardPhase = iota
	guardAwaitingSettle
)

// Coordinator decides when and how the map camera moves in response to
// engine transitions, and suppresses the bounds feedback those moves cause.
// Every command it issues opens a settle window; bounds reports arriving
// inside the window are the camera echoing the command back and must be
// dropped, otherwise the fit/viewport cycle feeds itself.
type Coordinator struct {
	port   mapview.CameraPort
	config Config
	now    func() time.Time

	phase       guardPhase
	settleUntil time.Time
}

// NewCoordinator creates a camera coordinator issuing commands through port
func NewCoordinator(port mapview.CameraPort, config Config, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		port:   port,
		config: config,
		now:    now,
	}
}

// Recenter moves the camera to a single point
func (c *Coordinator) Recenter(center geo.Location, zoom float64) {
	c.beginMove()
	c.port.Recenter(center, zoom)
}

// FitToMoments frames the given moments with padding appropriate for the
// sheet's current snap index. Fitting an empty list is a no-op.
func (c *Coordinator) FitToMoments(moments []moment.Moment, sheetIndex int) {
	if len(moments) == 0 {
		return
	}
	c.beginMove()
	c.port.FitToMoments(moments, c.PaddingFor(sheetIndex))
}

// PaddingFor maps a sheet snap index to the padding budget that keeps the
// fitted region clear of the sheet
func (c *Coordinator) PaddingFor(sheetIndex int) int {
	switch sheetIndex {
	case 0:
		return c.config.PaddingLow
	case 1:
		return c.config.PaddingMedium
	default:
		return c.config.PaddingHigh
	}
}

// MoveInProgress reports whether a programmatic move is still settling. The
// guard is a state checked against the clock, not a timer: once the settle
// window has passed the coordinator is idle again without anything firing.
func (c *Coordinator) MoveInProgress() bool {
	if c.phase != guardAwaitingSettle {
		return false
	}
	if c.now().Before(c.settleUntil) {
		return true
	}
	c.phase = guardIdle
	return false
}

func (c *Coordinator) beginMove() {
	c.phase = guardAwaitingSettle
	c.settleUntil = c.now().Add(c.config.SettleDelay)
}
