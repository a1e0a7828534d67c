// internal/domain/mapview/model.go

package mapview

import (
	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/moment"
)

// Mode represents what the results surface is currently showing
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeSingle   Mode = "single"
	ModeCluster  Mode = "cluster"
	ModeViewport Mode = "viewport"
)

// SnapCount returns the number of sheet snap points for a mode. The single
// moment detail sheet has two resting positions, every other mode has three.
func (m Mode) SnapCount() int {
	if m == ModeSingle {
		return 2
	}
	return 3
}

// ResultsState is the state owned by the results engine. Consumers read a
// Snapshot, never this struct directly.
type ResultsState struct {
	Mode           Mode
	Moments        []moment.Moment
	ActiveMomentID string
	SheetIndex     int
}

// Snapshot is the read model handed to the sheet collaborator
type Snapshot struct {
	Mode           Mode            `json:"mode"`
	Moments        []moment.Moment `json:"moments"`
	ActiveMomentID string          `json:"active_moment_id,omitempty"`
	SheetIndex     int             `json:"sheet_index"`
	PeekCount      int             `json:"peek_count"`
}

// TransitionHandler is notified after each mode transition
type TransitionHandler func(from Mode, snap Snapshot) error

// CameraPort is the narrow command interface to the map renderer. The engine
// issues commands through it instead of holding a handle into the renderer.
type CameraPort interface {
	// Recenter moves the camera to a point at the given zoom level
	Recenter(center geo.Location, zoom float64)

	// FitToMoments frames the given moments, leaving paddingPx of margin so
	// the results sheet does not cover them
	FitToMoments(moments []moment.Moment, paddingPx int)
}

// CameraCommandType identifies a camera command on the wire
type CameraCommandType string

const (
	CameraRecenter CameraCommandType = "recenter"
	CameraFit      CameraCommandType = "fit"
)

// CameraCommand is the serialized form of a CameraPort call, for transports
// that relay camera control to a remote renderer
type CameraCommand struct {
	Type      CameraCommandType `json:"type"`
	Center    *geo.Location     `json:"center,omitempty"`
	Zoom      float64           `json:"zoom,omitempty"`
	MomentIDs []string          `json:"moment_ids,omitempty"`
	PaddingPx int               `json:"padding_px,omitempty"`
}
