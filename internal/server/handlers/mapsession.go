// internal/server/handlers/mapsession.go

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"momentmap/internal/domain/geo"
	"momentmap/internal/domain/mapview"
	"momentmap/internal/domain/moment"
	mapviewService "momentmap/internal/service/mapview"
)

// MapSessionConfig contains configuration for map WebSocket sessions
type MapSessionConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultMapSessionConfig returns the default map session configuration
func DefaultMapSessionConfig() MapSessionConfig {
	return MapSessionConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// mapSession owns one connected map client and its results engine. The map
// renderer on the other end reports gestures and camera idles; the session
// answers with state snapshots and camera commands.
type mapSession struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	engine    *mapviewService.Engine
	natsConn  *nats.Conn

	// sendMu serializes enqueues against closing the send channel. Engine
	// error handlers run on background goroutines (focus backfill) and may
	// report after the client has already disconnected.
	sendMu sync.Mutex
	closed bool
}

// mapMessage is the envelope for every client-to-server message
type mapMessage struct {
	Type      string         `json:"type"`
	MomentID  string         `json:"moment_id,omitempty"`
	MomentIDs []string       `json:"moment_ids,omitempty"`
	NE        *geo.Location  `json:"ne,omitempty"`
	SW        *geo.Location  `json:"sw,omitempty"`
	Index     *int           `json:"index,omitempty"`
	Filter    *moment.Filter `json:"filter,omitempty"`
	Latitude  *float64       `json:"latitude,omitempty"`
	Longitude *float64       `json:"longitude,omitempty"`
}

// MapSessionHandler handles WebSocket connections for map browsing. Each
// connection gets its own results engine; the catalog is shared.
func MapSessionHandler(catalog moment.Catalog, natsConn *nats.Conn, engineConfig mapviewService.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		session := &mapSession{
			conn:      conn,
			send:      make(chan []byte, 256),
			sessionID: uuid.New().String(),
			natsConn:  natsConn,
		}

		// The session's send queue doubles as the camera port: camera
		// commands are messages to the remote renderer, not calls into it
		session.engine = mapviewService.NewEngine(catalog, sessionCamera{session}, engineConfig, nil)
		session.engine.RegisterErrorHandler(func(err error) {
			session.sendEnvelope("error", map[string]interface{}{"message": err.Error()})
		})
		session.engine.RegisterTransitionHandler(func(from mapview.Mode, snap mapview.Snapshot) error {
			session.publishTransition(from, snap)
			return nil
		})

		go session.writePump()
		go session.readPump()

		log.Printf("New map session %s", session.sessionID)

		// Load the initial moment set before the client starts driving
		if err := session.engine.Refresh(r.Context()); err != nil {
			log.Printf("Failed to load moments for session %s: %v", session.sessionID, err)
			session.sendEnvelope("error", map[string]interface{}{"message": "failed to load moments"})
		}

		session.sendState()
	}
}

// sessionCamera implements mapview.CameraPort over the session's send queue
type sessionCamera struct {
	session *mapSession
}

func (c sessionCamera) Recenter(center geo.Location, zoom float64) {
	loc := center
	c.session.sendEnvelope("camera", mapview.CameraCommand{
		Type:   mapview.CameraRecenter,
		Center: &loc,
		Zoom:   zoom,
	})
}

func (c sessionCamera) FitToMoments(moments []moment.Moment, paddingPx int) {
	ids := make([]string, len(moments))
	for i, m := range moments {
		ids[i] = m.ID
	}
	c.session.sendEnvelope("camera", mapview.CameraCommand{
		Type:      mapview.CameraFit,
		MomentIDs: ids,
		PaddingPx: paddingPx,
	})
}

// readPump pumps messages from the WebSocket connection into the engine
func (s *mapSession) readPump() {
	config := DefaultMapSessionConfig()

	defer func() {
		s.closeConnection()
	}()

	s.conn.SetReadLimit(config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.processIncomingMessage(message)
	}
}

// writePump pumps queued messages to the WebSocket connection
func (s *mapSession) writePump() {
	config := DefaultMapSessionConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIncomingMessage routes one client message into the engine and
// answers with the resulting state snapshot
func (s *mapSession) processIncomingMessage(message []byte) {
	var msg mapMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to parse map session message: %v", err)
		return
	}

	switch msg.Type {
	case "marker_press", "select":
		if msg.MomentID == "" {
			return
		}
		s.engine.SelectMomentID(msg.MomentID)

	case "cluster_press":
		s.engine.SelectClusterIDs(msg.MomentIDs)

	case "bounds_change":
		if msg.NE == nil || msg.SW == nil {
			return
		}
		s.engine.ReportBounds(geo.Bounds{NorthEast: *msg.NE, SouthWest: *msg.SW})

	case "sheet_drag":
		if msg.Index == nil {
			return
		}
		s.engine.DragSheet(*msg.Index)

	case "dismiss":
		s.engine.Dismiss()

	case "focus":
		if msg.MomentID == "" {
			return
		}
		s.engine.Focus(context.Background(), msg.MomentID)

	case "filters":
		if msg.Filter == nil {
			return
		}
		s.engine.SetFilter(*msg.Filter)

	case "location":
		if msg.Latitude == nil || msg.Longitude == nil {
			s.engine.SetUserLocation(nil)
		} else {
			s.engine.SetUserLocation(&geo.Location{Latitude: *msg.Latitude, Longitude: *msg.Longitude})
		}

	case "refresh":
		if err := s.engine.Refresh(context.Background()); err != nil {
			s.sendEnvelope("error", map[string]interface{}{"message": "failed to refresh moments"})
			return
		}

	default:
		log.Printf("Unknown map session message type: %s", msg.Type)
		return
	}

	s.sendState()
}

// sendState pushes the current results snapshot to the client
func (s *mapSession) sendState() {
	s.sendEnvelope("state", s.engine.Snapshot())
}

func (s *mapSession) sendEnvelope(msgType string, payload interface{}) {
	envelope := map[string]interface{}{
		"type":    msgType,
		"payload": payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("Failed to marshal %s envelope: %v", msgType, err)
		return
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.send <- data:
	default:
		// Send queue full, drop rather than block the engine
		log.Printf("Session %s send queue full, dropping %s", s.sessionID, msgType)
	}
}

// publishTransition publishes a mode transition to the event bus
func (s *mapSession) publishTransition(from mapview.Mode, snap mapview.Snapshot) {
	if s.natsConn == nil {
		return
	}

	data, err := json.Marshal(map[string]interface{}{
		"session_id":  s.sessionID,
		"from":        from,
		"to":          snap.Mode,
		"peek_count":  snap.PeekCount,
		"sheet_index": snap.SheetIndex,
	})
	if err != nil {
		return
	}

	topic := fmt.Sprintf("map.session.%s.transition", s.sessionID)
	if err := s.natsConn.Publish(topic, data); err != nil {
		log.Printf("Failed to publish transition for session %s: %v", s.sessionID, err)
	}
}

// closeConnection closes the WebSocket connection and cleans up resources.
// The closed flag is flipped under the same lock sendEnvelope enqueues under,
// so late reports from background work drop silently instead of hitting a
// closed channel.
func (s *mapSession) closeConnection() {
	s.sendMu.Lock()
	s.closed = true
	close(s.send)
	s.sendMu.Unlock()

	s.conn.Close()
	log.Printf("Map session %s closed", s.sessionID)
}
