package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/espnow-bridge/internal/bridges/espnow"
)

// maxEventsLimit caps the limit query parameter of /events.
const maxEventsLimit = 500

// NodeView is the API representation of a node.
type NodeView struct {
	MAC      string               `json:"mac"`
	Name     string               `json:"name"`
	DeviceID string               `json:"device_id"`
	Sensors  []espnow.Sensor      `json:"sensors"`
	Triggers []espnow.TriggerInfo `json:"triggers"`
	Events   map[string]string    `json:"events"`
}

func newNodeView(n *espnow.Node) NodeView {
	return NodeView{
		MAC:      n.MAC(),
		Name:     n.Name(),
		DeviceID: n.DeviceID(),
		Sensors:  n.Sensors(),
		Triggers: n.TriggerList(),
		Events:   n.EventBindings(),
	}
}

// handleListNodes returns every known node.
func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.nodes.Nodes()
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, newNodeView(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": views,
		"count": len(views),
	})
}

// handleGetNode returns one node by MAC.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n, ok := s.nodeFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newNodeView(n))
}

// handleListSensors returns the sensors of one node.
func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	n, ok := s.nodeFromRequest(w, r)
	if !ok {
		return
	}
	sensors := n.Sensors()
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": sensors,
		"count":   len(sensors),
	})
}

func (s *Server) nodeFromRequest(w http.ResponseWriter, r *http.Request) (*espnow.Node, bool) {
	mac := chi.URLParam(r, "mac")
	n, ok := s.nodes.ByMAC(mac)
	if !ok {
		writeNotFound(w, "node not found")
		return nil, false
	}
	return n, true
}

// handleListTriggers returns the device triggers of a node by device ID.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	triggers, err := s.triggers.ListTriggers(id)
	if err != nil {
		if errors.Is(err, espnow.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to list triggers", "device_id", id, "error", err)
		writeInternalError(w, "failed to list triggers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

// handleListEvents returns recent events, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLogSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventsLimit {
			writeBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events := []LoggedEvent{}
	if s.events != nil {
		events = s.events.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
