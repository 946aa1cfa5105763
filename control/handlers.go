package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/frye/ais-to-nmea0183/component"
	"github.com/frye/ais-to-nmea0183/config"
)

// componentStopTimeout bounds how long an individual component's Stop is
// given when invoked from the control surface.
const componentStopTimeout = 2 * time.Second

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	comp := r.PathValue("component")
	ctx := r.Context()

	var err error
	switch comp {
	case "upstream":
		err = s.controller.Upstream().Start(ctx)
	case "broadcast":
		err = startOrUnavailable(ctx, s.controller.Broadcast())
	case "datagram":
		err = startOrUnavailable(ctx, s.controller.Datagram())
	default:
		writeError(w, http.StatusNotFound, "unknown component: "+comp)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "component": comp})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	comp := r.PathValue("component")

	var err error
	switch comp {
	case "upstream":
		err = s.controller.Upstream().Stop(componentStopTimeout)
	case "broadcast":
		err = stopOrUnavailable(s.controller.Broadcast())
	case "datagram":
		err = stopOrUnavailable(s.controller.Datagram())
	default:
		writeError(w, http.StatusNotFound, "unknown component: "+comp)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "component": comp})
}

// starter/stopper let handleStart/handleStop treat the broadcast server
// and the datagram emitter uniformly without type-switching twice.
type starter interface {
	Start(ctx context.Context) error
}

type stopper interface {
	Stop(timeout time.Duration) error
}

// startOrUnavailable and stopOrUnavailable take the concrete pointer type,
// so a nil *broadcast.Server or *datagram.Emitter (sink disabled) is seen
// as nil; wrapped in a plain interface it would compare non-nil.
func startOrUnavailable[C interface {
	comparable
	starter
}](ctx context.Context, c C) error {
	var disabled C
	if c == disabled {
		return errComponentDisabled
	}
	return c.Start(ctx)
}

func stopOrUnavailable[C interface {
	comparable
	stopper
}](c C) error {
	var disabled C
	if c == disabled {
		return errComponentDisabled
	}
	return c.Stop(componentStopTimeout)
}

var errComponentDisabled = &disabledError{}

type disabledError struct{}

func (*disabledError) Error() string { return "component is disabled in the current configuration" }

// handleBoundingBox validates the request body against the bounding-box
// JSON Schema, then runs it through the service controller's
// replace_bounding_box operation (spec.md §4.7).
func (s *Server) handleBoundingBox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if err := config.ValidateBoundingBoxPayload(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bbox config.BoundingBox
	if err := json.Unmarshal(body, &bbox); err != nil {
		writeError(w, http.StatusBadRequest, "malformed bounding box payload")
		return
	}

	if err := s.controller.ReplaceBoundingBox(bbox); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "replaced", "bounding_box": bbox})
}

// statusResponse is the /status payload: the controller's statistics
// snapshot plus each managed component's health and flow metrics.
type statusResponse struct {
	Snapshot  any            `json:"snapshot"`
	Upstream  componentState `json:"upstream"`
	Broadcast *componentState `json:"broadcast,omitempty"`
	Datagram  *componentState `json:"datagram,omitempty"`
}

type componentState struct {
	Healthy           bool    `json:"healthy"`
	Uptime            string  `json:"uptime"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	ErrorRate         float64 `json:"error_rate"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Snapshot: s.controller.Snapshot(),
		Upstream: toComponentState(s.controller.Upstream()),
	}
	if bc := s.controller.Broadcast(); bc != nil {
		state := toComponentState(bc)
		resp.Broadcast = &state
	}
	if dg := s.controller.Datagram(); dg != nil {
		state := toComponentState(dg)
		resp.Datagram = &state
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports the aggregate health rollup across the upstream
// client and whichever sinks are enabled, for use by an external health
// check (e.g. a load balancer or orchestrator liveness probe).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.controller.AggregateHealth()

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func toComponentState(c component.Discoverable) componentState {
	health := c.Health()
	flow := c.DataFlow()
	return componentState{
		Healthy:           health.Healthy,
		Uptime:            health.Uptime.String(),
		MessagesPerSecond: flow.MessagesPerSecond,
		ErrorRate:         flow.ErrorRate,
	}
}
