// Package api exposes the read-only HTTP query surface over the activity
// engine: the current segment and point-in-time, lookup-id, and recency
// queries used to correlate other telemetry with the activity timeline.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/tracksense/activitykit/internal/activity"
	"github.com/tracksense/activitykit/internal/httputil"
	"github.com/tracksense/activitykit/internal/segdb"
	"github.com/tracksense/activitykit/internal/units"
)

const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Engine is the query surface the server needs from the activity manager.
type Engine interface {
	CurrentSegment() *activity.Segment
	SegmentAt(t time.Time) (*activity.Segment, error)
	SegmentByLookupID(id string) (*activity.Segment, error)
	RecentSegments(n int) ([]*activity.Segment, error)
	LastSpeed() (float64, bool)
}

// Server serves the activity query API.
type Server struct {
	engine Engine
	units  string
}

// NewServer creates a server over engine. displayUnits selects the speed
// units echoed by diagnostics; it has no effect on stored data.
func NewServer(engine Engine, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.MPS
	}
	return &Server{engine: engine, units: displayUnits}
}

// Routes returns the HTTP handler with request logging attached.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/activity/current", s.handleCurrent)
	mux.HandleFunc("GET /api/activity/at", s.handleAt)
	mux.HandleFunc("GET /api/activity/recent", s.handleRecent)
	mux.HandleFunc("GET /api/activity/segment/{id}", s.handleByLookupID)
	mux.HandleFunc("GET /api/activity/status", s.handleStatus)
	return logRequests(mux)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	}
	return colorBoldRed + strconv.Itoa(statusCode) + colorReset
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("%s%s%s %s %s %s", colorCyan, r.Method, colorReset,
			r.URL.Path, statusCodeColor(lrw.statusCode), time.Since(start))
	})
}

// segmentAPI is the wire shape of a segment. Times are RFC3339Nano; a null
// end_time marks the open segment.
type segmentAPI struct {
	LookupID      string   `json:"lookup_id"`
	SessionID     string   `json:"session_id"`
	DeviceID      string   `json:"device_id"`
	Type          string   `json:"type"`
	UnknownReason string   `json:"unknown_reason,omitempty"`
	StartTime     string   `json:"start_time"`
	EndTime       *string  `json:"end_time"`
	RecordedAt    string   `json:"recorded_at"`
	StepCount     *int64   `json:"step_count,omitempty"`
	StepDistance  *float64 `json:"step_distance,omitempty"`
	Open          bool     `json:"open"`
}

func toAPI(seg *activity.Segment) segmentAPI {
	out := segmentAPI{
		LookupID:      seg.LookupID,
		SessionID:     seg.SessionID,
		DeviceID:      seg.DeviceID,
		Type:          string(seg.Type),
		UnknownReason: string(seg.UnknownReason),
		StartTime:     seg.StartTime.Format(time.RFC3339Nano),
		RecordedAt:    seg.RecordedAt.Format(time.RFC3339Nano),
		StepCount:     seg.StepCount,
		StepDistance:  seg.StepDistance,
		Open:          seg.Open(),
	}
	if !seg.Open() {
		end := seg.EndTime.Format(time.RFC3339Nano)
		out.EndTime = &end
	}
	return out
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	seg := s.engine.CurrentSegment()
	if seg == nil {
		httputil.NotFound(w, "no current segment")
		return
	}
	httputil.WriteJSONOK(w, toAPI(seg))
}

func (s *Server) handleAt(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		httputil.BadRequest(w, "missing t parameter")
		return
	}
	t, err := parseInstant(raw)
	if err != nil {
		httputil.BadRequest(w, "t must be RFC3339 or unix nanos")
		return
	}
	seg, err := s.engine.SegmentAt(t)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, toAPI(seg))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	segs, err := s.engine.RecentSegments(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]segmentAPI, 0, len(segs))
	for _, seg := range segs {
		out = append(out, toAPI(seg))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleByLookupID(w http.ResponseWriter, r *http.Request) {
	seg, err := s.engine.SegmentByLookupID(r.PathValue("id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	httputil.WriteJSONOK(w, toAPI(seg))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"units":        s.units,
		"current_type": "none",
	}
	if seg := s.engine.CurrentSegment(); seg != nil {
		status["current_type"] = string(seg.Type)
	}
	if speed, ok := s.engine.LastSpeed(); ok {
		status["speed"] = units.FromMPS(speed, s.units)
	}
	httputil.WriteJSONOK(w, status)
}

// parseInstant accepts RFC3339(Nano) or unix nanoseconds.
func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, segdb.ErrNotFound) {
		httputil.NotFound(w, "segment not found")
		return
	}
	httputil.InternalServerError(w, err.Error())
}
