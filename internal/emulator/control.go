package emulator

import (
	"encoding/json"
	"net/http"

	"dev.c0redev.rdtp/internal/config"
)

// ControlServer is the emulator's operator surface: spec.md §1 scopes the
// actual GUI (sliders, charts, start/stop buttons) out of the core, so this
// exposes the same runtime knobs ("per-direction delay in ms and
// per-packet drop probability in percent") as a small loopback JSON API
// instead — grounded on the teacher's internal/server/api package shape
// (net/http + encoding/json, no web framework anywhere in the retrieved
// pack) rather than inventing a GUI toolkit dependency.
type ControlServer struct {
	engine *Engine
}

// NewControlServer wraps engine's knobs and trace store behind HTTP.
func NewControlServer(engine *Engine) *ControlServer {
	return &ControlServer{engine: engine}
}

type knobsView struct {
	DelayMS     int64 `json:"delay_ms"`
	Probability int32 `json:"probability"`
	Paused      bool  `json:"paused"`
}

// Handler returns the http.Handler to mount (e.g. on a loopback listener).
func (c *ControlServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/knobs", c.handleKnobs)
	mux.HandleFunc("/pause", c.handlePause)
	mux.HandleFunc("/resume", c.handleResume)
	mux.HandleFunc("/stats", c.handleStats)
	mux.HandleFunc("/trace.csv", c.handleTraceCSV)
	return mux
}

func (c *ControlServer) handleKnobs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req knobsView
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.DelayMS < config.MinDelayMS {
			req.DelayMS = config.MinDelayMS
		}
		if req.DelayMS > config.MaxDelayMS {
			req.DelayMS = config.MaxDelayMS
		}
		if req.Probability < 0 {
			req.Probability = 0
		}
		if req.Probability > 100 {
			req.Probability = 100
		}
		c.engine.Knobs.SetDelay(req.DelayMS)
		c.engine.Knobs.SetProbability(req.Probability)
	}
	writeJSON(w, knobsView{
		DelayMS:     c.engine.Knobs.Delay(),
		Probability: c.engine.Knobs.Probability(),
		Paused:      c.engine.Knobs.Paused(),
	})
}

func (c *ControlServer) handlePause(w http.ResponseWriter, r *http.Request) {
	c.engine.Knobs.SetPaused(true)
	w.WriteHeader(http.StatusNoContent)
}

func (c *ControlServer) handleResume(w http.ResponseWriter, r *http.Request) {
	c.engine.Knobs.SetPaused(false)
	w.WriteHeader(http.StatusNoContent)
}

func (c *ControlServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if c.engine.trace == nil {
		writeJSON(w, struct{}{})
		return
	}
	counters, err := c.engine.trace.LoadCounters()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, counters)
}

func (c *ControlServer) handleTraceCSV(w http.ResponseWriter, r *http.Request) {
	if c.engine.trace == nil {
		http.Error(w, "trace store not configured", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := c.engine.trace.ExportCSV(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
