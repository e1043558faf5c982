package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/capemgr"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// Controller is the pin HAL as seen by the HTTP API.
// *capemgr.HAL implements it.
type Controller interface {
	Provision(p pin.Descriptor, data uint32, tmpl capemgr.Template) error
	Export(p pin.Descriptor, direction string) error
	DigitalWrite(p pin.Descriptor, value int) error
	DigitalRead(p pin.Descriptor) (int, error)
	AnalogRead(p pin.Descriptor) (float64, error)
	PWMWrite(p pin.Descriptor, freq, value float64) error
	Inspect(p pin.Descriptor) capemgr.Mode
	ReadPlatform() (capemgr.Platform, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	HAL         Controller
	Pins        pin.Table
	heartbeat   time.Duration
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, hal Controller, pins pin.Table) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		HAL:         hal,
		Pins:        pins,
		heartbeat:   30 * time.Second,
	}
}

// PinStatus is a pin with its decoded hardware state.
type PinStatus struct {
	Pin  pin.Descriptor `json:"pin"`
	Mode capemgr.Mode   `json:"mode"`
}

// ProvisionRequest is the body of POST /pins/{key}/provision.
type ProvisionRequest struct {
	Template string `json:"template"` // gpio, pwm, bspm or bspwm
	Data     uint32 `json:"data"`     // pad configuration word
}

// ExportRequest is the body of POST /pins/{key}/export.
type ExportRequest struct {
	Direction string `json:"direction"`
}

// DigitalRequest is the body of POST /pins/{key}/digital.
type DigitalRequest struct {
	Value int `json:"value"`
}

// PWMRequest is the body of POST /pins/{key}/pwm.
type PWMRequest struct {
	Freq  float64 `json:"freq"`
	Value float64 `json:"value"`
}

// ValidatePWM checks a PWM request before it reaches the hardware.
func ValidatePWM(req PWMRequest) error {
	if _, err := capemgr.PeriodNs(req.Freq); err != nil {
		return fmt.Errorf("freq must give a period of at least 1 ns: %w", err)
	}
	if math.IsNaN(req.Value) || req.Value < 0 || req.Value > 1 {
		return fmt.Errorf("value must be between 0 and 1")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps HAL errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capemgr.ErrUnknownTemplate), errors.Is(err, capemgr.ErrNoFunction),
		errors.Is(err, capemgr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, capemgr.ErrNotProvisioned), errors.Is(err, capemgr.ErrAnalogDisabled):
		return http.StatusConflict
	}
	var eerr *capemgr.ExportError
	if errors.As(err, &eerr) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

// lookup resolves the {key} path value, answering 404 when unknown.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (pin.Descriptor, bool) {
	p, err := h.Pins.Lookup(r.PathValue("key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return pin.Descriptor{}, false
	}
	return p, true
}

// result broadcasts the outcome of op on p and writes the response.
// Warnings are reported with 200 and a "warning" field.
func (h *Handlers) result(w http.ResponseWriter, p pin.Descriptor, op string, err error, body map[string]interface{}) {
	warning := capemgr.IsWarning(err)
	h.Broadcaster.BroadcastPin(p.Key, op, err, warning)
	if err != nil && !warning {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	body["pin"] = p.Key
	body["status"] = "ok"
	if warning {
		body["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleListPins handles GET /pins.
func (h *Handlers) HandleListPins(w http.ResponseWriter, r *http.Request) {
	out := make([]pin.Descriptor, 0, len(h.Pins))
	for _, k := range h.Pins.Keys() {
		out = append(out, h.Pins[k])
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetPin handles GET /pins/{key}.
func (h *Handlers) HandleGetPin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, PinStatus{Pin: p, Mode: h.HAL.Inspect(p)})
}

// HandleProvision handles POST /pins/{key}/provision.
func (h *Handlers) HandleProvision(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	tmpl, err := capemgr.ParseTemplate(req.Template)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	debug.Stage(p.Key, "provision", req)
	err = h.HAL.Provision(p, req.Data, tmpl)
	h.result(w, p, "provision", err, map[string]interface{}{"template": string(tmpl)})
}

// HandleExport handles POST /pins/{key}/export.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	err := h.HAL.Export(p, req.Direction)
	h.result(w, p, "export", err, map[string]interface{}{"direction": req.Direction})
}

// HandleDigitalRead handles GET /pins/{key}/digital.
func (h *Handlers) HandleDigitalRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v, err := h.HAL.DigitalRead(p)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pin": p.Key, "value": v})
}

// HandleDigitalWrite handles POST /pins/{key}/digital.
func (h *Handlers) HandleDigitalWrite(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req DigitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Value != 0 && req.Value != 1 {
		http.Error(w, "value must be 0 or 1", http.StatusBadRequest)
		return
	}
	err := h.HAL.DigitalWrite(p, req.Value)
	h.result(w, p, "digital", err, map[string]interface{}{"value": req.Value})
}

// HandleAnalogRead handles GET /pins/{key}/analog.
func (h *Handlers) HandleAnalogRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v, err := h.HAL.AnalogRead(p)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pin": p.Key, "value": v})
}

// HandlePWM handles POST /pins/{key}/pwm.
func (h *Handlers) HandlePWM(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PWMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidatePWM(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := h.HAL.PWMWrite(p, req.Freq, req.Value)
	h.result(w, p, "pwm", err, map[string]interface{}{"freq": req.Freq, "value": req.Value})
}

// HandleBoard handles GET /board.
func (h *Handlers) HandleBoard(w http.ResponseWriter, r *http.Request) {
	pl, err := h.HAL.ReadPlatform()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
