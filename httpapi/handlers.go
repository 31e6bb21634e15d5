package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/flowkernel"
)

type connectorView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Peers       []string `json:"peers,omitempty"`
}

type moduleView struct {
	Handle      uint64          `json:"handle"`
	ID          string          `json:"id"`
	Prototype   string          `json:"prototype"`
	Description string          `json:"description"`
	State       string          `json:"state"`
	Running     bool            `json:"running"`
	Error       string          `json:"error,omitempty"`
	Inputs      []connectorView `json:"inputs"`
	Outputs     []connectorView `json:"outputs"`
}

type propertyView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Value       string `json:"value"`
}

type candidateView struct {
	From   uint64 `json:"from"`
	Output string `json:"output"`
	To     uint64 `json:"to"`
	Input  string `json:"input"`
	Label  string `json:"label"`
}

type connectionRequest struct {
	From   uint64 `json:"from"`
	Output string `json:"output"`
	To     uint64 `json:"to"`
	Input  string `json:"input"`
}

type createRequest struct {
	Prototype string `json:"prototype"`
}

type propertyRequest struct {
	Value string `json:"value"`
}

type projectResponse struct {
	Modules map[uint64]uint64 `json:"modules"`
	Skipped int               `json:"skipped"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func viewConnector(c flowkernel.Connector) connectorView {
	v := connectorView{Name: c.Name(), Description: c.Description(), Type: string(c.Type())}
	for _, p := range c.Peers() {
		v.Peers = append(v.Peers, p.CanonicalName())
	}
	return v
}

func viewModule(m *flowkernel.Module) moduleView {
	v := moduleView{
		Handle:      uint64(m.Handle()),
		ID:          m.ID().String(),
		Prototype:   m.Prototype(),
		Description: m.Description(),
		State:       m.State().String(),
		Running:     m.IsRunning(),
		Inputs:      []connectorView{},
		Outputs:     []connectorView{},
	}
	if err := m.Err(); err != nil {
		v.Error = err.Error()
	}
	for _, in := range m.Inputs() {
		v.Inputs = append(v.Inputs, viewConnector(in))
	}
	for _, out := range m.Outputs() {
		v.Outputs = append(v.Outputs, viewConnector(out))
	}
	return v
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules := s.kernel.Modules()
	views := make([]moduleView, 0, len(modules))
	for _, m := range modules {
		views = append(views, viewModule(m))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	m, err := s.kernel.CreateModule(req.Prototype)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewModule(m))
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.module(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewModule(m))
}

func (s *Server) handleRemoveModule(w http.ResponseWriter, r *http.Request) {
	m, err := s.module(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	deep, _ := strconv.ParseBool(r.URL.Query().Get("deep"))
	if err := s.kernel.RemoveModule(r.Context(), m.Handle(), deep); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	m, err := s.module(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	props := m.Properties().List()
	views := make([]propertyView, 0, len(props))
	for _, p := range props {
		views = append(views, propertyView{
			Name:        p.Name(),
			Description: p.Description(),
			Type:        p.Type().String(),
			Value:       p.String(),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	m, err := s.module(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	if err := s.kernel.SetProperty(m.Handle(), chi.URLParam(r, "name"), req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	m, err := s.module(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	candidates := s.kernel.Root().PossibleConnections(m)
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, candidateView{
			From:   uint64(c.Output.Module().Handle()),
			Output: c.Output.Name(),
			To:     uint64(c.Input.Module().Handle()),
			Input:  c.Input.Name(),
			Label:  c.String(),
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	err := s.kernel.Connect(flowkernel.Handle(req.From), req.Output, flowkernel.Handle(req.To), req.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	err := s.kernel.Disconnect(flowkernel.Handle(req.From), req.Output, flowkernel.Handle(req.To), req.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPrototypes(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.kernel.Factory().Prototypes())
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.kernel.PollProgress())
}

// handleHealth answers 503 only when the kernel is unhealthy; a degraded
// kernel still serves.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.kernel.Health()
	status := http.StatusOK
	if h.Status == flowkernel.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) handleSaveProject(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := s.kernel.SaveProject(&buf); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	res, err := s.kernel.LoadProject(r.Context(), r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := projectResponse{Modules: make(map[uint64]uint64, len(res.Modules)), Skipped: res.Skipped}
	for id, m := range res.Modules {
		resp.Modules[id] = uint64(m.Handle())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) module(r *http.Request) (*flowkernel.Module, error) {
	raw := chi.URLParam(r, "handle")
	h, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, badRequest(fmt.Errorf("invalid module handle %q", raw))
	}
	return s.kernel.Module(flowkernel.Handle(h))
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

// statusFor maps kernel errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr), errors.Is(err, flowkernel.ErrPropertyValue):
		return http.StatusBadRequest
	case errors.Is(err, flowkernel.ErrModuleNotFound),
		errors.Is(err, flowkernel.ErrPrototypeNotFound),
		errors.Is(err, flowkernel.ErrConnectorNotFound),
		errors.Is(err, flowkernel.ErrPropertyNotFound):
		return http.StatusNotFound
	case errors.Is(err, flowkernel.ErrStructural),
		errors.Is(err, flowkernel.ErrNotConnected),
		errors.Is(err, flowkernel.ErrModuleNotAssociated):
		return http.StatusConflict
	case errors.Is(err, flowkernel.ErrProjectLine):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("HTTP API request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to encode response", "error", err)
	}
}
