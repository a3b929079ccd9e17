package adminhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/mux"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/metrics"
	"github.com/bavix/scanbridge/internal/scanner"
	"github.com/bavix/scanbridge/internal/session"
	"github.com/bavix/scanbridge/internal/version"
)

var errDeviceIDRequired = errors.New("device_id is required")

type errorResponse struct {
	Error string `json:"error"`
}

type devicesResponse struct {
	Devices []*devices.Descriptor `json:"devices"`
}

type connectionView struct {
	State  string              `json:"state"`
	Device *devices.Descriptor `json:"device,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type connectRequest struct {
	DeviceID string `json:"device_id"`
}

type historyResponse struct {
	Results []session.ScanResult `json:"results"`
}

type infoResponse struct {
	Service scanner.Info `json:"service"`
	Build   version.Info `json:"build"`
	Uptime  string       `json:"uptime"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, customerrors.ErrUnknownDevice), errors.Is(err, customerrors.ErrDeviceNotFound),
		errors.Is(err, customerrors.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, customerrors.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, customerrors.ErrNotConnected), errors.Is(err, customerrors.ErrAlreadyActive),
		errors.Is(err, customerrors.ErrConnectInProgress):
		return http.StatusConflict
	case errors.Is(err, customerrors.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, customerrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, customerrors.ErrInvalidFormat), errors.Is(err, customerrors.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) connectionView() connectionView {
	state, device, err := s.svc.ConnectionState()

	v := connectionView{State: state.String(), Device: device}
	if err != nil {
		v.Error = err.Error()
	}

	return v
}

// handleDevices runs a discovery pass; ?cached=true returns the last one.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
		render.JSON(w, r, devicesResponse{Devices: s.svc.Devices()})

		return
	}

	list, err := s.svc.ListDevices(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	render.JSON(w, r, devicesResponse{Devices: list})
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		render.JSON(w, r, s.connectionView())
	case http.MethodPost:
		var in connectRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, r, http.StatusBadRequest, err)

			return
		}

		if in.DeviceID == "" {
			writeError(w, r, http.StatusBadRequest, errDeviceIDRequired)

			return
		}

		if err := s.svc.Connect(r.Context(), in.DeviceID); err != nil {
			writeError(w, r, statusFor(err), err)

			return
		}

		render.JSON(w, r, s.connectionView())
	case http.MethodDelete:
		if err := s.svc.Disconnect(r.Context()); err != nil {
			writeError(w, r, statusFor(err), err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// handleScan starts (POST) or stops (DELETE) a scan. POST ?wait=true blocks
// until the result or the client goes away; otherwise the result is delivered
// on /ws and in the history.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		s.svc.StopScan()
		w.WriteHeader(http.StatusNoContent)

		return
	}

	ch, err := s.svc.StartScan(r.Context())
	if err != nil {
		writeError(w, r, statusFor(err), err)

		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, map[string]string{"status": "scanning"})

		return
	}

	select {
	case res, ok := <-ch:
		if !ok {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		render.JSON(w, r, res)
	case <-r.Context().Done():
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	render.JSON(w, r, historyResponse{Results: s.svc.History(limit)})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.svc.Validate(mux.Vars(r)["code"]))
}

// handleProduct answers 404 with the not_found resolution as body.
func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Resolve(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		if errors.Is(err, customerrors.ErrProductNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, p)

			return
		}

		writeError(w, r, statusFor(err), err)

		return
	}

	render.JSON(w, r, p)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := metrics.GatherStats(metrics.Service())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)

		return
	}

	render.JSON(w, r, st)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, infoResponse{
		Service: s.svc.Info(),
		Build:   version.Get(),
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.svc.Ready() {
		status = "starting"

		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version.GetVersion(),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}
