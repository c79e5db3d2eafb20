package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rzbill/flolog/internal/runtime"
)

// GeneralController serves endpoints not tied to a log.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers /v1/healthz and /v1/info.
func (c *GeneralController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/healthz", c.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", c.handleInfo).Methods(http.MethodGet)
}

// handleHealth returns 200 {"status": "ok"} if the backend answers, 503
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleInfo(w http.ResponseWriter, _ *http.Request) {
	m := c.rt.Manager()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, infoResp{
		Backend:          m.Backend().Kind(),
		SupportSubscribe: m.SupportSubscribe(),
	})
}
