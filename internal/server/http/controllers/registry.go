package controllers

import (
	"github.com/gorilla/mux"

	"github.com/rzbill/flolog/internal/runtime"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	logs    *LogsController
}

// NewControllerRegistry creates the controllers over rt.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		logs:    NewLogsController(rt, logger),
	}
}

// RegisterAllRoutes registers all controller routes on r.
func (c *ControllerRegistry) RegisterAllRoutes(r *mux.Router) {
	c.general.RegisterRoutes(r)
	c.logs.RegisterRoutes(r)
}
