package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rzbill/flolog/internal/runtime"
	"github.com/rzbill/flolog/internal/streamlog"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

const tailPollTimeout = time.Second

// LogsController serves the log management, append, lag and tail
// endpoints.
type LogsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// NewLogsController creates a new logs controller.
func NewLogsController(rt *runtime.Runtime, logger logpkg.Logger) *LogsController {
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &LogsController{rt: rt, logger: logger}
}

// RegisterRoutes registers the /v1/logs routes.
func (c *LogsController) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/v1/logs").Subrouter()
	s.HandleFunc("", c.handleList).Methods(http.MethodGet)
	s.HandleFunc("", c.handleCreate).Methods(http.MethodPost)
	s.HandleFunc("/{name}", c.handleGet).Methods(http.MethodGet)
	s.HandleFunc("/{name}", c.handleDelete).Methods(http.MethodDelete)
	s.HandleFunc("/{name}/append", c.handleAppend).Methods(http.MethodPost)
	s.HandleFunc("/{name}/groups", c.handleGroups).Methods(http.MethodGet)
	s.HandleFunc("/{name}/lag", c.handleLag).Methods(http.MethodGet)
	s.HandleFunc("/{name}/tail", c.handleTail).Methods(http.MethodGet)
}

func (c *LogsController) manager(w http.ResponseWriter) *streamlog.Manager {
	m := c.rt.Manager()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
	}
	return m
}

// handleList returns every log with its partition count.
func (c *LogsController) handleList(w http.ResponseWriter, _ *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	names, err := m.ListAll()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]logInfo, 0, len(names))
	for _, name := range names {
		size, err := m.Size(name)
		if err != nil {
			// deleted between the listing and now
			continue
		}
		out = append(out, logInfo{Name: name, Partitions: size})
	}
	writeJSON(w, map[string]any{"logs": out})
}

// handleCreate creates a log. Partitions default to the configured count.
// Returns 201 when created and 200 when it already existed.
func (c *LogsController) handleCreate(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	var req createLogReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Partitions == 0 {
		req.Partitions = c.rt.Config().DefaultPartitions
	}
	created, err := m.CreateIfNotExists(req.Name, req.Partitions)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	size, err := m.Size(req.Name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, createLogResp{Created: created, logInfo: logInfo{Name: req.Name, Partitions: size}})
}

func (c *LogsController) handleGet(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	name := mux.Vars(r)["name"]
	size, err := m.Size(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, logInfo{Name: name, Partitions: size})
}

func (c *LogsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	name := mux.Vars(r)["name"]
	deleted, err := m.Delete(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "log not found")
		return
	}
	writeNoContent(w)
}

func (c *LogsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	var req appendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	app, err := m.GetAppender(mux.Vars(r)["name"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var off streamlog.LogOffset
	switch {
	case req.Partition != nil:
		off, err = app.Append(*req.Partition, req.Payload)
	case req.Key != "":
		off, err = app.AppendKey(req.Key, req.Payload)
	default:
		off, err = app.Append(0, req.Payload)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, appendResp{Partition: off.Partition.Partition, Offset: off.Offset})
}

func (c *LogsController) handleGroups(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	groups, err := m.ListConsumerGroups(mux.Vars(r)["name"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, map[string]any{"groups": groups})
}

// handleLag returns the lag of ?group= on the log, in total and per
// partition.
func (c *LogsController) handleLag(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	group := r.URL.Query().Get("group")
	if group == "" {
		writeError(w, http.StatusBadRequest, "group is required")
		return
	}
	lags, err := m.GetLagPerPartition(mux.Vars(r)["name"], group)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	total := streamlog.SumLags(lags...)
	resp := lagResp{Group: group, Lower: total.Lower, Upper: total.Upper, Lag: total.Lag()}
	for i, l := range lags {
		resp.Partitions = append(resp.Partitions, partitionLag{Partition: i, Lower: l.Lower, Upper: l.Upper, Lag: l.Lag()})
	}
	writeJSON(w, resp)
}

// handleTail streams the records of the log to ?group= as SSE until the
// client goes away or ?limit= records were sent. ?from= is committed
// (default), start or end; ?commit=true commits after every record.
func (c *LogsController) handleTail(w http.ResponseWriter, r *http.Request) {
	m := c.manager(w)
	if m == nil {
		return
	}
	q := r.URL.Query()
	group := q.Get("group")
	if group == "" {
		writeError(w, http.StatusBadRequest, "group is required")
		return
	}
	limit := parseLimit(q.Get("limit"))
	commit := parseBool(q.Get("commit"))

	tl, err := m.CreateTailerForLog(group, mux.Vars(r)["name"])
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer tl.Close()
	switch q.Get("from") {
	case "", "committed":
	case "start":
		err = tl.ToStart()
	case "end":
		err = tl.ToEnd()
	default:
		writeError(w, http.StatusBadRequest, "from must be committed, start or end")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	sink := newSSESink(w)
	ctx := r.Context()
	sent := 0
	for limit == 0 || sent < limit {
		if ctx.Err() != nil {
			return
		}
		rec, err := tl.Read(tailPollTimeout)
		if err != nil {
			c.logger.Warn("tail read failed", logpkg.Str("group", group), logpkg.Err(err))
			return
		}
		if rec == nil {
			if err := sink.Comment("keep-alive"); err != nil {
				return
			}
			continue
		}
		if err := sink.Send(recordResp{Partition: rec.Offset.Partition.Partition, Offset: rec.Offset.Offset, Payload: rec.Message}); err != nil {
			return
		}
		sent++
		if commit {
			if err := tl.CommitPartition(rec.Offset.Partition); err != nil {
				c.logger.Warn("tail commit failed", logpkg.Str("group", group), logpkg.Err(err))
				return
			}
		}
	}
}
