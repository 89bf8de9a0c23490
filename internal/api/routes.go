package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/unitone-ai/rampart/internal/store"
	"go.uber.org/zap"
)

// handleCreateRoute implements POST /api/rampart/routes.
func (d *Dependencies) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "route storage not configured"})
		return
	}

	var req CreateRouteReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}
	if detail, ok := validateGuards(req.Guards); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
		return
	}

	route, err := d.Store.CreateRoute(r.Context(), req.Name, req.Shadow, req.Guards)
	if err != nil {
		d.Logger.Error("create route failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create route"})
		return
	}

	d.reloadFromStore(r.Context())
	writeJSON(w, http.StatusCreated, routeResp(route))
}

// handleListRoutes implements GET /api/rampart/routes.
func (d *Dependencies) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		// YAML-backed deployments still expose the active route names.
		writeJSON(w, http.StatusOK, map[string]any{"routes": d.Provider.Routes()})
		return
	}

	routes, err := d.Store.ListRoutes(r.Context())
	if err != nil {
		d.Logger.Error("list routes failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list routes"})
		return
	}

	out := make([]RouteResp, 0, len(routes))
	for _, route := range routes {
		out = append(out, routeResp(route))
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

// handleGetRoute implements GET /api/rampart/routes/{name}.
func (d *Dependencies) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "route storage not configured"})
		return
	}

	route, err := d.Store.GetRoute(r.Context(), r.PathValue("name"))
	if err != nil {
		d.Logger.Error("get route failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get route"})
		return
	}
	if route == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Route not found"})
		return
	}
	writeJSON(w, http.StatusOK, routeResp(route))
}

// handleUpdateRoute implements PATCH /api/rampart/routes/{name}.
func (d *Dependencies) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "route storage not configured"})
		return
	}

	var req UpdateRouteReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Guards != nil {
		if detail, ok := validateGuards(*req.Guards); !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: detail})
			return
		}
	}

	route, err := d.Store.UpdateRoute(r.Context(), r.PathValue("name"), store.UpdateRouteParams{
		Shadow: req.Shadow,
		Guards: req.Guards,
	})
	if err != nil {
		d.Logger.Error("update route failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update route"})
		return
	}
	if route == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Route not found"})
		return
	}

	d.reloadFromStore(r.Context())
	writeJSON(w, http.StatusOK, routeResp(route))
}

// handleDeleteRoute implements DELETE /api/rampart/routes/{name}.
func (d *Dependencies) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "route storage not configured"})
		return
	}

	err := d.Store.DeleteRoute(r.Context(), r.PathValue("name"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Route not found"})
		return
	}
	if err != nil {
		d.Logger.Error("delete route failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete route"})
		return
	}

	d.reloadFromStore(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// reloadFromStore re-reads all routes from Postgres and swaps the active
// pipelines. A failed reload keeps the previous snapshot.
func (d *Dependencies) reloadFromStore(ctx context.Context) {
	configs, err := d.Store.LoadRouteConfigs(ctx)
	if err != nil {
		d.Logger.Error("route reload failed, keeping previous pipelines", zap.Error(err))
		return
	}
	d.Provider.Swap(configs)
}

// validateGuards decodes and validates a stored guard chain up front so
// malformed configurations are rejected at write time, not at the next
// pipeline rebuild.
func validateGuards(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}
	route := store.Route{Name: "candidate", Guards: raw}
	cfg, err := route.Config()
	if err != nil {
		return err.Error(), false
	}
	for i := range cfg.Guards {
		gc := &cfg.Guards[i]
		if !gc.Enabled {
			continue
		}
		if err := gc.Validate(); err != nil {
			return err.Error(), false
		}
	}
	return "", true
}

func routeResp(route *store.Route) RouteResp {
	return RouteResp{
		ID:        route.ID,
		Name:      route.Name,
		Shadow:    route.Shadow,
		Guards:    route.Guards,
		CreatedAt: route.CreatedAt,
		UpdatedAt: route.UpdatedAt,
	}
}
