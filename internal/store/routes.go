package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unitone-ai/rampart/internal/engine"
)

// Route represents a row in the routes table. Guards is the JSONB guard
// chain exactly as stored.
type Route struct {
	ID        string
	Name      string
	Shadow    bool
	Guards    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateRouteParams holds optional fields for partial route updates.
type UpdateRouteParams struct {
	Shadow *bool
	Guards *json.RawMessage // nil = don't change
}

// Config decodes the stored guard chain into a route configuration.
func (r *Route) Config() (engine.RouteConfig, error) {
	out := engine.RouteConfig{Name: r.Name, Shadow: r.Shadow}
	if len(r.Guards) > 0 {
		if err := json.Unmarshal(r.Guards, &out.Guards); err != nil {
			return out, fmt.Errorf("route %s: decode guards: %w", r.Name, err)
		}
		// Guards default to enabled unless the stored chain says otherwise.
		var raw []map[string]json.RawMessage
		if err := json.Unmarshal(r.Guards, &raw); err == nil {
			for i := range out.Guards {
				if i >= len(raw) {
					break
				}
				if _, present := raw[i]["enabled"]; !present {
					out.Guards[i].Enabled = true
				}
			}
		}
	}
	return out, nil
}

// CreateRoute inserts a new route with its guard chain.
func (s *Store) CreateRoute(ctx context.Context, name string, shadow bool, guards json.RawMessage) (*Route, error) {
	if guards == nil {
		guards = json.RawMessage(`[]`)
	}
	var r Route
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO routes (name, shadow, guards)
		VALUES ($1, $2, $3)
		RETURNING id, name, shadow, guards, created_at, updated_at`,
		name, shadow, guards,
	).Scan(&r.ID, &r.Name, &r.Shadow, &r.Guards, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateRoute: %w", err)
	}
	return &r, nil
}

// ListRoutes returns all routes ordered by name.
func (s *Store) ListRoutes(ctx context.Context) ([]*Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, shadow, guards, created_at, updated_at
		FROM routes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListRoutes: %w", err)
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.Name, &r.Shadow, &r.Guards,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListRoutes: %w", err)
		}
		routes = append(routes, &r)
	}
	return routes, rows.Err()
}

// GetRoute returns a route by name, or nil if not found.
func (s *Store) GetRoute(ctx context.Context, name string) (*Route, error) {
	var r Route
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, shadow, guards, created_at, updated_at
		FROM routes WHERE name = $1`, name,
	).Scan(&r.ID, &r.Name, &r.Shadow, &r.Guards, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetRoute: %w", err)
	}
	return &r, nil
}

// UpdateRoute applies a partial update to a route. Only non-nil fields are changed.
func (s *Store) UpdateRoute(ctx context.Context, name string, params UpdateRouteParams) (*Route, error) {
	var r Route
	err := s.db.QueryRowContext(ctx, `
		UPDATE routes SET
			shadow     = COALESCE($2, shadow),
			guards     = COALESCE($3, guards),
			updated_at = now()
		WHERE name = $1
		RETURNING id, name, shadow, guards, created_at, updated_at`,
		name, params.Shadow, nullableJSON(params.Guards),
	).Scan(&r.ID, &r.Name, &r.Shadow, &r.Guards, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateRoute: %w", err)
	}
	return &r, nil
}

// DeleteRoute deletes a route by name.
func (s *Store) DeleteRoute(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("DeleteRoute: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LoadRouteConfigs returns every stored route decoded and validated well
// enough to hand to the pipeline provider. Routes whose guard chain fails
// to decode are returned as an error rather than silently dropped.
func (s *Store) LoadRouteConfigs(ctx context.Context) ([]engine.RouteConfig, error) {
	routes, err := s.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]engine.RouteConfig, 0, len(routes))
	for _, r := range routes {
		cfg, err := r.Config()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
