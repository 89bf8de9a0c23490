package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/unitone-ai/rampart/internal/store"
	"go.uber.org/zap"
)

// handleCreateKey implements POST /api/rampart/keys. The plaintext key is
// returned once and never stored.
func (d *Dependencies) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "key storage not configured"})
		return
	}

	var req CreateKeyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name is required"})
		return
	}

	key, plaintext, err := d.Store.CreateAPIKey(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("create key failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create key"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateKeyResp{
		ID:        key.ID,
		Name:      key.Name,
		APIKey:    plaintext,
		KeyPrefix: key.KeyPrefix,
		CreatedAt: key.CreatedAt,
	})
}

// handleListKeys implements GET /api/rampart/keys.
func (d *Dependencies) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "key storage not configured"})
		return
	}

	keys, err := d.Store.ListAPIKeys(r.Context())
	if err != nil {
		d.Logger.Error("list keys failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list keys"})
		return
	}

	out := make([]KeyResp, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyResp(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// handleRevokeKey implements DELETE /api/rampart/keys/{id}.
func (d *Dependencies) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if d.Store == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "key storage not configured"})
		return
	}

	err := d.Store.RevokeAPIKey(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Key not found"})
		return
	}
	if err != nil {
		d.Logger.Error("revoke key failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to revoke key"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keyResp(k *store.APIKey) KeyResp {
	return KeyResp{
		ID:        k.ID,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		Disabled:  k.Disabled,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}
