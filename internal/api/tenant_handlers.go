package api

import (
	"net/http"
	"strconv"

	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const defaultAuditLimit = 100

func (h *handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.cfg.APIKeys.List(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

func (h *handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAPIKeyRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	created, err := h.cfg.APIKeys.Create(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "key_id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.cfg.APIKeys.Revoke(r.Context(), id); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getQuota(w http.ResponseWriter, r *http.Request) {
	tc, err := tenant.Current(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	status, err := h.cfg.Quotas.GetQuotaStatus(r.Context(), tc.TenantID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	tc, err := tenant.Current(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !tc.CanManage() {
		WriteError(w, r, tenant.ErrForbidden)
		return
	}
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > domain.MaxPageLimit {
			WriteError(w, r, badRequest("invalid limit"))
			return
		}
		limit = n
	}
	entries, err := h.cfg.Audit.ListAuditEntries(r.Context(), limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
