package api

import (
	"net/http"

	"github.com/oriys/tenantgate/internal/domain"
)

// registerResource mounts the CRUD routes of one resource kind under base.
func registerResource[T, C any](mux *http.ServeMux, h *handler, base string, svc ResourceService[T, C]) {
	if svc == nil {
		return
	}
	mux.Handle("GET "+base, h.scoped(func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		items, err := svc.List(r.Context(), page)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		total, err := svc.Count(r.Context())
		if err != nil {
			total = estimateTotal(page, len(items))
		}
		writePaginatedList(w, page, len(items), total, items)
	}))

	mux.Handle("POST "+base, h.scoped(func(w http.ResponseWriter, r *http.Request) {
		var req C
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		created, err := svc.Create(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}))

	mux.Handle("GET "+base+"/{id}", h.scoped(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			WriteError(w, r, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}))

	update := h.scoped(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			WriteError(w, r, err)
			return
		}
		var upd domain.UpdateRequest
		if err := decodeBody(r, &upd); err != nil {
			WriteError(w, r, err)
			return
		}
		item, err := svc.Update(r.Context(), id, upd)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	})
	mux.Handle("PUT "+base+"/{id}", update)
	mux.Handle("PATCH "+base+"/{id}", update)

	mux.Handle("DELETE "+base+"/{id}", h.scoped(func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func (h *handler) listMonitorTriggers(w http.ResponseWriter, r *http.Request) {
	monitorID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	items, err := h.cfg.Triggers.ListByMonitor(r.Context(), monitorID, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writePaginatedList(w, page, len(items), estimateTotal(page, len(items)), items)
}

// createMonitorTrigger creates a trigger whose parent comes from the path.
func (h *handler) createMonitorTrigger(w http.ResponseWriter, r *http.Request) {
	monitorID, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var req domain.CreateTriggerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	req.MonitorID = monitorID
	created, err := h.cfg.Triggers.Create(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
