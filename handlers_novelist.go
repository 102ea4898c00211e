package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

type novelistResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// POST /novelists
func (a *App) HandleCreateNovelist(w http.ResponseWriter, r *http.Request) {
	var req novelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}

	novelist, err := a.DB.CreateNovelist(r.Context(), &Novelist{Name: req.Name})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			writeConflict(w, conflict, "duplicated registry error")
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, novelistResponse{ID: novelist.ID, Name: novelist.Name})
}

// GET /novelists
func (a *App) HandleListNovelists(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageFrom(r)
	filter := NovelistFilter{Offset: offset, Limit: limit, Name: r.URL.Query().Get("name")}

	novelists, err := a.DB.ListNovelists(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]novelistResponse, 0, len(novelists))
	for _, n := range novelists {
		out = append(out, novelistResponse{ID: n.ID, Name: n.Name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"novelists": out})
}

// PATCH /novelists/{id}
func (a *App) HandleUpdateNovelist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid novelist id")
		return
	}
	var req novelistUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}

	novelist, err := a.DB.GetNovelistByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if novelist == nil {
		writeDetail(w, http.StatusNotFound, "novelist not found")
		return
	}
	if req.Name != nil {
		novelist.Name = *req.Name
	}

	updated, err := a.DB.UpdateNovelist(r.Context(), novelist)
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			writeConflict(w, conflict, "duplicated registry error")
		case errors.Is(err, ErrNotFound):
			writeDetail(w, http.StatusNotFound, "novelist not found")
		default:
			writeStoreError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, novelistResponse{ID: updated.ID, Name: updated.Name})
}

// DELETE /novelists/{id}. Their books go with them.
func (a *App) HandleDeleteNovelist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid novelist id")
		return
	}
	if err := a.DB.DeleteNovelist(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "novelist not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
