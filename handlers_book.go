package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

type bookResponse struct {
	ID         int64  `json:"id"`
	Year       int    `json:"year"`
	Title      string `json:"title"`
	NovelistID int64  `json:"novelistId"`
}

func toBookResponse(b *Book) bookResponse {
	return bookResponse{ID: b.ID, Year: b.Year, Title: b.Title, NovelistID: b.NovelistID}
}

// POST /books
func (a *App) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}

	novelist, err := a.DB.GetNovelistByID(r.Context(), req.NovelistID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if novelist == nil {
		writeDetail(w, http.StatusNotFound, "novelist not found")
		return
	}

	book, err := a.DB.CreateBook(r.Context(), &Book{
		Year:       req.Year,
		Title:      req.Title,
		NovelistID: req.NovelistID,
	})
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
	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

// GET /books
func (a *App) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageFrom(r)
	filter := BookFilter{Offset: offset, Limit: limit, Title: r.URL.Query().Get("title")}
	if v := r.URL.Query().Get("novelistId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeDetail(w, http.StatusBadRequest, ValidationErrors{
				{Field: "novelistId", Message: "must be a positive id"},
			})
			return
		}
		filter.NovelistID = id
	}

	books, err := a.DB.ListBooks(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"books": out})
}

// PATCH /books/{id}
func (a *App) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	var req bookUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		writeDetail(w, http.StatusBadRequest, errs)
		return
	}

	book, err := a.DB.GetBookByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if book == nil {
		writeDetail(w, http.StatusNotFound, "book not found")
		return
	}
	req.applyTo(book)

	if req.NovelistID != nil {
		novelist, err := a.DB.GetNovelistByID(r.Context(), book.NovelistID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if novelist == nil {
			writeDetail(w, http.StatusNotFound, "novelist not found")
			return
		}
	}

	updated, err := a.DB.UpdateBook(r.Context(), book)
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			writeConflict(w, conflict, "duplicated registry error")
		case errors.Is(err, ErrNotFound):
			writeDetail(w, http.StatusNotFound, "book not found")
		default:
			writeStoreError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(updated))
}

// DELETE /books/{id}
func (a *App) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if err := a.DB.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "book not found")
			return
		}
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
