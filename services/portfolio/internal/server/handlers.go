package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"portfolio/internal/util"
	"portfolio/pkg/domain"
	"portfolio/services/portfolio/internal/app"
)

const itemNotFound = "Portfolio item not found"

func (s *Server) handleListPortfolio(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ListPortfolioItems(r.Context())
	if err != nil {
		s.internalError(w, r, err, "Failed to fetch portfolio items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request, user domain.User) {
	var in app.PortfolioInput
	if !decodeJSON(w, r, &in) {
		return
	}
	item, err := s.app.CreatePortfolioItem(r.Context(), in)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to create portfolio item")
		return
	}
	util.LoggerFromContext(r.Context()).Info("portfolio item created", "item_id", item.ID, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := itemID(r)
	if !ok {
		writeError(w, http.StatusNotFound, itemNotFound)
		return
	}
	var in app.PortfolioInput
	if !decodeJSON(w, r, &in) {
		return
	}
	item, err := s.app.UpdatePortfolioItem(r.Context(), id, in)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to update portfolio item")
		return
	}
	util.LoggerFromContext(r.Context()).Info("portfolio item updated", "item_id", item.ID, "user_id", user.ID)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := itemID(r)
	if !ok {
		writeError(w, http.StatusNotFound, itemNotFound)
		return
	}
	if err := s.app.DeletePortfolioItem(r.Context(), id); err != nil {
		s.writeAppError(w, r, err, "Failed to delete portfolio item")
		return
	}
	util.LoggerFromContext(r.Context()).Info("portfolio item deleted", "item_id", id, "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.contactLimiter, "too many contact submissions") {
		s.audit(r, "portfolio.contact", "rate_limited")
		return
	}
	var in app.ContactInput
	if !decodeJSON(w, r, &in) {
		return
	}
	contact, err := s.app.SubmitContact(r.Context(), in)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to submit contact form")
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request, _ domain.User) {
	contacts, err := s.app.ListContacts(r.Context())
	if err != nil {
		s.internalError(w, r, err, "Failed to fetch contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.app.UploadsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	maxBytes := s.app.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	url, err := s.app.UploadImage(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to upload image")
		return
	}
	s.audit(r, "portfolio.upload", "success", "user_id", user.ID, "size", header.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// writeAppError maps app errors onto status codes; anything unexpected is a 500 with msg.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, itemNotFound)
	case errors.Is(err, app.ErrUploadsDisabled):
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
	default:
		s.internalError(w, r, err, msg)
	}
}

func itemID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
