package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/localcms"
	"github.com/dgallion1/spacetraveling/internal/pagination"
	"github.com/dgallion1/spacetraveling/internal/parser"
	"github.com/dgallion1/spacetraveling/internal/site"
)

// handleListPosts returns one projected page of the listing. Without a
// cursor it returns the first page.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cursor := content.Cursor(r.URL.Query().Get("cursor"))

	var state pagination.State
	if cursor == "" {
		first, err := s.builder.HomeState(ctx)
		if err != nil {
			s.log.Warn("list posts failed", "error", err)
			jsonError(w, "failed to load posts", http.StatusBadGateway)
			return
		}
		state = first
	} else {
		page, err := s.builder.Source().FetchPage(ctx, cursor)
		switch {
		case errors.Is(err, site.ErrBadCursor):
			jsonError(w, "invalid cursor", http.StatusBadRequest)
			return
		case err != nil:
			s.log.Warn("list posts failed", "cursor", string(cursor), "error", err)
			jsonError(w, "failed to load posts", http.StatusBadGateway)
			return
		}
		state = pagination.NewState(page)
	}

	writeJSON(w, http.StatusOK, listing(state))
}

// handleUpload stores a content file and drops every cached page and
// listing session built from the previous content.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	post, err := s.uploader.Save(filename, file, s.cfg.MaxUploadBytes)
	switch {
	case errors.Is(err, localcms.ErrTooLarge):
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, localcms.ErrUnsupported):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log.Warn("content upload rejected", "file", filename, "error", err)
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := s.cache.Invalidate(r.Context()); err != nil {
		s.log.Error("invalidate page cache failed", "error", err)
	}
	s.sessions.Clear()

	writeJSON(w, http.StatusCreated, map[string]any{
		"uid":  post.UID,
		"path": "/post/" + post.UID,
	})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
