package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/pagecache"
	"github.com/dgallion1/spacetraveling/internal/pagination"
	"github.com/dgallion1/spacetraveling/internal/session"
	"github.com/dgallion1/spacetraveling/internal/site"
	"github.com/go-chi/chi/v5"
)

const htmlContentType = "text/html; charset=utf-8"

// handleHome serves the cached first page, or the visitor's accumulated
// listing once they have loaded more posts.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if sess := s.sessionFor(r); sess != nil {
		body, err := s.render.Home(s.builder.HomePage(sess.Loader.State()))
		if err != nil {
			s.log.Error("render session home failed", "error", err)
			http.Error(w, "failed to render page", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "private, no-store")
		s.writePage(w, pagecache.Page{Body: body, ContentType: htmlContentType, Status: http.StatusOK})
		return
	}

	page, err := s.cache.Get(r.Context(), "/", s.generateHome)
	if err != nil {
		s.log.Error("render home failed", "error", err)
		http.Error(w, "failed to load posts", http.StatusBadGateway)
		return
	}
	s.setCacheHeaders(w)
	s.writePage(w, page)
}

func (s *Server) generateHome(ctx context.Context) (pagecache.Page, error) {
	state, err := s.builder.HomeState(ctx)
	if err != nil {
		return pagecache.Page{}, err
	}
	body, err := s.render.Home(s.builder.HomePage(state))
	if err != nil {
		return pagecache.Page{}, err
	}
	return pagecache.Page{Body: body, ContentType: htmlContentType, Status: http.StatusOK}, nil
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	page, err := s.cache.Get(r.Context(), "/post/"+slug, func(ctx context.Context) (pagecache.Page, error) {
		return s.generatePost(ctx, slug)
	})
	if err != nil {
		s.log.Error("render post failed", "slug", slug, "error", err)
		http.Error(w, "failed to load post", http.StatusBadGateway)
		return
	}
	if page.Status == http.StatusOK {
		s.setCacheHeaders(w)
	}
	s.writePage(w, page)
}

func (s *Server) generatePost(ctx context.Context, slug string) (pagecache.Page, error) {
	view, err := s.builder.PostPage(ctx, slug)
	if errors.Is(err, site.ErrNotFound) {
		body, err := s.render.NotFound()
		if err != nil {
			return pagecache.Page{}, err
		}
		return pagecache.Page{Body: body, ContentType: htmlContentType, Status: http.StatusNotFound}, nil
	}
	if err != nil {
		return pagecache.Page{}, err
	}
	body, err := s.render.Post(view)
	if err != nil {
		return pagecache.Page{}, err
	}
	return pagecache.Page{Body: body, ContentType: htmlContentType, Status: http.StatusOK}, nil
}

// handleLoadMore appends the next page to the visitor's listing. Browsers
// are redirected back to the listing; JSON clients get the listing itself.
func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.sessionFor(r)
	if sess == nil {
		state, err := s.builder.HomeState(ctx)
		if err != nil {
			s.log.Warn("load first page failed", "error", err)
			s.loadFailed(w, r)
			return
		}
		sess = s.sessions.Create(pagination.NewLoader(s.builder.Source(), state))
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.cfg.SessionTTL.Seconds()),
		})
	}

	state, err := sess.Loader.LoadMore(ctx)
	switch {
	case errors.Is(err, pagination.ErrNoMorePages):
		state = sess.Loader.State()
	case err != nil:
		s.log.Warn("load more failed", "session", sess.ID, "error", err)
		s.loadFailed(w, r)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, listing(state))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		jsonError(w, "failed to load more posts", http.StatusBadGateway)
		return
	}
	http.Error(w, "failed to load more posts", http.StatusBadGateway)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	body, err := s.render.NotFound()
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.writePage(w, pagecache.Page{Body: body, ContentType: htmlContentType, Status: http.StatusNotFound})
}

func (s *Server) sessionFor(r *http.Request) *session.Session {
	c, err := r.Cookie(session.CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	return s.sessions.Get(c.Value)
}

func (s *Server) setCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate", int(s.cfg.Revalidate.Seconds())))
}

func (s *Server) writePage(w http.ResponseWriter, p pagecache.Page) {
	w.Header().Set("Content-Type", p.ContentType)
	w.WriteHeader(p.Status)
	w.Write(p.Body)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// listing guarantees a JSON array for results.
func listing(s pagination.State) pagination.State {
	if s.Summaries == nil {
		s.Summaries = []content.Summary{}
	}
	return s
}
