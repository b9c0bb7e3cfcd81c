package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/dgallion1/spacetraveling/internal/config"
	"github.com/dgallion1/spacetraveling/internal/site"
)

// templateFS contains the HTML templates bundled with the binary.
//
//go:embed templates/*
var templateFS embed.FS

var templates = template.Must(template.New("site").ParseFS(templateFS, "templates/*.gohtml"))

// Comments configures the utterances widget. An empty Repo disables it.
type Comments struct {
	Repo      string
	IssueTerm string
	Theme     string
}

// Renderer turns view models into HTML documents.
type Renderer struct {
	siteTitle string
	comments  Comments
}

func NewRenderer(cfg config.Config) *Renderer {
	return &Renderer{
		siteTitle: cfg.SiteTitle,
		comments: Comments{
			Repo:      cfg.CommentsRepo,
			IssueTerm: cfg.CommentsIssueTerm,
			Theme:     cfg.CommentsTheme,
		},
	}
}

type view struct {
	SiteTitle string
	PageTitle string
	Comments  Comments
	Home      site.HomePage
	Post      *site.PostPage
}

func (r *Renderer) Home(home site.HomePage) ([]byte, error) {
	return r.execute("home.gohtml", view{PageTitle: "Posts", Home: home})
}

func (r *Renderer) Post(p *site.PostPage) ([]byte, error) {
	return r.execute("post.gohtml", view{PageTitle: p.Title, Post: p})
}

func (r *Renderer) NotFound() ([]byte, error) {
	return r.execute("notfound.gohtml", view{PageTitle: "Não encontrado"})
}

func (r *Renderer) execute(name string, v view) ([]byte, error) {
	v.SiteTitle = r.siteTitle
	v.Comments = r.comments
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
