package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"musicbox/core/access"
	"musicbox/logger"
	"musicbox/model"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"size": func(n int64) string {
		if n < 0 {
			n = 0
		}
		return humanize.Bytes(uint64(n))
	},
	"ago": func(t time.Time) string {
		return humanize.Time(t)
	},
}

type pages struct {
	index    *template.Template
	login    *template.Template
	register *template.Template
}

func loadPage(name string) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return t, nil
}

func loadPages() (*pages, error) {
	var p pages
	var err error
	if p.index, err = loadPage("index.html"); err != nil {
		return nil, err
	}
	if p.login, err = loadPage("login.html"); err != nil {
		return nil, err
	}
	if p.register, err = loadPage("register.html"); err != nil {
		return nil, err
	}
	return &p, nil
}

// trackView is a listed track plus what the viewer may do with it.
type trackView struct {
	*model.Track
	CanDelete bool
}

// pageData is shared by every page; each page reads the fields it needs.
type pageData struct {
	Actor     access.Actor
	Flashes   []string
	CSRFToken string

	Query  string
	Tracks []trackView
	Accept string

	Next     string
	Username string
	Email    string
}

// render executes into a buffer first so a template error never leaves a
// half written page behind.
func render(w http.ResponseWriter, t *template.Template, status int, data *pageData) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		logger.Error("failed to render page", logger.String("template", t.Name()), logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Debug("client went away while rendering", logger.ErrorField(err))
	}
}

// newPageData collects the actor, the form token and any pending flash messages.
func (h *APIHandler) newPageData(w http.ResponseWriter, r *http.Request) *pageData {
	return &pageData{
		Actor:     access.FromContext(r.Context()),
		Flashes:   popFlashes(w, r),
		CSRFToken: h.csrfToken(r),
	}
}
