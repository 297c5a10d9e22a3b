// Package views renders the HTML pages. Each page is parsed together with the
// shared layout at startup.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	Home     = "home"
	Login    = "login"
	Register = "register"
	Secrets  = "secrets"
	Submit   = "submit"
)

var pages = []string{Home, Login, Register, Secrets, Submit}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("error parsing %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page with data. Nothing is written if execution fails.
func (r *Renderer) Render(w http.ResponseWriter, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("error rendering %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
