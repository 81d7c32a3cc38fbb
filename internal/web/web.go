// Package web holds the embedded templates and static assets for the
// dashboard pages.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

//go:embed templates static
var content embed.FS

// mtaLineColors maps a route id to its official trunk color.
var mtaLineColors = map[string]string{
	"1": "#EE352E", "2": "#EE352E", "3": "#EE352E",
	"4": "#00933C", "5": "#00933C", "6": "#00933C",
	"7": "#B933AD",
	"A": "#0039A6", "C": "#0039A6", "E": "#0039A6",
	"B": "#FF6319", "D": "#FF6319", "F": "#FF6319", "M": "#FF6319",
	"G": "#6CBE45",
	"J": "#996633", "Z": "#996633",
	"L": "#A7A9AC",
	"N": "#FCCC0A", "Q": "#FCCC0A", "R": "#FCCC0A", "W": "#FCCC0A",
	"S": "#808183",
}

// LineColor returns the MTA trunk color for a route id, grey for unknown ids.
func LineColor(line string) string {
	if c, ok := mtaLineColors[strings.ToUpper(strings.TrimSpace(line))]; ok {
		return c
	}
	return "#808183"
}

var funcs = template.FuncMap{
	"lineColor": LineColor,
	"minutesLabel": func(min int) string {
		if min <= 0 {
			return "now"
		}
		if min == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d min", min)
	},
	"clock": func(t time.Time) string {
		return t.Format("3:04 PM")
	},
	"dayLabel": func(date string) string {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return date
		}
		return t.Format("Mon Jan 2")
	},
	"epaDesc": models.EPADescription,
	"join":    strings.Join,
}

var pages = []string{"dashboard", "weather", "subway"}

// Renderer renders the dashboard pages from the embedded templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the embedded templates. Each page is parsed against the
// shared layout.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		t, err := template.New("layout.tmpl").Funcs(funcs).ParseFS(content,
			"templates/layout.tmpl", "templates/"+page+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		r.templates[page] = t
	}
	return r, nil
}

// Render writes the named page to w.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.templates[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return t.ExecuteTemplate(w, "layout.tmpl", data)
}

// StaticHandler serves the embedded static assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
