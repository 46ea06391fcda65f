package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sstent/garmindash/internal/analysis"
	"github.com/sstent/garmindash/internal/models"
)

//go:embed templates
var templateFS embed.FS

var titleCaser = cases.Title(language.English)

// title turns identifiers such as "daily_summary" into "Daily Summary".
func title(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

var templateFuncs = template.FuncMap{
	"title": title,
	"date":  func(t time.Time) string { return t.Format(models.DateLayout) },
	"datetime": func(t time.Time) string {
		return t.Local().Format("2006-01-02 15:04")
	},
	"duration": func(seconds float64) string {
		return analysis.FormatDuration(seconds, seconds >= 3600)
	},
	"minutes": func(m float64) string {
		return analysis.FormatDuration(m*60, m >= 60)
	},
	"pace": analysis.FormatPace,
	"f1":   func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"f2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

// LoadTemplates parses every page together with the shared layouts. Each page
// gets its own template set so that their "content" blocks do not collide.
func (s *Server) LoadTemplates() error {
	// Load layouts
	layouts, err := fs.Glob(templateFS, "templates/layouts/*.html")
	if err != nil {
		return err
	}

	// Load pages
	pages, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("no page templates embedded")
	}

	s.pages = make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		files := make([]string, 0, len(layouts)+1)
		files = append(files, layouts...)
		files = append(files, page)

		name := strings.TrimSuffix(path.Base(page), ".html")
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, files...)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		s.pages[name] = tmpl
	}
	return nil
}

func (s *Server) renderTemplate(w io.Writer, page string, data interface{}) error {
	tmpl, ok := s.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
