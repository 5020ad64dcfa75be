// Package web renders the public landing page and the admin dashboard and
// serves their scripts and styles. A prebuilt client bundle on disk can be
// served instead through SPA.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"portfolio/internal/util"
	"portfolio/pkg/domain"
)

// ItemLister supplies the items rendered into the first paint of the landing page.
type ItemLister interface {
	ListPortfolioItems(ctx context.Context) ([]domain.PortfolioItem, error)
}

// ProjectTypes are the choices offered by the contact form.
var ProjectTypes = []Option{
	{Value: "web-design", Label: "Web Design"},
	{Value: "mobile-app", Label: "Mobile App"},
	{Value: "branding", Label: "Branding"},
	{Value: "consultation", Label: "Consultation"},
	{Value: "other", Label: "Other"},
}

// Categories are the choices offered by the admin item dialog.
var Categories = []Option{
	{Value: "web-design", Label: "Web Design"},
	{Value: "mobile-app", Label: "Mobile App"},
	{Value: "branding", Label: "Branding"},
	{Value: "illustration", Label: "Illustration"},
	{Value: "photography", Label: "Photography"},
}

type Option struct {
	Value string
	Label string
}

type categoryGroup struct {
	Name  string
	Items []domain.PortfolioItem
}

type indexData struct {
	Title        string
	About        template.HTML
	Groups       []categoryGroup
	ProjectTypes []Option
	Year         int
}

type adminData struct {
	Title          string
	Categories     []Option
	UploadsEnabled bool
}

type Config struct {
	Items          ItemLister
	UploadsEnabled bool
	Now            func() time.Time
}

// Views holds the parsed templates and the rendered about section.
type Views struct {
	templates      *template.Template
	about          template.HTML
	items          ItemLister
	uploadsEnabled bool
	now            func() time.Time
}

func New(cfg Config) (*Views, error) {
	if cfg.Items == nil {
		return nil, errors.New("web: item lister required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	about, err := RenderMarkdown(aboutMarkdown)
	if err != nil {
		return nil, err
	}
	return &Views{
		templates:      tmpl,
		about:          about,
		items:          cfg.Items,
		uploadsEnabled: cfg.UploadsEnabled,
		now:            cfg.Now,
	}, nil
}

// RenderMarkdown converts trusted, embedded markdown to HTML.
func RenderMarkdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Index renders the landing page. A failing item query still renders the
// page; the client retries the fetch.
func (v *Views) Index(w http.ResponseWriter, r *http.Request) {
	items, err := v.items.ListPortfolioItems(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("landing page items", "err", err)
		items = nil
	}
	v.render(w, r, "index.html", indexData{
		Title:        "Creative Portfolio",
		About:        v.about,
		Groups:       groupByCategory(items),
		ProjectTypes: ProjectTypes,
		Year:         v.now().Year(),
	})
}

// Admin renders the admin shell; login state is resolved client side
// through /api/auth/me.
func (v *Views) Admin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	v.render(w, r, "admin.html", adminData{
		Title:          "Portfolio Admin",
		Categories:     Categories,
		UploadsEnabled: v.uploadsEnabled,
	})
}

func (v *Views) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := v.templates.ExecuteTemplate(&buf, name, data); err != nil {
		util.LoggerFromContext(r.Context()).Error("render template", "template", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// groupByCategory keeps categories in order of first appearance and items
// in list order within each category.
func groupByCategory(items []domain.PortfolioItem) []categoryGroup {
	var groups []categoryGroup
	index := map[string]int{}
	for _, item := range items {
		i, ok := index[item.Category]
		if !ok {
			i = len(groups)
			index[item.Category] = i
			groups = append(groups, categoryGroup{Name: item.Category})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

// Assets serves the embedded scripts and styles. Mount it with the
// /assets/ prefix stripped.
func Assets() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic("web: failed to create asset filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := mime.TypeByExtension(path.Ext(r.URL.Path)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}

// SPA serves a prebuilt client from dir. Paths that do not name a file fall
// back to index.html so client side routes such as /admin resolve.
func SPA(dir string) (http.Handler, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	index := filepath.Join(root, "index.html")
	if _, err := os.Stat(index); err != nil {
		return nil, fmt.Errorf("static dir %s: %w", root, err)
	}
	fileServer := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		if clean != "/" {
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))))
			if err == nil && !info.IsDir() {
				if strings.HasPrefix(clean, "/assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}
				fileServer.ServeHTTP(w, r)
				return
			}
		}
		serveIndex(w, r, index)
	}), nil
}

func serveIndex(w http.ResponseWriter, r *http.Request, index string) {
	f, err := os.Open(index)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}
