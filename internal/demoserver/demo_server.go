// Package demoserver serves image-heavy demo pages for trying cleanweb
// against real HTTP. Pages have numbered versions that can be switched at
// runtime to exercise refreshes.
package demoserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// DemoServer is a simple HTTP server for demonstrating filtering.
type DemoServer struct {
	cfg      Config
	pages    map[string]PageDefinition
	versions map[string]int // path -> current version
	mu       sync.RWMutex
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.InitialVersion < 1 {
		cfg.InitialVersion = 1
	}
	if cfg.ImageSize < 1 {
		cfg.ImageSize = DefaultConfig().ImageSize
	}
	pageMap := make(map[string]PageDefinition)
	versions := make(map[string]int)
	for _, p := range GetAllPages() {
		pageMap[p.Path] = p
		versions[p.Path] = cfg.InitialVersion
	}
	return &DemoServer{cfg: cfg, pages: pageMap, versions: versions}
}

// Handler returns the demo site's routes.
func (s *DemoServer) Handler() http.Handler {
	r := chi.NewRouter()
	for path := range s.pages {
		r.Get(path, s.pageHandler(path))
	}
	r.Get("/images/{name}", s.imageHandler)

	r.Post("/demo/set-version", s.setVersionHandler)
	r.Get("/demo/get-versions", s.getVersionsHandler)
	r.Post("/demo/bump-all", s.bumpAllVersionsHandler)
	r.Post("/demo/reset", s.resetVersionsHandler)
	return r
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		pageDef, ok := s.pages[path]
		version := s.versions[path]
		s.mu.RUnlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		// Get the specific version, fall back to closest available
		pageVersion, ok := pageDef.Versions[version]
		if !ok {
			for v := version; v >= 1; v-- {
				if pv, exists := pageDef.Versions[v]; exists {
					pageVersion = pv
					break
				}
			}
		}

		for k, v := range pageVersion.Headers {
			w.Header().Set(k, v)
		}
		contentType := pageVersion.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(pageVersion.HTML))
	}
}

// imageHandler renders a gradient PNG tinted by the file name. The same name
// always yields the same bytes.
func (s *DemoServer) imageHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !strings.HasSuffix(name, ".png") {
		http.NotFound(w, r)
		return
	}
	b, err := RenderImage(name, s.cfg.ImageSize, s.cfg.ImageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=3600")
	_, _ = w.Write(b)
}

// RenderImage encodes a w×h PNG tinted by name.
func RenderImage(name string, w, h int) ([]byte, error) {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(name))
	sum := hash.Sum32()
	base := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		shade := uint8(y * 128 / max(1, h-1))
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: base.R ^ shade, G: base.G, B: base.B, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// setVersionHandler sets the version for a specific page.
func (s *DemoServer) setVersionHandler(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	version, err := strconv.Atoi(r.FormValue("version"))
	if err != nil || version < 1 {
		http.Error(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, ok := s.pages[path]
	if ok {
		s.versions[path] = version
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Unknown page", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{"success": true, "path": path, "version": version})
}

// PageInfo describes a page and its versions.
type PageInfo struct {
	Path              string `json:"path"`
	Description       string `json:"description"`
	CurrentVersion    int    `json:"current_version"`
	AvailableVersions []int  `json:"available_versions"`
}

// getVersionsHandler returns the current versions of all pages, by path.
func (s *DemoServer) getVersionsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	pages := make([]PageInfo, 0, len(s.pages))
	for path, pageDef := range s.pages {
		var versions []int
		for v := range pageDef.Versions {
			versions = append(versions, v)
		}
		slices.Sort(versions)
		pages = append(pages, PageInfo{
			Path:              path,
			Description:       pageDef.Description,
			CurrentVersion:    s.versions[path],
			AvailableVersions: versions,
		})
	}
	s.mu.RUnlock()

	slices.SortFunc(pages, func(a, b PageInfo) int { return strings.Compare(a.Path, b.Path) })
	writeJSON(w, pages)
}

// bumpAllVersionsHandler increments the version of all pages, capped at
// each page's latest.
func (s *DemoServer) bumpAllVersionsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for path := range s.versions {
		maxV := 1
		for v := range s.pages[path].Versions {
			maxV = max(maxV, v)
		}
		s.versions[path] = min(s.versions[path]+1, maxV)
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "message": "All versions bumped"})
}

// resetVersionsHandler resets all pages to version 1.
func (s *DemoServer) resetVersionsHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	for path := range s.versions {
		s.versions[path] = 1
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "message": "All versions reset to 1"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
