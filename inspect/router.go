// Package inspect exposes a read-only HTTP view of a running host: declared
// artifacts with their current state, the active session, and the
// integration descriptor corpus.
//
// Routes:
//
//	GET /healthz
//	GET /artifacts[?kind=cell|channel|registry]
//	GET /artifacts/{name}
//	GET /session
//	GET /descriptors
//	GET /descriptors/{module}[?format=markdown|yaml|toml|json]
package inspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/descriptor"
	"github.com/GoCodeAlone/modlink/discovery"
)

// ArtifactSource lists artifacts and reports their state. *modlink.Exchange
// satisfies it.
type ArtifactSource interface {
	Artifacts() []modlink.ArtifactInfo
	Inspect(name string) (modlink.ArtifactState, error)
}

// SessionSource reports the active session. *modlink.ScopeCoordinator
// satisfies it.
type SessionSource interface {
	Session() uint64
	CellIDs() []string
}

// SessionInfo is the body of GET /session.
type SessionInfo struct {
	Session uint64   `json:"session"`
	Cells   []string `json:"cells"`
}

// DescriptorSummary is one entry of GET /descriptors.
type DescriptorSummary struct {
	ModuleID     string `json:"moduleId"`
	Assembly     string `json:"assembly,omitempty"`
	Version      string `json:"version,omitempty"`
	Channels     int    `json:"channels"`
	Cells        int    `json:"cells"`
	Registries   int    `json:"registries"`
	Capabilities int    `json:"capabilities"`
}

type handlers struct {
	artifacts ArtifactSource
	sessions  SessionSource
	corpus    discovery.Corpus
	logger    modlink.Logger
}

// RouterOption configures NewRouter.
type RouterOption func(*handlers)

// WithSessions enables GET /session.
func WithSessions(s SessionSource) RouterOption {
	return func(h *handlers) { h.sessions = s }
}

// WithCorpus enables the /descriptors routes.
func WithCorpus(c discovery.Corpus) RouterOption {
	return func(h *handlers) { h.corpus = c }
}

// WithLogger sets the logger used for encoding failures.
func WithLogger(l modlink.Logger) RouterOption {
	return func(h *handlers) { h.logger = l }
}

// NewRouter builds the inspection routes. Routes whose source was not
// configured answer 404.
func NewRouter(artifacts ArtifactSource, opts ...RouterOption) chi.Router {
	h := &handlers{artifacts: artifacts, logger: modlink.NopLogger{}}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/", h.listArtifacts)
		r.Get("/{name}", h.getArtifact)
	})
	r.Get("/session", h.session)
	r.Route("/descriptors", func(r chi.Router) {
		r.Get("/", h.listDescriptors)
		r.Get("/{module}", h.getDescriptor)
	})
	return r
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listArtifacts(w http.ResponseWriter, r *http.Request) {
	if h.artifacts == nil {
		h.writeError(w, http.StatusNotFound, "no artifact source configured")
		return
	}
	infos := h.artifacts.Artifacts()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := make([]modlink.ArtifactInfo, 0, len(infos))
		for _, info := range infos {
			if string(info.Kind) == kind {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	h.writeJSON(w, http.StatusOK, infos)
}

func (h *handlers) getArtifact(w http.ResponseWriter, r *http.Request) {
	if h.artifacts == nil {
		h.writeError(w, http.StatusNotFound, "no artifact source configured")
		return
	}
	state, err := h.artifacts.Inspect(chi.URLParam(r, "name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, modlink.ErrArtifactNotFound) {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *handlers) session(w http.ResponseWriter, _ *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusNotFound, "no session source configured")
		return
	}
	h.writeJSON(w, http.StatusOK, SessionInfo{
		Session: h.sessions.Session(),
		Cells:   h.sessions.CellIDs(),
	})
}

func (h *handlers) listDescriptors(w http.ResponseWriter, r *http.Request) {
	if h.corpus == nil {
		h.writeError(w, http.StatusNotFound, "no descriptor corpus configured")
		return
	}
	ds, err := h.corpus.Read(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]DescriptorSummary, 0, len(ds))
	for _, d := range ds {
		out = append(out, DescriptorSummary{
			ModuleID:     d.ModuleID,
			Assembly:     d.Assembly.Name,
			Version:      d.Assembly.Version,
			Channels:     len(d.Channels),
			Cells:        len(d.Cells),
			Registries:   len(d.Registries),
			Capabilities: len(d.Capabilities),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

var contentTypes = map[descriptor.Format]string{
	descriptor.FormatMarkdown: "text/markdown; charset=utf-8",
	descriptor.FormatYAML:     "application/yaml",
	descriptor.FormatTOML:     "application/toml",
	descriptor.FormatJSON:     "application/json",
}

func (h *handlers) getDescriptor(w http.ResponseWriter, r *http.Request) {
	if h.corpus == nil {
		h.writeError(w, http.StatusNotFound, "no descriptor corpus configured")
		return
	}

	format := descriptor.FormatMarkdown
	if raw := r.URL.Query().Get("format"); raw != "" {
		f, err := descriptor.ParseFormat(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}

	ds, err := h.corpus.Read(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	module := chi.URLParam(r, "module")
	for _, d := range ds {
		if d.ModuleID != module {
			continue
		}
		data, err := descriptor.Marshal(d, format)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", contentTypes[format])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	h.writeError(w, http.StatusNotFound, fmt.Sprintf("no descriptor for module %q", module))
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		h.logger.Error("Failed to encode inspection response", "error", err)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
