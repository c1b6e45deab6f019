package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/obsidianstack/volumectl/internal/registry"
	"github.com/obsidianstack/volumectl/internal/settings"
	"github.com/obsidianstack/volumectl/internal/store"
	"github.com/obsidianstack/volumectl/internal/volume"
)

// maxBody caps request bodies; every accepted body is a tiny JSON object.
const maxBody = 1 << 16

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	resolver *settings.Resolver
	settings *settings.Manager
	registry *registry.Registry
	known    store.KnownIdentifiers
	mux      *http.ServeMux
	now      func() time.Time
}

// New creates a Handler and registers all routes. known may be nil, in which
// case only identifiers present in the table are listed.
func New(res *settings.Resolver, m *settings.Manager, reg *registry.Registry, known store.KnownIdentifiers) http.Handler {
	h := &Handler{
		resolver: res,
		settings: m,
		registry: reg,
		known:    known,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/volumes", h.listVolumes)
	h.mux.HandleFunc("/api/v1/volumes/", h.volume) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/reload", h.reload)
	h.mux.HandleFunc("/api/v1/handles", h.handles)
	h.mux.HandleFunc("/api/v1/resolve", h.resolve)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fs := h.settings.FileState()
	jsonResp(w, http.StatusOK, HealthResponse{
		State:       h.settings.State().String(),
		Path:        fs.Path,
		Entries:     h.settings.Snapshot().Len(),
		Handles:     h.registry.Len(),
		LastLoad:    rfc3339(fs.LastLoad),
		LastAttempt: rfc3339(fs.LastAttempt),
	})
}

// listVolumes returns GET /api/v1/volumes: every known or overridden
// identifier with its effective volume, optionally filtered by ?q=.
func (h *Handler) listVolumes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	tbl := h.settings.Snapshot()

	ids := make(map[volume.Identifier]struct{}, tbl.Len())
	for _, id := range tbl.IDs() {
		ids[id] = struct{}{}
	}
	if h.known != nil {
		known, err := h.known.Identifiers()
		if err != nil {
			slog.Warn("api: known identifiers unavailable, listing table only", "err", err)
		}
		for _, id := range known {
			ids[id] = struct{}{}
		}
	}

	out := make([]VolumeResponse, 0, len(ids))
	for id := range ids {
		if !matches(id, q) {
			continue
		}
		out = append(out, toVolumeResponse(tbl, id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	jsonResp(w, http.StatusOK, VolumesResponse{
		Volumes:     out,
		Query:       q,
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	})
}

// volume serves GET and PUT /api/v1/volumes/{id}.
func (h *Handler) volume(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/volumes/")
	if raw == "" {
		// Bare /api/v1/volumes/ behaves like the list route.
		h.listVolumes(w, r)
		return
	}
	id, err := volume.ParseIdentifier(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, toVolumeResponse(h.settings.Snapshot(), id))

	case http.MethodPut:
		var req setVolumeRequest
		if err := decodeBody(w, r, &req); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Volume == nil {
			jsonErr(w, http.StatusBadRequest, `missing "volume"`)
			return
		}
		changed := h.resolver.SetVolume(id, narrow(*req.Volume))
		resp := toVolumeResponse(h.settings.Snapshot(), id)
		resp.Changed = &changed
		jsonResp(w, http.StatusOK, resp)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// reload serves POST /api/v1/reload, a forced re-read of the volume file.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.settings.Reload()
	jsonResp(w, http.StatusOK, ReloadResponse{
		State:    h.settings.State().String(),
		Entries:  h.settings.Snapshot().Len(),
		LastLoad: rfc3339(h.settings.FileState().LastLoad),
	})
}

// handles serves GET and POST /api/v1/handles.
func (h *Handler) handles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := h.registry.Entries()
		out := make([]HandleResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, HandleResponse{Handle: uint64(e.Handle), ID: string(e.ID)})
		}
		jsonResp(w, http.StatusOK, out)

	case http.MethodPost:
		var req registerRequest
		if err := decodeBody(w, r, &req); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Handle == 0 {
			jsonErr(w, http.StatusBadRequest, `"handle" must be non-zero`)
			return
		}

		var id volume.Identifier
		switch {
		case req.ID != "":
			parsed, err := volume.ParseIdentifier(req.ID)
			if err != nil {
				jsonErr(w, http.StatusBadRequest, err.Error())
				return
			}
			id = parsed
		case req.Path != "":
			derived, ok := volume.FromAssetPath(req.Path)
			if !ok {
				jsonErr(w, http.StatusBadRequest, "no identifier can be derived from path")
				return
			}
			id = derived
		default:
			jsonErr(w, http.StatusBadRequest, `one of "id" or "path" is required`)
			return
		}

		h.registry.Register(registry.Handle(req.Handle), id)
		jsonResp(w, http.StatusCreated, HandleResponse{Handle: req.Handle, ID: string(id)})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// resolve returns GET /api/v1/resolve?handle=n&volume=x: the multiplier the
// playback path would apply.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	hv, err := strconv.ParseUint(q.Get("handle"), 10, 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid handle")
		return
	}
	requested := float32(1)
	if s := q.Get("volume"); s != "" {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid volume")
			return
		}
		requested = float32(f)
	}

	handle := registry.Handle(hv)
	id, ok := h.resolver.Lookup(handle)
	jsonResp(w, http.StatusOK, ResolveResponse{
		Handle:     hv,
		ID:         string(id),
		Registered: ok,
		Requested:  requested,
		Multiplier: h.resolver.Multiplier(handle, requested),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// matches reports whether id contains q, ignoring case. An empty q matches
// everything.
func matches(id volume.Identifier, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(string(id)), strings.ToLower(q))
}

func toVolumeResponse(tbl *volume.Table, id volume.Identifier) VolumeResponse {
	_, overridden := tbl.Lookup(id)
	return VolumeResponse{
		ID:         string(id),
		Namespace:  id.Namespace(),
		Volume:     tbl.Get(id),
		Overridden: overridden,
	}
}

// narrow bounds v to the volume range before converting, so magnitudes
// beyond float32 clamp like any other out-of-range value.
func narrow(v float64) float32 {
	switch {
	case v > float64(volume.Max):
		return volume.Max
	case v < float64(volume.Min):
		return volume.Min
	}
	return float32(v)
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
