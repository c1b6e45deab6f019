package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       string `json:"state"`
	Path        string `json:"path"`
	Entries     int    `json:"entries"`
	Handles     int    `json:"handles"`
	LastLoad    string `json:"last_load,omitempty"`    // RFC3339
	LastAttempt string `json:"last_attempt,omitempty"` // RFC3339
}

// VolumeResponse is one identifier in GET /api/v1/volumes or the payload of
// GET/PUT /api/v1/volumes/{id}.
type VolumeResponse struct {
	ID         string  `json:"id"`
	Namespace  string  `json:"namespace"`
	Volume     float32 `json:"volume"`
	Overridden bool    `json:"overridden"`
	Changed    *bool   `json:"changed,omitempty"` // PUT only
}

// VolumesResponse is the payload for GET /api/v1/volumes.
type VolumesResponse struct {
	Volumes     []VolumeResponse `json:"volumes"`
	Query       string           `json:"query,omitempty"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// setVolumeRequest is the body of PUT /api/v1/volumes/{id}.
type setVolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// ReloadResponse is the payload for POST /api/v1/reload.
type ReloadResponse struct {
	State    string `json:"state"`
	Entries  int    `json:"entries"`
	LastLoad string `json:"last_load,omitempty"` // RFC3339
}

// HandleResponse is one registry entry.
type HandleResponse struct {
	Handle uint64 `json:"handle"`
	ID     string `json:"id"`
}

// registerRequest is the body of POST /api/v1/handles. Exactly one of ID or
// Path should be set; ID wins when both are.
type registerRequest struct {
	Handle uint64 `json:"handle"`
	ID     string `json:"id"`
	Path   string `json:"path"`
}

// ResolveResponse is the payload for GET /api/v1/resolve.
type ResolveResponse struct {
	Handle     uint64  `json:"handle"`
	ID         string  `json:"id,omitempty"`
	Registered bool    `json:"registered"`
	Requested  float32 `json:"requested"`
	Multiplier float32 `json:"multiplier"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
