package reconcile

import "sync"

// Stats counts what a reconciliation did.
type Stats struct {
	// Directories created in the destination
	Directories int `json:"directories"`
	// Symlinks created or re-pointed
	Symlinks int `json:"symlinks"`
	// Rendered files that did not exist in the destination
	Rendered int `json:"rendered"`
	// Updated files re-rendered because their source was newer
	Updated int `json:"updated"`
	// Unchanged entries left as they were
	Unchanged int `json:"unchanged"`
	// Removed destination entries, orphans and type mismatches alike
	Removed int `json:"removed"`
	// Suppressed RAW files (companion JPEG or discard marker)
	Suppressed int `json:"suppressed"`
	// Skipped source entries that cannot be mirrored
	Skipped int `json:"skipped"`
	// BytesWritten by renders
	BytesWritten int64 `json:"bytes_written"`
}

// Mutations returns the number of filesystem changes counted in s.
func (s Stats) Mutations() int {
	return s.Directories + s.Symlinks + s.Rendered + s.Updated + s.Removed
}

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) add(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
