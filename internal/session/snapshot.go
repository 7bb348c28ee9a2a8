package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/fileutil"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

const (
	// SnapshotKey is the reserved KV key holding the wizard snapshot.
	SnapshotKey = "session.snapshot"

	snapshotVersion = 2
)

var (
	// ErrNoSnapshot is returned when no recoverable snapshot exists.
	ErrNoSnapshot = errors.New("no recoverable session")
	// ErrCorruptSnapshot marks a snapshot that cannot be decoded or whose
	// images are missing or fail verification.
	ErrCorruptSnapshot = errors.New("corrupt session snapshot")
)

// Snapshot is the persisted form of the wizard state. Status holds the
// stage the wizard resumes at; Reached holds the status actually reached.
// Manifest holds one image hash per file in State.VisitFiles order.
type Snapshot struct {
	Version  int               `json:"version"`
	Status   scan.Status       `json:"status"`
	Reached  scan.Status       `json:"reached"`
	SavedAt  time.Time         `json:"saved_at"`
	Location *scan.Location    `json:"location,omitempty"`
	Counts   Counts            `json:"counts"`
	Manifest []string          `json:"manifest,omitempty"`
	State    scan.State        `json:"state"`
}

// Counts summarises the snapshot for the resume prompt.
type Counts struct {
	Images    int `json:"images"`
	Detected  int `json:"detected"`
	Confirmed int `json:"confirmed"`
	Submitted int `json:"submitted"`
}

// RecoverySummary is what the user is shown before resuming.
type RecoverySummary struct {
	Status   scan.Status
	Reached  scan.Status
	Route    scan.Route
	Location *scan.Location
	Counts   Counts
	SavedAt  time.Time
}

// LocationName returns the selected location's display name.
func (r RecoverySummary) LocationName() string {
	if r.Location == nil {
		return ""
	}
	if r.Location.Path != "" {
		return r.Location.Path
	}
	return r.Location.Name
}

// ItemCount is the number of items the user would get back: candidates and
// confirmed items once detection has run, captured photos before that.
func (r RecoverySummary) ItemCount() int {
	if n := r.Counts.Detected + r.Counts.Confirmed; n > 0 {
		return n
	}
	return r.Counts.Images
}

// header decodes only the summary fields of a snapshot.
type header struct {
	Version  int            `json:"version"`
	Status   scan.Status    `json:"status"`
	Reached  scan.Status    `json:"reached"`
	SavedAt  time.Time      `json:"saved_at"`
	Location *scan.Location `json:"location,omitempty"`
	Counts   Counts         `json:"counts"`
}

func (h header) recoverable() bool {
	return h.Version == snapshotVersion && scan.IsRecoverable(h.Status)
}

func (h header) summary() RecoverySummary {
	return RecoverySummary{
		Status:   h.Status,
		Reached:  h.Reached,
		Route:    scan.RouteFor(h.Status),
		Location: h.Location,
		Counts:   h.Counts,
		SavedAt:  h.SavedAt,
	}
}

// encoded is a snapshot document plus the blobs it references.
type encoded struct {
	doc   []byte
	blobs map[string][]byte
	size  int64
}

// Encode builds the snapshot for state. Image bytes are returned separately,
// keyed by their hash, and excluded from the JSON document.
func Encode(state scan.State, now time.Time) (Snapshot, map[string][]byte) {
	copyState := state.Clone()
	copyState.Progress = nil
	copyState.LastError = ""

	snap := Snapshot{
		Version:  snapshotVersion,
		Status:   scan.ResumeStage(state.Status),
		Reached:  state.Status,
		SavedAt:  now.UTC(),
		Location: copyState.Location,
		Counts: Counts{
			Images:    len(state.Images),
			Detected:  len(state.Detected),
			Confirmed: len(state.Confirmed),
			Submitted: submittedCount(state.Submission),
		},
	}
	copyState.Status = snap.Status

	blobs := make(map[string][]byte)
	copyState.VisitFiles(func(f *scan.File) {
		hash := fileutil.HashBytes(f.Data)
		snap.Manifest = append(snap.Manifest, hash)
		blobs[hash] = f.Data
	})
	snap.State = copyState
	return snap, blobs
}

func encode(state scan.State, now time.Time) (encoded, error) {
	snap, blobs := Encode(state, now)
	doc, err := json.Marshal(snap)
	if err != nil {
		return encoded{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	size := int64(len(doc))
	for _, data := range blobs {
		size += int64(len(data))
	}
	return encoded{doc: doc, blobs: blobs, size: size}, nil
}

// decodeHeader parses only the summary portion of a snapshot document.
func decodeHeader(doc []byte) (header, error) {
	var h header
	if err := json.Unmarshal(doc, &h); err != nil {
		return header{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return h, nil
}

// decode restores the full state, reading and verifying every image blob.
func decode(ctx context.Context, doc []byte, blobs BlobStore) (scan.State, error) {
	var snap Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return scan.State{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return scan.State{}, fmt.Errorf("%w: version %d", ErrCorruptSnapshot, snap.Version)
	}
	if !scan.IsRecoverable(snap.Status) {
		return scan.State{}, ErrNoSnapshot
	}

	state := snap.State
	state.Status = snap.Status
	cache := make(map[string][]byte)
	var (
		firstErr error
		visited  int
	)
	state.VisitFiles(func(f *scan.File) {
		if firstErr != nil {
			return
		}
		if visited >= len(snap.Manifest) {
			firstErr = fmt.Errorf("%w: file %s missing from manifest", ErrCorruptSnapshot, f.ID)
			return
		}
		hash := snap.Manifest[visited]
		visited++
		data, ok := cache[hash]
		if !ok {
			fetched, err := blobs.Get(ctx, hash)
			if err != nil {
				firstErr = fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
				return
			}
			if !fileutil.VerifyHash(fetched, hash) {
				firstErr = fmt.Errorf("%w: file %s hash mismatch", ErrCorruptSnapshot, f.ID)
				return
			}
			cache[hash] = fetched
			data = fetched
		}
		f.Data = data
	})
	if firstErr != nil {
		return scan.State{}, firstErr
	}
	if visited != len(snap.Manifest) {
		return scan.State{}, fmt.Errorf("%w: manifest lists %d files, state has %d", ErrCorruptSnapshot, len(snap.Manifest), visited)
	}
	if state.Status == scan.StatusReviewing && (state.ReviewIndex < 0 || state.ReviewIndex >= len(state.Detected)) {
		return scan.State{}, fmt.Errorf("%w: review index %d out of range", ErrCorruptSnapshot, state.ReviewIndex)
	}
	return state, nil
}

func submittedCount(records []scan.SubmissionRecord) int {
	n := 0
	for _, record := range records {
		if record.Status == scan.SubmissionSuccess {
			n++
		}
	}
	return n
}
