package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
	"github.com/Duelion/homebox-companion-sub001/internal/testsupport"
)

func newPersister(t *testing.T, blobs session.BlobStore, opts ...session.Option) (*session.Persister, session.KV) {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	if blobs == nil {
		blobs = store.Blobs()
	}
	kv := store.KV(0)
	p := session.NewPersister(kv, blobs, opts...)
	t.Cleanup(p.Close)
	return p, kv
}

func reviewingState() scan.State {
	photo := testsupport.SampleFile("shelf", 64)
	extra := testsupport.SampleFile("receipt", 32)
	first := scan.CandidateItem{ID: "c1", SourceImageID: "img1", SourceFile: &photo, Name: "Drill", Quantity: 1}
	second := scan.CandidateItem{ID: "c2", SourceImageID: "img1", SourceFile: &photo, Name: "Bits", Quantity: 20}
	confirmed := scan.CandidateItem{ID: "c0", SourceImageID: "img1", SourceFile: &photo, Name: "Saw", Quantity: 1}.Promote()
	confirmed.AdditionalImages = []scan.File{extra}
	return scan.State{
		Status:      scan.StatusReviewing,
		Location:    &scan.Location{ID: "loc1", Name: "Garage", Path: "Home / Garage"},
		Detected:    []scan.CandidateItem{first, second},
		ReviewIndex: 1,
		Confirmed:   []scan.ConfirmedItem{confirmed},
	}
}

func TestPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersister(t, nil)
	state := reviewingState()

	p.Save(state)
	if !p.HasRecoverable(ctx) {
		t.Fatal("expected recoverable snapshot")
	}
	summary, ok := p.Summary(ctx)
	if !ok {
		t.Fatal("expected summary")
	}
	if summary.Route != scan.RouteReview || summary.Counts.Detected != 2 || summary.Counts.Confirmed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Location == nil || summary.Location.Name != "Garage" {
		t.Fatalf("unexpected summary location: %+v", summary.Location)
	}

	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != scan.StatusReviewing || got.ReviewIndex != 1 {
		t.Fatalf("unexpected status/index: %s %d", got.Status, got.ReviewIndex)
	}
	if len(got.Detected) != 2 || len(got.Confirmed) != 1 {
		t.Fatalf("unexpected counts: %d detected, %d confirmed", len(got.Detected), len(got.Confirmed))
	}
	if string(got.Detected[0].SourceFile.Data) != string(state.Detected[0].SourceFile.Data) {
		t.Fatal("detected image bytes not restored")
	}
	restored := got.Confirmed[0]
	if restored.OriginalFile == nil || len(restored.OriginalFile.Data) != 64 {
		t.Fatalf("confirmed original not restored: %+v", restored.OriginalFile)
	}
	if len(restored.AdditionalImages) != 1 || string(restored.AdditionalImages[0].Data) != string(state.Confirmed[0].AdditionalImages[0].Data) {
		t.Fatal("additional image not restored")
	}
}

func TestPersisterWritesSubmissionStatesAsConfirming(t *testing.T) {
	ctx := context.Background()
	for _, status := range []scan.Status{scan.StatusSubmitting, scan.StatusSubmissionFailed, scan.StatusSessionExpired} {
		t.Run(string(status), func(t *testing.T) {
			p, _ := newPersister(t, nil)
			state := reviewingState()
			state.Status = status
			state.Detected = nil
			state.ReviewIndex = 0
			state.Submission = []scan.SubmissionRecord{
				{ItemID: "c0", Name: "Saw", Status: scan.SubmissionSuccess, CreatedID: "hb-1"},
			}
			p.Save(state)

			summary, ok := p.Summary(ctx)
			if !ok {
				t.Fatal("expected recoverable snapshot")
			}
			if summary.Status != scan.StatusConfirming || summary.Reached != status || summary.Route != scan.RouteSummary {
				t.Fatalf("unexpected summary: %+v", summary)
			}
			if summary.Counts.Submitted != 1 {
				t.Fatalf("expected submitted count 1, got %d", summary.Counts.Submitted)
			}
			got, err := p.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.Status != scan.StatusConfirming {
				t.Fatalf("expected confirming, got %s", got.Status)
			}
			if len(got.Submission) != 1 || got.Submission[0].CreatedID != "hb-1" {
				t.Fatalf("submission records not restored: %+v", got.Submission)
			}
		})
	}
}

func TestPersisterIgnoresUnrecoverableStatuses(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersister(t, nil)
	p.Save(scan.State{Status: scan.StatusLocationSelected, Location: &scan.Location{ID: "l", Name: "Shed"}})

	if p.HasRecoverable(ctx) {
		t.Fatal("location_selected must not be recoverable")
	}
	if _, err := p.Load(ctx); !errors.Is(err, session.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestPersisterAppliesWritesInOrder(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersister(t, nil)

	state := reviewingState()
	p.Save(state)
	p.Clear()
	state.ReviewIndex = 0
	state.Status = scan.StatusCapturing
	p.Save(state)

	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != scan.StatusCapturing {
		t.Fatalf("expected last save to win, got %s", got.Status)
	}

	p.Clear()
	if p.HasRecoverable(ctx) {
		t.Fatal("expected snapshot cleared")
	}
}

func TestPersisterQuotaClearsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersister(t, nil, session.WithQuota(4096))

	small := reviewingState()
	p.Save(small)
	if !p.HasRecoverable(ctx) {
		t.Fatal("expected first snapshot stored")
	}

	large := small.Clone()
	big := testsupport.SampleFile("huge", 8192)
	large.Confirmed[0].AdditionalImages = append(large.Confirmed[0].AdditionalImages, big)
	large.Status = scan.StatusConfirming
	large.Detected = nil
	large.ReviewIndex = 0
	p.Save(large)
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if !errors.Is(p.LastError(), session.ErrQuotaExceeded) {
		t.Fatalf("expected quota error recorded, got %v", p.LastError())
	}
	if p.HasRecoverable(ctx) {
		t.Fatal("stale snapshot must not survive a failed write")
	}
}

func TestPersisterLoadRejectsTamperedImages(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	p, _ := newPersister(t, blobs)
	p.Save(reviewingState())
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	blobs.tamper()
	if !p.HasRecoverable(ctx) {
		t.Fatal("header check must not read images")
	}
	if _, err := p.Load(ctx); !errors.Is(err, session.ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}

	blobs.wipe()
	if _, err := p.Load(ctx); !errors.Is(err, session.ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot for missing blob, got %v", err)
	}
}

func TestPersisterLoadRejectsCorruptDocument(t *testing.T) {
	ctx := context.Background()
	p, kv := newPersister(t, nil)
	if err := kv.Put(ctx, session.SnapshotKey, []byte("{not json")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if p.HasRecoverable(ctx) {
		t.Fatal("corrupt document must not be recoverable")
	}
	if _, err := p.Load(ctx); !errors.Is(err, session.ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestEncodeSharesBlobsAcrossFiles(t *testing.T) {
	state := reviewingState()
	snap, blobs := session.Encode(state, time.Unix(0, 0))
	// Two distinct images: the shelf photo and the receipt.
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(blobs))
	}
	// One entry per reference: two candidates, the confirmed original, the receipt.
	if len(snap.Manifest) != 4 {
		t.Fatalf("expected manifest of 4 entries, got %d", len(snap.Manifest))
	}
	if snap.Counts.Detected != 2 || snap.Counts.Confirmed != 1 {
		t.Fatalf("unexpected counts: %+v", snap.Counts)
	}
}

func TestPersisterKeepsFilesThatShareAnID(t *testing.T) {
	ctx := context.Background()
	p, _ := newPersister(t, nil)
	state := reviewingState()
	clash := testsupport.SampleFile("label", 48)
	clash.ID = state.Detected[0].SourceFile.ID
	state.Confirmed[0].CustomThumbnail = &clash

	p.Save(state)
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got.Detected[0].SourceFile.Data) != string(state.Detected[0].SourceFile.Data) {
		t.Fatal("shelf photo replaced by a file with the same id")
	}
	thumb := got.Confirmed[0].CustomThumbnail
	if thumb == nil || string(thumb.Data) != string(clash.Data) {
		t.Fatalf("thumbnail bytes lost: %+v", thumb)
	}
}

func TestPersisterCloseIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	p := session.NewPersister(store.KV(0), store.Blobs())
	p.Save(reviewingState())
	p.Close()
	p.Close()
	// Operations after close are dropped without blocking.
	p.Save(reviewingState())
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Has(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[hash]
	return ok, nil
}

func (m *memBlobs) Put(_ context.Context, hash string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[hash] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, hash string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[hash]
	if !ok {
		return nil, session.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memBlobs) Prune(_ context.Context, keep map[string]struct{}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for hash := range m.data {
		if _, ok := keep[hash]; !ok {
			delete(m.data, hash)
			removed++
		}
	}
	return removed, nil
}

func (m *memBlobs) tamper() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash := range m.data {
		m.data[hash] = []byte("tampered")
	}
}

func (m *memBlobs) wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
}
