package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
	"github.com/Duelion/homebox-companion-sub001/internal/session"
	"github.com/Duelion/homebox-companion-sub001/internal/submission"
	"github.com/Duelion/homebox-companion-sub001/internal/testsupport"
)

// stubDetector returns canned items per file name.
type stubDetector struct {
	mu    sync.Mutex
	items map[string][]string
	errs  map[string]error
	calls int
}

func newStubDetector() *stubDetector {
	return &stubDetector{items: map[string][]string{}, errs: map[string]error{}}
}

func (d *stubDetector) Detect(_ context.Context, file scan.File, _ scan.DetectOptions) ([]scan.CandidateItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := d.errs[file.Name]; err != nil {
		return nil, err
	}
	var out []scan.CandidateItem
	for _, name := range d.items[file.Name] {
		out = append(out, scan.CandidateItem{ID: scan.NewID(), Name: name, Quantity: 1})
	}
	return out, nil
}

func (d *stubDetector) set(file string, names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[file] = names
	delete(d.errs, file)
}

func (d *stubDetector) fail(file string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[file] = err
}

type stubCorrector struct {
	names []string
}

func (c stubCorrector) Correct(_ context.Context, _ scan.File, item scan.CandidateItem, _ string) ([]scan.CandidateItem, error) {
	var out []scan.CandidateItem
	for _, name := range c.names {
		out = append(out, scan.CandidateItem{Name: name, Quantity: item.Quantity})
	}
	return out, nil
}

// stubAnalyzer returns canned details and merges, recording what it was sent.
type stubAnalyzer struct {
	mu      sync.Mutex
	details scan.CandidateItem
	merged  scan.CandidateItem
	err     error
	photos  []scan.File
	inputs  []scan.ConfirmedItem
}

func (a *stubAnalyzer) AnalyzeDetails(_ context.Context, _ scan.ConfirmedItem, files []scan.File) (scan.CandidateItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.photos = append([]scan.File(nil), files...)
	return a.details, a.err
}

func (a *stubAnalyzer) Merge(_ context.Context, items []scan.ConfirmedItem) (scan.CandidateItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append([]scan.ConfirmedItem(nil), items...)
	return a.merged, a.err
}

type stubDuplicates struct {
	matches map[string]*scan.DuplicateMatch
	err     error
}

func (s stubDuplicates) CheckSerial(_ context.Context, serial string) (*scan.DuplicateMatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.matches[serial], nil
}

// fakeInventory records creates by item name.
type fakeInventory struct {
	mu        sync.Mutex
	creates   map[string]int
	uploadErr map[string]error
	gate      chan struct{}
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{creates: map[string]int{}, uploadErr: map[string]error{}}
}

func (f *fakeInventory) CreateItem(_ context.Context, _ string, item scan.ConfirmedItem, _ scan.Location, _ *scan.ParentItem) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates[item.Name]++
	return "hb-" + item.Name, nil
}

func (f *fakeInventory) ApplyDetails(context.Context, string, string, scan.ConfirmedItem) error {
	return nil
}

func (f *fakeInventory) UploadAttachment(_ context.Context, _ string, _ string, att scan.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadErr[att.File.Name]
}

func (f *fakeInventory) createCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates[name]
}

func (f *fakeInventory) totalCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.creates {
		total += n
	}
	return total
}

// switchableTokens fails every call from failFrom onward until restored.
type switchableTokens struct {
	mu       sync.Mutex
	calls    int
	failFrom int
}

func (s *switchableTokens) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFrom > 0 && s.calls >= s.failFrom {
		return "", services.Wrap(services.ErrUnauthorized, "homebox", "token", "login expired", nil)
	}
	return "tok", nil
}

func (s *switchableTokens) restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFrom = 0
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed int
	expired   int
	errors    int
}

func (r *recordingNotifier) NotifySubmissionCompleted(context.Context, string, int, int, int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	return nil
}

func (r *recordingNotifier) NotifySessionExpired(context.Context, string, int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
	return nil
}

func (r *recordingNotifier) NotifyError(context.Context, error, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
	return errors.New("ntfy unreachable")
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

type harness struct {
	machine   *Machine
	detector  *stubDetector
	analyzer  *stubAnalyzer
	inventory *fakeInventory
	tokens    *switchableTokens
	notifier  *recordingNotifier
	persister *session.Persister
	store     *session.Store
	deps      Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	persister := session.NewPersister(store.KV(0), store.Blobs())
	t.Cleanup(persister.Close)

	h := &harness{
		detector:  newStubDetector(),
		analyzer:  &stubAnalyzer{},
		inventory: newFakeInventory(),
		tokens:    &switchableTokens{},
		notifier:  &recordingNotifier{},
		persister: persister,
		store:     store,
	}
	h.deps = Deps{
		Detector:  h.detector,
		Analyzer:  h.analyzer,
		Inventory: h.inventory,
		Tokens:    h.tokens,
		Persister: persister,
		Notifier:  h.notifier,
	}
	h.machine = New(testConfig(), h.deps)
	t.Cleanup(h.machine.Dispose)
	return h
}

// fresh builds a second machine sharing the harness storage, as a restarted
// process would.
func (h *harness) fresh(t *testing.T) *Machine {
	t.Helper()
	m := New(testConfig(), h.deps)
	t.Cleanup(m.Dispose)
	return m
}

func testConfig() Config {
	return Config{
		DetectionConcurrency: 2,
		DetectionTimeout:     5 * time.Second,
		DuplicateCheck:       true,
		Submission:           submission.Config{Concurrency: 1, UploadPhotos: true},
	}
}

// reachReview selects a location and analyzes one photo yielding names.
func (h *harness) reachReview(t *testing.T, names ...string) {
	t.Helper()
	if err := h.machine.SetLocation(scan.Location{ID: "loc-1", Name: "Garage"}); err != nil {
		t.Fatalf("set location: %v", err)
	}
	h.detector.set("shelf.jpg", names...)
	if _, err := h.machine.AddImage(testsupport.SampleFile("shelf", 32), scan.CaptureOptions{}); err != nil {
		t.Fatalf("add image: %v", err)
	}
	report, err := h.machine.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Status != scan.StatusReviewing {
		t.Fatalf("expected reviewing after analysis, got %s", report.Status)
	}
}

// reachSummary confirms every detected item.
func (h *harness) reachSummary(t *testing.T, names ...string) {
	t.Helper()
	h.reachReview(t, names...)
	for range names {
		if _, err := h.machine.ConfirmCurrent(); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}
	if got := h.machine.Status(); got != scan.StatusConfirming {
		t.Fatalf("expected confirming, got %s", got)
	}
}
