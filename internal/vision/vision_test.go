package vision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
)

type fakeCompleter struct {
	response string
	err      error
	system   string
	user     string
	images   []llm.Image
}

func (f *fakeCompleter) CompleteVisionJSON(_ context.Context, systemPrompt, userPrompt string, images []llm.Image) (string, error) {
	f.system = systemPrompt
	f.user = userPrompt
	f.images = images
	return f.response, f.err
}

func sampleFile() scan.File {
	return scan.NewFile("desk.jpg", "image/png", []byte{0x89, 'P', 'N', 'G'})
}

func TestDetectParsesAndNormalizesItems(t *testing.T) {
	completer := &fakeCompleter{response: "```json\n" + `{"items":[
		{"name":"  Hammer, Claw  ","quantity":0,"description":"steel","labelIds":["l1","bogus"]},
		{"name":"Batteries, AA","quantity":"4","manufacturer":"Duracell","purchasePrice":3.5},
		{"name":"   ","quantity":2}
	]}` + "\n```"}
	detector := NewDetector(completer)

	labels := []scan.Label{{ID: "l1", Name: "Tools"}}
	items, err := detector.Detect(context.Background(), sampleFile(), scan.DetectOptions{ExtendedFields: true, Labels: labels})
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Name != "Hammer, Claw" || items[0].Quantity != 1 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if len(items[0].LabelIDs) != 1 || items[0].LabelIDs[0] != "l1" {
		t.Fatalf("expected unknown labels filtered, got %v", items[0].LabelIDs)
	}
	if items[1].Quantity != 4 || items[1].Extended.Manufacturer != "Duracell" || items[1].Extended.PurchasePrice != 3.5 {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if items[0].ID == "" || items[0].ID == items[1].ID {
		t.Fatalf("expected distinct ids, got %q and %q", items[0].ID, items[1].ID)
	}
	if len(completer.images) != 1 || completer.images[0].MimeType != "image/png" {
		t.Fatalf("expected image forwarded, got %+v", completer.images)
	}
	if !strings.Contains(completer.system, "manufacturer") {
		t.Fatalf("expected extended schema in system prompt")
	}
	if !strings.Contains(completer.system, "l1: Tools") {
		t.Fatalf("expected labels in system prompt")
	}
}

func TestDetectSingleItemKeepsOne(t *testing.T) {
	completer := &fakeCompleter{response: `{"items":[{"name":"Lamp"},{"name":"Shade"}]}`}
	items, err := NewDetector(completer).Detect(context.Background(), sampleFile(), scan.DetectOptions{SingleItem: true, Instructions: "desk lamp"})
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Lamp" {
		t.Fatalf("expected single item, got %+v", items)
	}
	if !strings.Contains(completer.user, `"desk lamp"`) {
		t.Fatalf("expected hint in user prompt, got %q", completer.user)
	}
	if !strings.Contains(completer.system, "ONE item") {
		t.Fatalf("expected single item constraint in system prompt")
	}
}

func TestDetectEmptyResultIsNotAnError(t *testing.T) {
	items, err := NewDetector(&fakeCompleter{response: `{"items":[]}`}).Detect(context.Background(), sampleFile(), scan.DetectOptions{})
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestDetectErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := NewDetector(&fakeCompleter{err: boom}).Detect(context.Background(), sampleFile(), scan.DetectOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected completer error, got %v", err)
	}
	if _, err := NewDetector(&fakeCompleter{response: "no json here"}).Detect(context.Background(), sampleFile(), scan.DetectOptions{}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewDetector(&fakeCompleter{}).Detect(context.Background(), scan.File{ID: "x"}, scan.DetectOptions{}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestCorrectSplitsItem(t *testing.T) {
	completer := &fakeCompleter{response: `{"items":[{"name":"Pen, Blue","quantity":2},{"name":"Pen, Red","quantity":1}]}`}
	corrector := NewCorrector(completer, nil)
	current := scan.CandidateItem{Name: "Pens", Quantity: 3, Extended: scan.ExtendedFields{Manufacturer: "Bic"}}

	items, err := corrector.Correct(context.Background(), sampleFile(), current, "these are separate items")
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected split into 2 items, got %d", len(items))
	}
	if !strings.Contains(completer.user, "Current: Pens (qty: 3), mfr: Bic") {
		t.Fatalf("unexpected user prompt %q", completer.user)
	}
}

func TestCorrectAcceptsBareItemObject(t *testing.T) {
	completer := &fakeCompleter{response: `{"name":"Mug, Ceramic","quantity":1}`}
	items, err := NewCorrector(completer, nil).Correct(context.Background(), sampleFile(), scan.CandidateItem{Name: "Cup"}, "it is a mug")
	if err != nil {
		t.Fatalf("Correct returned error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Mug, Ceramic" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestCorrectRejectsEmptyResults(t *testing.T) {
	corrector := NewCorrector(&fakeCompleter{response: `{"items":[]}`}, nil)
	if _, err := corrector.Correct(context.Background(), sampleFile(), scan.CandidateItem{Name: "Cup"}, "fix"); err == nil {
		t.Fatal("expected error for empty correction")
	}
	if _, err := corrector.Correct(context.Background(), sampleFile(), scan.CandidateItem{Name: "Cup"}, "  "); err == nil {
		t.Fatal("expected error for blank instructions")
	}
}

func TestAnalyzeDetailsSendsEveryPhoto(t *testing.T) {
	completer := &fakeCompleter{response: `{"items":[{"name":"Drill, Cordless","quantity":1,"manufacturer":"Makita","serialNumber":"SN-42","labelIds":["l1","bogus"]}]}`}
	analyzer := NewAnalyzer(completer, []scan.Label{{ID: "l1", Name: "Tools"}})
	files := []scan.File{sampleFile(), scan.NewFile("label.jpg", "image/jpeg", []byte("label")), {ID: "empty"}}

	got, err := analyzer.AnalyzeDetails(context.Background(), scan.ConfirmedItem{Name: "Drill", Description: "green"}, files)
	if err != nil {
		t.Fatalf("AnalyzeDetails returned error: %v", err)
	}
	if len(completer.images) != 2 {
		t.Fatalf("expected 2 images sent, got %d", len(completer.images))
	}
	if !strings.Contains(completer.user, "Drill") || !strings.Contains(completer.user, "green") {
		t.Fatalf("user prompt missing item context: %q", completer.user)
	}
	if got.Extended.Manufacturer != "Makita" || got.Extended.SerialNumber != "SN-42" {
		t.Fatalf("unexpected extended fields: %+v", got.Extended)
	}
	if len(got.LabelIDs) != 1 || got.LabelIDs[0] != "l1" {
		t.Fatalf("unexpected labels: %v", got.LabelIDs)
	}

	if _, err := analyzer.AnalyzeDetails(context.Background(), scan.ConfirmedItem{Name: "Drill"}, []scan.File{{ID: "empty"}}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestMergeCombinesItems(t *testing.T) {
	items := []scan.ConfirmedItem{
		{Name: "Sandpaper, 80 grit", Quantity: 5},
		{Name: "Sandpaper, 120 grit", Quantity: 3, Description: "fine"},
	}
	tests := []struct {
		name     string
		response string
		wantQty  int
	}{
		{name: "model quantity", response: `{"items":[{"name":"Sandpaper Assortment","quantity":7}]}`, wantQty: 7},
		{name: "summed quantity", response: `{"items":[{"name":"Sandpaper Assortment"}]}`, wantQty: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{response: tt.response}
			got, err := NewAnalyzer(completer, nil).Merge(context.Background(), items)
			if err != nil {
				t.Fatalf("Merge returned error: %v", err)
			}
			if got.Name != "Sandpaper Assortment" || got.Quantity != tt.wantQty {
				t.Fatalf("unexpected merged item: %+v", got)
			}
			if completer.images != nil {
				t.Fatal("merge must not send images")
			}
			if !strings.Contains(completer.user, "120 grit") {
				t.Fatalf("user prompt missing items: %q", completer.user)
			}
		})
	}

	if _, err := NewAnalyzer(&fakeCompleter{}, nil).Merge(context.Background(), items[:1]); !errors.Is(err, ErrTooFewItems) {
		t.Fatalf("expected ErrTooFewItems, got %v", err)
	}
}
