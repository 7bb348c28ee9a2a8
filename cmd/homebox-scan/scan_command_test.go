package main

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

func TestScanYesCreatesEveryDetectedItem(t *testing.T) {
	env := setupCLITestEnv(t, "Drill", "Saw")
	photo := env.writePhoto(t, "shelf.jpg")

	stdout, stderr, err := runCLI(t, env, "", "scan", "--location", "Garage", "--yes", photo)
	if err != nil {
		t.Fatalf("scan failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	requireContains(t, stdout, "created 2, partial 0, failed 0")
	requireContains(t, stdout, "2 item(s) added to Garage")

	names := env.homebox.createdNames()
	slices.Sort(names)
	if !slices.Equal(names, []string{"Drill", "Saw"}) {
		t.Fatalf("unexpected created items: %v", names)
	}
	env.homebox.mu.Lock()
	for _, item := range env.homebox.created {
		if item["locationId"] != "loc-1" {
			t.Fatalf("expected items in loc-1, got %v", item["locationId"])
		}
	}
	attachments := len(env.homebox.attachments)
	env.homebox.mu.Unlock()
	if attachments != 2 {
		t.Fatalf("expected a photo attached to both items, got %d", attachments)
	}

	stdout, _, err = runCLI(t, env, "", "session", "status")
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	requireContains(t, stdout, "No saved session")
}

func TestScanYesRequiresLocation(t *testing.T) {
	env := setupCLITestEnv(t, "Drill")
	photo := env.writePhoto(t, "shelf.jpg")

	_, _, err := runCLI(t, env, "", "scan", "--yes", photo)
	if err == nil {
		t.Fatal("expected error without --location")
	}
	requireContains(t, err.Error(), "--location is required")
}

func TestScanUnknownLocation(t *testing.T) {
	env := setupCLITestEnv(t, "Drill")
	photo := env.writePhoto(t, "shelf.jpg")

	_, _, err := runCLI(t, env, "", "scan", "--location", "Attic", "--yes", photo)
	if err == nil {
		t.Fatal("expected error for unknown location")
	}
	requireContains(t, err.Error(), `location "Attic" not found`)
}

func TestScanQuitMidReviewThenResume(t *testing.T) {
	env := setupCLITestEnv(t, "Drill", "Saw")
	photo := env.writePhoto(t, "shelf.jpg")

	// Confirm the first item, then quit on the second.
	stdout, stderr, err := runCLI(t, env, "c\nq\n", "scan", "--location", "Garage / Shelf", photo)
	if err != nil {
		t.Fatalf("scan failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	requireContains(t, stdout, "Item 1 of 2")
	requireContains(t, stdout, "Session saved. Resume with: homebox-scan scan --resume")
	if got := env.homebox.createdNames(); len(got) != 0 {
		t.Fatalf("expected nothing created before submit, got %v", got)
	}

	stdout, _, err = runCLI(t, env, "", "session", "status", "-o", "json")
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	var view sessionStatusView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode status: %v\n%s", err, stdout)
	}
	if !view.Saved || view.Status != "reviewing" || view.Location != "Garage / Shelf" {
		t.Fatalf("unexpected session view: %+v", view)
	}
	if view.Confirmed != 1 || view.Detected != 1 || view.Images != 0 {
		t.Fatalf("unexpected counts: %+v", view)
	}

	stdout, stderr, err = runCLI(t, env, "", "session", "resume", "--yes")
	if err != nil {
		t.Fatalf("resume failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	requireContains(t, stdout, "created 2, partial 0, failed 0")

	env.homebox.mu.Lock()
	for _, item := range env.homebox.created {
		if item["locationId"] != "loc-2" {
			t.Errorf("expected items in loc-2, got %v", item["locationId"])
		}
	}
	env.homebox.mu.Unlock()
	if got := env.homebox.createdNames(); len(got) != 2 {
		t.Fatalf("expected 2 created items, got %v", got)
	}
}

func TestScanDiscardingSavedSessionStartsFresh(t *testing.T) {
	env := setupCLITestEnv(t, "Drill")
	photo := env.writePhoto(t, "shelf.jpg")

	if _, _, err := runCLI(t, env, "q\n", "scan", "--location", "Garage", photo); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	stdout, _, err := runCLI(t, env, "", "session", "clear")
	if err != nil {
		t.Fatalf("session clear: %v", err)
	}
	requireContains(t, stdout, "Saved session cleared")

	stdout, _, err = runCLI(t, env, "", "session", "clear")
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	requireContains(t, stdout, "No saved session")
}

func TestScanPicksLocationThenCaptures(t *testing.T) {
	env := setupCLITestEnv(t, "Drill")
	photo := env.writePhoto(t, "shelf.jpg")

	stdout, stderr, err := runCLI(t, env, "2\nc\ns\n", "scan", photo)
	if err != nil {
		t.Fatalf("scan failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	if n := strings.Count(stdout, "Location number:"); n != 1 {
		t.Fatalf("expected one location prompt, got %d\n%s", n, stdout)
	}
	requireContains(t, stdout, "created 1, partial 0, failed 0")

	env.homebox.mu.Lock()
	defer env.homebox.mu.Unlock()
	if len(env.homebox.created) != 1 || env.homebox.created[0]["locationId"] != "loc-2" {
		t.Fatalf("expected one item in loc-2, got %v", env.homebox.created)
	}
}

func TestScanSummaryAttachesExtraPhotos(t *testing.T) {
	env := setupCLITestEnv(t, "Drill", "Saw")
	photo := env.writePhoto(t, "shelf.jpg")
	receipt := env.writePhoto(t, "receipt.jpg")
	thumb := env.writePhoto(t, "thumb.jpg")

	stdin := "c\nc\n" +
		"e\n1\n" + receipt + "\n\n" +
		"t\n2\n" + thumb + "\n" +
		"s\n"
	stdout, stderr, err := runCLI(t, env, stdin, "scan", "--location", "Garage", photo)
	if err != nil {
		t.Fatalf("scan failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	requireContains(t, stdout, "1 extra photo(s)")
	requireContains(t, stdout, "thumbnail thumb.jpg")
	requireContains(t, stdout, "created 2, partial 0, failed 0")

	env.homebox.mu.Lock()
	defer env.homebox.mu.Unlock()
	total := 0
	for _, n := range env.homebox.attachments {
		total += n
	}
	// Drill: shelf photo plus receipt. Saw: thumbnail in place of the shelf photo.
	if total != 3 {
		t.Fatalf("expected 3 uploads, got %v", env.homebox.attachments)
	}
}

func TestScanSummaryGroupsItems(t *testing.T) {
	env := setupCLITestEnv(t, "Drill", "Saw")
	photo := env.writePhoto(t, "shelf.jpg")

	stdout, stderr, err := runCLI(t, env, "c\nc\ng\n1,2\ns\n", "scan", "--location", "Garage", photo)
	if err != nil {
		t.Fatalf("scan failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	requireContains(t, stdout, "grouped 2 items")
	requireContains(t, stdout, "created 1, partial 0, failed 0")
	if got := env.homebox.createdNames(); len(got) != 1 {
		t.Fatalf("expected one grouped item, got %v", got)
	}
}

func TestSelectConfirmed(t *testing.T) {
	items := []scan.ConfirmedItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	tests := []struct {
		answer  string
		want    []string
		wantErr bool
	}{
		{answer: "1,3", want: []string{"a", "c"}},
		{answer: " 2 3 ", want: []string{"b", "c"}},
		{answer: "1,4", wantErr: true},
		{answer: "x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := selectConfirmed(tt.answer, items)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: unexpected error %v", tt.answer, err)
		}
		if !tt.wantErr && !slices.Equal(got, tt.want) {
			t.Fatalf("%q: got %v want %v", tt.answer, got, tt.want)
		}
	}
}

func TestMatchLocation(t *testing.T) {
	locations := []scan.Location{
		{ID: "loc-1", Name: "Garage", Path: "Garage"},
		{ID: "loc-2", Name: "Shelf", Path: "Garage / Shelf"},
	}

	tests := []struct {
		query  string
		wantID string
		found  bool
	}{
		{query: "loc-2", wantID: "loc-2", found: true},
		{query: "garage", wantID: "loc-1", found: true},
		{query: "GARAGE / shelf", wantID: "loc-2", found: true},
		{query: "Attic", found: false},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got, ok := matchLocation(locations, tc.query)
			if ok != tc.found {
				t.Fatalf("found = %v, want %v", ok, tc.found)
			}
			if ok && got.ID != tc.wantID {
				t.Fatalf("matched %q, want %q", got.ID, tc.wantID)
			}
		})
	}
}
