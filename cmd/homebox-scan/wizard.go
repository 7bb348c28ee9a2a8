package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/config"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/homebox"
	"github.com/Duelion/homebox-companion-sub001/internal/submission"
	"github.com/Duelion/homebox-companion-sub001/internal/workflow"
)

type scanOptions struct {
	location     string
	parent       string
	photos       []string
	instructions string
	singleItem   bool
	yes          bool
	resume       bool
}

// wizard walks the workflow machine from the terminal, dispatching on the
// route of the current status.
type wizard struct {
	rt       *scanRuntime
	m        *workflow.Machine
	prompt   *prompter
	out      io.Writer
	colorize bool
	opts     scanOptions

	photosAdded bool
	relogged    bool
}

func newWizard(rt *scanRuntime, in io.Reader, out io.Writer, opts scanOptions) *wizard {
	return &wizard{
		rt:       rt,
		m:        rt.machine,
		prompt:   newPrompter(in, out),
		out:      out,
		colorize: shouldColorize(out),
		opts:     opts,
	}
}

func (w *wizard) run(ctx context.Context) error {
	unsubscribe := w.m.OnStatusChanged(w.onStatusChanged)
	defer unsubscribe()

	if err := w.offerRecovery(ctx); err != nil {
		return w.finish(ctx, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return w.finish(ctx, err)
		}
		var (
			done bool
			err  error
		)
		switch w.m.Route() {
		case scan.RouteLocation:
			if w.locationChosen() {
				err = w.capture(ctx)
			} else {
				err = w.chooseLocation(ctx)
			}
		case scan.RouteCapture:
			err = w.capture(ctx)
		case scan.RouteReview:
			err = w.review(ctx)
		case scan.RouteSummary:
			err = w.summary(ctx)
		case scan.RouteSuccess:
			done, err = w.success()
		}
		if err != nil || done {
			return w.finish(ctx, err)
		}
	}
}

// finish flushes the snapshot and turns quitting into a resume hint.
func (w *wizard) finish(ctx context.Context, err error) error {
	if flushErr := w.m.Flush(context.WithoutCancel(ctx)); flushErr != nil && err == nil {
		err = flushErr
	}
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		if w.m.HasRecoverableSession(context.WithoutCancel(ctx)) {
			fmt.Fprintln(w.out, "Session saved. Resume with: homebox-scan scan --resume")
		}
		return nil
	}
	return err
}

func (w *wizard) onStatusChanged(change workflow.StatusChange) {
	switch change.To {
	case scan.StatusAnalyzing:
		w.status("Analysis", statusInfo, "analyzing photos...")
	case scan.StatusSubmitting:
		w.status("Homebox", statusInfo, "creating items...")
	}
}

func (w *wizard) status(label string, kind statusKind, message string) {
	fmt.Fprintln(w.out, renderStatusLine(label, kind, message, w.colorize))
}

func (w *wizard) section(title string) {
	fmt.Fprintln(w.out)
	for _, line := range renderSectionHeader(title, w.colorize) {
		fmt.Fprintln(w.out, line)
	}
}

func (w *wizard) offerRecovery(ctx context.Context) error {
	summary, ok := w.m.RecoverySummary(ctx)
	if !ok {
		if w.opts.resume {
			w.status("Session", statusWarn, "no saved session to resume")
		}
		return nil
	}
	description := fmt.Sprintf("%s, %d item(s), saved %s",
		fallback(summary.LocationName(), "no location"),
		summary.ItemCount(),
		summary.SavedAt.Local().Format(time.DateTime),
	)

	resume := w.opts.resume
	if !resume && !w.opts.yes {
		var err error
		resume, err = w.prompt.confirm(fmt.Sprintf("Resume previous session (%s)?", description), true)
		if err != nil {
			return err
		}
	}
	if !resume {
		w.m.ClearPersistedSession()
		w.status("Session", statusInfo, "previous session discarded")
		return nil
	}
	if !w.m.Recover(ctx) {
		w.m.ClearPersistedSession()
		w.status("Session", statusWarn, "saved session could not be restored; starting fresh")
		return nil
	}
	w.status("Session", statusOK, "resumed "+description)
	if summary.Reached == scan.StatusSessionExpired || summary.Reached == scan.StatusSubmissionFailed {
		w.status("Session", statusWarn, "some items were not created; choose retry on the summary")
	}
	return nil
}

// locationChosen reports whether a location is set and photos are next.
// location_selected still routes to the location page, so the wizard
// moves on itself.
func (w *wizard) locationChosen() bool {
	state := w.m.State()
	return state.Status == scan.StatusLocationSelected && state.Location != nil
}

func (w *wizard) chooseLocation(ctx context.Context) error {
	locations, err := w.locations(ctx)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		return errors.New("homebox has no locations; create one first")
	}

	var chosen scan.Location
	if query := strings.TrimSpace(w.opts.location); query != "" {
		loc, ok := matchLocation(locations, query)
		if !ok {
			return fmt.Errorf("location %q not found; list them with: homebox-scan locations", query)
		}
		chosen = loc
		w.opts.location = ""
	} else {
		if w.opts.yes {
			return errors.New("--location is required with --yes")
		}
		w.section("Locations")
		rows := make([][]string, 0, len(locations))
		for i, loc := range locations {
			rows = append(rows, []string{strconv.Itoa(i + 1), loc.Path})
		}
		fmt.Fprintln(w.out, renderTable([]string{"#", "Location"}, rows, []columnAlignment{alignRight, alignLeft}))
		n, err := w.prompt.number("Location number:", len(locations))
		if err != nil {
			return err
		}
		chosen = locations[n-1]
	}

	if err := w.m.SetLocation(chosen); err != nil {
		return err
	}
	w.status("Location", statusOK, fallback(chosen.Path, chosen.Name))

	if parentID := strings.TrimSpace(w.opts.parent); parentID != "" {
		w.opts.parent = ""
		item, err := w.getItem(ctx, parentID)
		if err != nil {
			return fmt.Errorf("look up parent item: %w", err)
		}
		if err := w.m.SetParentItem(scan.ParentItem{ID: item.ID, Name: item.Name}); err != nil {
			return err
		}
		w.status("Parent", statusOK, item.Name)
	}
	return nil
}

func (w *wizard) locations(ctx context.Context) ([]scan.Location, error) {
	token, err := w.rt.inventory.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := w.rt.inventory.client.LocationTree(ctx, token)
	if err != nil {
		return nil, err
	}
	return homebox.FlattenTree(tree), nil
}

func (w *wizard) getItem(ctx context.Context, id string) (homebox.Item, error) {
	token, err := w.rt.inventory.tokens.Token(ctx)
	if err != nil {
		return homebox.Item{}, err
	}
	return w.rt.inventory.client.GetItem(ctx, token, id)
}

// matchLocation finds a location by id, then by name or full path.
func matchLocation(locations []scan.Location, query string) (scan.Location, bool) {
	for _, loc := range locations {
		if loc.ID == query {
			return loc, true
		}
	}
	for _, loc := range locations {
		if strings.EqualFold(loc.Name, query) || strings.EqualFold(loc.Path, query) {
			return loc, true
		}
	}
	return scan.Location{}, false
}

func (w *wizard) capture(ctx context.Context) error {
	state := w.m.State()
	if state.Status == scan.StatusPartialAnalysis {
		return w.partialAnalysis(ctx, state)
	}

	switch {
	case !w.photosAdded && len(w.opts.photos) > 0:
		w.photosAdded = true
		for _, path := range w.opts.photos {
			if err := w.addPhoto(path); err != nil {
				return err
			}
		}
	case w.opts.yes && len(state.Images) == 0:
		return errors.New("no photos to analyze; pass photo paths as arguments")
	case !w.opts.yes:
		if err := w.askPhotos(len(state.Images)); err != nil {
			return err
		}
	}

	report, err := w.m.Analyze(ctx)
	if err != nil {
		if errors.Is(err, workflow.ErrAnalysisFailed) && !w.opts.yes {
			w.status("Analysis", statusError, err.Error())
			return nil
		}
		return err
	}
	kind := statusOK
	if report.Failed > 0 {
		kind = statusWarn
	}
	w.status("Analysis", kind, fmt.Sprintf("%d item(s) found, %d of %d photo(s) failed", report.Detected, report.Failed, report.Analyzed))
	return nil
}

func (w *wizard) askPhotos(queued int) error {
	if queued > 0 {
		fmt.Fprintf(w.out, "%d photo(s) queued.\n", queued)
	}
	for {
		path, err := w.prompt.ask("Photo path (blank to analyze, q to quit):")
		if err != nil {
			return err
		}
		switch {
		case strings.EqualFold(path, "q"):
			return errQuit
		case path == "" && queued > 0:
			return nil
		case path == "":
			fmt.Fprintln(w.out, "Add at least one photo.")
		default:
			if err := w.addPhoto(path); err != nil {
				w.status("Photo", statusError, err.Error())
				continue
			}
			queued++
		}
	}
}

func (w *wizard) addPhoto(path string) error {
	file, err := loadPhoto(path)
	if err != nil {
		return err
	}
	opts := scan.CaptureOptions{SingleItem: w.opts.singleItem, Instructions: w.opts.instructions}
	if _, err := w.m.AddImage(file, opts); err != nil {
		return err
	}
	w.status("Photo", statusInfo, file.Name)
	return nil
}

func (w *wizard) partialAnalysis(ctx context.Context, state scan.State) error {
	for _, image := range state.Images {
		w.status(image.File.Name, statusError, image.AnalysisError)
	}
	if w.opts.yes {
		return w.m.ContinueReview()
	}
	for {
		answer, err := w.prompt.choice("[r]etry failed photos, [c]ontinue with found items, [q]uit:")
		if err != nil {
			return err
		}
		switch answer {
		case "r":
			_, err := w.m.RetryAnalysis(ctx)
			return err
		case "c", "":
			return w.m.ContinueReview()
		default:
			fmt.Fprintln(w.out, "Unknown choice.")
		}
	}
}

func (w *wizard) review(ctx context.Context) error {
	if w.opts.yes {
		_, err := w.m.ConfirmCurrent()
		return err
	}
	item, ok := w.m.CurrentItem()
	if !ok {
		return errors.New("no item to review")
	}
	w.printCandidate(item)

	answer, err := w.prompt.choice("[c]onfirm, [s]kip, [e]dit, [f]ix with AI, [n]ext, [p]revious, [b]ack to photos, [q]uit:")
	if err != nil {
		return err
	}
	switch answer {
	case "c", "":
		if _, err := w.m.ConfirmCurrent(); err != nil {
			if errors.Is(err, scan.ErrInvalidItem) {
				w.status("Review", statusError, err.Error())
				return nil
			}
			return err
		}
	case "s":
		return w.m.SkipItem()
	case "e":
		edited, err := w.editCandidate(item)
		if err != nil {
			return err
		}
		return w.m.UpdateCurrentItem(edited)
	case "f":
		instructions, err := w.prompt.ask("What should change?")
		if err != nil || instructions == "" {
			return err
		}
		items, err := w.m.CorrectCurrentItem(ctx, instructions)
		if err != nil {
			w.status("Correction", statusError, err.Error())
			return nil
		}
		w.status("Correction", statusOK, fmt.Sprintf("replaced with %d item(s)", len(items)))
	case "n":
		_, err := w.m.NextItem()
		return err
	case "p":
		_, err := w.m.PreviousItem()
		return err
	case "b":
		return w.m.BackToCapture()
	default:
		fmt.Fprintln(w.out, "Unknown choice.")
	}
	return nil
}

func (w *wizard) printCandidate(item scan.CandidateItem) {
	state := w.m.State()
	w.section(fmt.Sprintf("Item %d of %d", state.ReviewIndex+1, len(state.Detected)))
	rows := [][]string{
		{"Name", item.Name},
		{"Quantity", strconv.Itoa(item.Quantity)},
	}
	if item.Description != "" {
		rows = append(rows, []string{"Description", item.Description})
	}
	if len(item.LabelIDs) > 0 {
		rows = append(rows, []string{"Labels", w.labelNames(item.LabelIDs)})
	}
	ext := item.Extended
	for _, field := range [][2]string{
		{"Manufacturer", ext.Manufacturer},
		{"Model", ext.ModelNumber},
		{"Serial", ext.SerialNumber},
		{"Purchased from", ext.PurchaseFrom},
		{"Notes", ext.Notes},
	} {
		if field[1] != "" {
			rows = append(rows, []string{field[0], field[1]})
		}
	}
	if ext.PurchasePrice > 0 {
		rows = append(rows, []string{"Price", strconv.FormatFloat(ext.PurchasePrice, 'f', 2, 64)})
	}
	if item.SourceFile != nil {
		if url, err := w.m.PreviewURL(*item.SourceFile); err == nil {
			rows = append(rows, []string{"Photo", url})
		}
	}
	fmt.Fprintln(w.out, renderTable([]string{"Field", "Value"}, rows, nil))
	if item.Duplicate != nil {
		w.status("Duplicate", statusWarn, fmt.Sprintf("serial %s matches existing item %q", item.Duplicate.SerialNumber, item.Duplicate.ItemName))
	}
}

func (w *wizard) labelNames(ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		for _, label := range w.rt.labels {
			if label.ID == id {
				name = label.Name
				break
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func (w *wizard) editCandidate(item scan.CandidateItem) (scan.CandidateItem, error) {
	name, err := w.prompt.edit("Name", item.Name)
	if err != nil {
		return item, err
	}
	quantity, err := w.prompt.edit("Quantity", strconv.Itoa(item.Quantity))
	if err != nil {
		return item, err
	}
	description, err := w.prompt.edit("Description", item.Description)
	if err != nil {
		return item, err
	}
	item.Name = name
	item.Description = description
	if n, err := strconv.Atoi(quantity); err == nil {
		item.Quantity = n
	} else {
		w.status("Quantity", statusWarn, "not a number; kept "+strconv.Itoa(item.Quantity))
	}
	return item, nil
}

func (w *wizard) summary(ctx context.Context) error {
	state := w.m.State()
	w.printConfirmed(state)

	switch state.Status {
	case scan.StatusConfirming:
		if w.opts.yes {
			return w.submit(ctx, false)
		}
		answer, err := w.prompt.choice("[s]ubmit, [m]ore photos, [e]xtra photos, [t]humbnail, [d]etails, [g]roup items, [r]emove an item, [q]uit:")
		if err != nil {
			return err
		}
		switch answer {
		case "s", "":
			return w.submit(ctx, false)
		case "m":
			return w.m.CaptureMore()
		case "e":
			return w.attachPhotos(state)
		case "t":
			return w.setThumbnail(state)
		case "d":
			return w.analyzeDetails(ctx, state)
		case "g":
			return w.mergeItems(ctx, state)
		case "r":
			return w.removeConfirmed(state)
		default:
			fmt.Fprintln(w.out, "Unknown choice.")
		}
	case scan.StatusSubmissionFailed:
		if w.opts.yes {
			return fmt.Errorf("%d item(s) were not fully created; run homebox-scan scan --resume to retry", countUnfinished(w.m.ItemStatuses()))
		}
		answer, err := w.prompt.choice("[r]etry failed items, [q]uit:")
		if err != nil {
			return err
		}
		if answer == "r" || answer == "" {
			return w.submit(ctx, true)
		}
	case scan.StatusSessionExpired:
		w.status("Homebox", statusError, "login expired before every item was created")
		if !w.opts.yes {
			ok, err := w.prompt.confirm("Log in again and retry?", true)
			if err != nil {
				return err
			}
			if !ok {
				return errQuit
			}
		} else if w.relogged {
			return errors.New("homebox login keeps expiring; check credentials")
		}
		if _, err := w.rt.inventory.tokens.Login(ctx); err != nil {
			return fmt.Errorf("homebox login: %w", err)
		}
		w.relogged = true
		return w.submit(ctx, true)
	default:
		return fmt.Errorf("unexpected status %s", state.Status)
	}
	return nil
}

func (w *wizard) submit(ctx context.Context, retry bool) error {
	var (
		outcome scan.Outcome
		err     error
	)
	if retry {
		outcome, err = w.m.RetryFailed(ctx)
	} else {
		outcome, err = w.m.SubmitAll(ctx)
	}
	if errors.Is(err, submission.ErrNothingToSubmit) && !w.opts.yes {
		w.status("Homebox", statusWarn, "no confirmed items; add more photos first")
		return nil
	}
	if err != nil {
		return err
	}
	kind := statusOK
	if !outcome.Success {
		kind = statusWarn
	}
	w.status("Homebox", kind, fmt.Sprintf("created %d, partial %d, failed %d", outcome.SuccessCount, outcome.PartialSuccessCount, outcome.FailCount))
	return nil
}

func (w *wizard) removeConfirmed(state scan.State) error {
	if len(state.Confirmed) == 0 {
		return nil
	}
	n, err := w.prompt.number("Item number to remove:", len(state.Confirmed))
	if err != nil {
		return err
	}
	return w.m.RemoveConfirmedItem(state.Confirmed[n-1].ID)
}

// pickConfirmed asks for an item on the summary list.
func (w *wizard) pickConfirmed(state scan.State, question string) (scan.ConfirmedItem, bool, error) {
	if len(state.Confirmed) == 0 {
		return scan.ConfirmedItem{}, false, nil
	}
	n, err := w.prompt.number(question, len(state.Confirmed))
	if err != nil {
		return scan.ConfirmedItem{}, false, err
	}
	return state.Confirmed[n-1], true, nil
}

// askFiles reads photo paths until a blank answer.
func (w *wizard) askFiles(question string) ([]scan.File, error) {
	var files []scan.File
	for {
		path, err := w.prompt.ask(question)
		if err != nil {
			return nil, err
		}
		if path == "" {
			return files, nil
		}
		file, err := loadPhoto(path)
		if err != nil {
			w.status("Photo", statusError, err.Error())
			continue
		}
		files = append(files, file)
	}
}

func (w *wizard) attachPhotos(state scan.State) error {
	item, ok, err := w.pickConfirmed(state, "Item number to add photos to:")
	if err != nil || !ok {
		return err
	}
	files, err := w.askFiles("Photo path (blank when done):")
	if err != nil || len(files) == 0 {
		return err
	}
	item.AdditionalImages = append(item.AdditionalImages, files...)
	if err := w.m.UpdateConfirmedItem(item); err != nil {
		return err
	}
	w.status(item.Name, statusOK, fmt.Sprintf("%d extra photo(s)", len(item.AdditionalImages)))
	return nil
}

func (w *wizard) setThumbnail(state scan.State) error {
	item, ok, err := w.pickConfirmed(state, "Item number for the thumbnail:")
	if err != nil || !ok {
		return err
	}
	path, err := w.prompt.ask("Thumbnail path (blank to use the original photo):")
	if err != nil {
		return err
	}
	item.CustomThumbnail = nil
	if path != "" {
		file, err := loadPhoto(path)
		if err != nil {
			w.status("Thumbnail", statusError, err.Error())
			return nil
		}
		item.CustomThumbnail = &file
	}
	if err := w.m.UpdateConfirmedItem(item); err != nil {
		return err
	}
	if item.CustomThumbnail != nil {
		w.status(item.Name, statusOK, "thumbnail "+item.CustomThumbnail.Name)
	} else {
		w.status(item.Name, statusOK, "thumbnail from original photo")
	}
	return nil
}

func (w *wizard) analyzeDetails(ctx context.Context, state scan.State) error {
	item, ok, err := w.pickConfirmed(state, "Item number to analyze:")
	if err != nil || !ok {
		return err
	}
	files, err := w.askFiles("Extra photo path (blank to analyze):")
	if err != nil {
		return err
	}
	updated, err := w.m.AnalyzeItemDetails(ctx, item.ID, files)
	if err != nil {
		w.status(item.Name, statusError, err.Error())
		return nil
	}
	w.status(updated.Name, statusOK, "details updated")
	return nil
}

func (w *wizard) mergeItems(ctx context.Context, state scan.State) error {
	if len(state.Confirmed) < 2 {
		w.status("Group", statusWarn, "need at least two items")
		return nil
	}
	answer, err := w.prompt.ask("Item numbers to group (e.g. 1,3):")
	if err != nil {
		return err
	}
	ids, err := selectConfirmed(answer, state.Confirmed)
	if err != nil {
		w.status("Group", statusError, err.Error())
		return nil
	}
	merged, err := w.m.MergeItems(ctx, ids)
	if err != nil {
		w.status("Group", statusError, err.Error())
		return nil
	}
	w.status(merged.Name, statusOK, fmt.Sprintf("grouped %d items, qty %d", len(ids), merged.Quantity))
	return nil
}

// selectConfirmed maps 1-based item numbers separated by commas or spaces
// to item ids.
func selectConfirmed(answer string, items []scan.ConfirmedItem) ([]string, error) {
	fields := strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == ' ' })
	ids := make([]string, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(items) {
			return nil, fmt.Errorf("invalid item number %q", field)
		}
		ids = append(ids, items[n-1].ID)
	}
	return ids, nil
}

func (w *wizard) printConfirmed(state scan.State) {
	w.section("Summary: " + locationLabel(state.Location))
	statuses := w.m.ItemStatuses()
	errs := w.m.SubmissionErrors()
	rows := make([][]string, 0, len(state.Confirmed))
	for i, item := range state.Confirmed {
		status := "-"
		if s, ok := statuses[item.ID]; ok {
			status = string(s)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), item.Name, strconv.Itoa(item.Quantity), strconv.Itoa(len(item.Attachments())), status, errs[item.ID]})
	}
	fmt.Fprintln(w.out, renderTable(
		[]string{"#", "Name", "Qty", "Photos", "Status", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	if state.Parent != nil {
		w.status("Parent", statusInfo, state.Parent.Name)
	}
}

func (w *wizard) success() (bool, error) {
	state := w.m.State()
	for _, rec := range state.Submission {
		w.status(rec.Name, submissionKind(rec.Status), string(rec.Status))
	}
	w.status("Done", statusOK, fmt.Sprintf("%d item(s) added to %s", len(state.Confirmed), locationLabel(state.Location)))
	if w.opts.yes {
		return true, nil
	}
	again, err := w.prompt.confirm("Scan more items in this location?", false)
	if err != nil || !again {
		return true, nil
	}
	return false, w.m.StartNew()
}

func loadPhoto(path string) (scan.File, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return scan.File{}, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return scan.File{}, fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return scan.File{}, fmt.Errorf("photo %s is empty", expanded)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(expanded)))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if media, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = media
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return scan.File{}, fmt.Errorf("%s is not an image (%s)", expanded, mimeType)
	}
	return scan.NewFile(filepath.Base(expanded), mimeType, data), nil
}

func countUnfinished(statuses map[string]scan.SubmissionStatus) int {
	n := 0
	for _, status := range statuses {
		if status != scan.SubmissionSuccess {
			n++
		}
	}
	return n
}

func locationLabel(loc *scan.Location) string {
	if loc == nil {
		return "no location"
	}
	return fallback(loc.Path, loc.Name)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
