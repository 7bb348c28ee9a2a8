package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

var (
	// ErrNoImages is returned when analysis is requested without photos.
	ErrNoImages = errors.New("no images to analyze")
	// ErrAnalysisInProgress is returned while a detection pass is running.
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	// ErrAnalysisFailed is returned when no photo produced any item.
	ErrAnalysisFailed = errors.New("analysis failed for every image")
	// ErrAnalysisDiscarded is returned when the wizard was reset while photos
	// were being analyzed.
	ErrAnalysisDiscarded = errors.New("analysis discarded after reset")
	// ErrNothingDetected marks a photo in which the detector found no items.
	ErrNothingDetected = errors.New("no items detected")
)

// AnalysisReport summarizes one detection pass.
type AnalysisReport struct {
	Analyzed int
	Failed   int
	Detected int
	Status   scan.Status
}

// AddImage queues a photo for detection. Adding the first photo after
// choosing a location starts capture.
func (m *Machine) AddImage(file scan.File, opts scan.CaptureOptions) (scan.CapturedImage, error) {
	if err := m.lock(); err != nil {
		return scan.CapturedImage{}, err
	}
	defer m.unlock()
	if err := m.requireLocked("AddImage", scan.StatusLocationSelected, scan.StatusCapturing, scan.StatusPartialAnalysis); err != nil {
		return scan.CapturedImage{}, err
	}
	if len(file.Data) == 0 {
		return scan.CapturedImage{}, services.Wrap(services.ErrValidation, "capture", "AddImage", "image is empty", nil)
	}
	if file.ID == "" {
		file.ID = scan.NewID()
	}
	opts.Instructions = strings.TrimSpace(opts.Instructions)
	image := scan.CapturedImage{
		ID:      scan.NewID(),
		File:    file,
		TakenAt: m.now(),
		Options: opts,
	}
	m.state.Images = append(m.state.Images, image)
	if m.state.Status == scan.StatusLocationSelected {
		m.setStatusLocked(scan.StatusCapturing)
	}
	m.commitLocked()
	return image, nil
}

// RemoveImage drops a queued photo. Removing the last failed photo after a
// partial analysis continues to review.
func (m *Machine) RemoveImage(id string) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("RemoveImage", scan.StatusCapturing, scan.StatusPartialAnalysis); err != nil {
		return err
	}
	idx := -1
	for i, image := range m.state.Images {
		if image.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: image %s", ErrItemNotFound, id)
	}
	m.state.Images = append(m.state.Images[:idx], m.state.Images[idx+1:]...)
	if m.state.Status == scan.StatusPartialAnalysis && len(m.state.Images) == 0 {
		m.enterReviewLocked()
	}
	m.commitLocked()
	return nil
}

// Analyze runs detection over every queued photo. The wizard moves to
// reviewing when all photos succeed, to partial analysis when some fail,
// and back to capturing with ErrAnalysisFailed when none produce items.
func (m *Machine) Analyze(ctx context.Context) (AnalysisReport, error) {
	if err := m.lock(); err != nil {
		return AnalysisReport{}, err
	}
	if m.analyzing {
		m.unlock()
		return AnalysisReport{}, ErrAnalysisInProgress
	}
	// A recovered snapshot may still say analyzing with nothing running.
	if err := m.requireLocked("Analyze", scan.StatusCapturing, scan.StatusAnalyzing); err != nil {
		m.unlock()
		return AnalysisReport{}, err
	}
	return m.analyzeLocked(ctx)
}

// RetryAnalysis re-runs detection for the photos that failed.
func (m *Machine) RetryAnalysis(ctx context.Context) (AnalysisReport, error) {
	if err := m.lock(); err != nil {
		return AnalysisReport{}, err
	}
	if m.analyzing {
		m.unlock()
		return AnalysisReport{}, ErrAnalysisInProgress
	}
	if err := m.requireLocked("RetryAnalysis", scan.StatusPartialAnalysis); err != nil {
		m.unlock()
		return AnalysisReport{}, err
	}
	return m.analyzeLocked(ctx)
}

// ContinueReview drops the photos that failed detection and reviews what was found.
func (m *Machine) ContinueReview() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("ContinueReview", scan.StatusPartialAnalysis); err != nil {
		return err
	}
	m.state.Images = nil
	m.enterReviewLocked()
	m.commitLocked()
	return nil
}

// BackToCapture discards the unreviewed candidates and returns to capture.
// Confirmed items are kept.
func (m *Machine) BackToCapture() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("BackToCapture", scan.StatusReviewing); err != nil {
		return err
	}
	m.state.Detected = nil
	m.state.ReviewIndex = 0
	m.setStatusLocked(scan.StatusCapturing)
	m.commitLocked()
	return nil
}

// CaptureMore returns from the summary to capture, keeping confirmed items.
func (m *Machine) CaptureMore() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.unlock()
	if err := m.requireLocked("CaptureMore", scan.StatusConfirming); err != nil {
		return err
	}
	m.state.Result = nil
	m.setStatusLocked(scan.StatusCapturing)
	m.commitLocked()
	return nil
}

// enterReviewLocked moves to reviewing, or straight to the summary when
// nothing is left to review.
func (m *Machine) enterReviewLocked() {
	if len(m.state.Detected) == 0 {
		m.state.ReviewIndex = 0
		m.setStatusLocked(scan.StatusConfirming)
		return
	}
	if m.state.ReviewIndex < 0 || m.state.ReviewIndex >= len(m.state.Detected) {
		m.state.ReviewIndex = 0
	}
	m.setStatusLocked(scan.StatusReviewing)
}

type detection struct {
	image scan.CapturedImage
	items []scan.CandidateItem
	err   error
}

// analyzeLocked is entered with the lock held and releases it.
func (m *Machine) analyzeLocked(ctx context.Context) (AnalysisReport, error) {
	images := append([]scan.CapturedImage(nil), m.state.Images...)
	if len(images) == 0 {
		m.unlock()
		return AnalysisReport{}, ErrNoImages
	}
	if m.deps.Detector == nil {
		m.unlock()
		return AnalysisReport{}, services.Wrap(services.ErrConfiguration, "analysis", "Analyze", "detector not configured", nil)
	}
	generation := m.generation
	m.analyzing = true
	m.state.LastError = ""
	m.setStatusLocked(scan.StatusAnalyzing)
	m.commitLocked()
	labels := m.detectionLabels()
	ctx = m.contextLocked(ctx, "analysis")
	m.unlock()

	results := make([]detection, len(images))
	var g errgroup.Group
	g.SetLimit(m.cfg.DetectionConcurrency)
	for i, image := range images {
		g.Go(func() error {
			results[i] = m.detect(ctx, image, labels)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.analyzing = false
	if m.disposed || generation != m.generation {
		m.unlock()
		return AnalysisReport{}, ErrAnalysisDiscarded
	}

	report := AnalysisReport{Analyzed: len(images)}
	failedImages := make(map[string]string)
	var errs []error
	for _, result := range results {
		if result.err != nil {
			report.Failed++
			failedImages[result.image.ID] = result.err.Error()
			errs = append(errs, result.err)
			continue
		}
		report.Detected += len(result.items)
		m.state.Detected = append(m.state.Detected, result.items...)
	}

	// Successful photos are consumed; their files now live on the candidates.
	remaining := m.state.Images[:0]
	for _, image := range m.state.Images {
		msg, failed := failedImages[image.ID]
		if !failed {
			continue
		}
		image.AnalysisError = msg
		remaining = append(remaining, image)
	}
	m.state.Images = remaining

	var outErr error
	switch {
	case len(m.state.Detected) == 0:
		outErr = fmt.Errorf("%w: %w", ErrAnalysisFailed, errors.Join(errs...))
		m.state.LastError = outErr.Error()
		m.setStatusLocked(scan.StatusCapturing)
	case report.Failed > 0:
		m.setStatusLocked(scan.StatusPartialAnalysis)
	default:
		m.enterReviewLocked()
	}
	report.Status = m.state.Status
	m.commitLocked()
	m.unlock()

	logger := logging.WithContext(ctx, m.logger)
	if outErr != nil {
		logging.WarnWithContext(logger, "analysis failed for every image", "analysis_failed",
			logging.Int("images", report.Analyzed),
			logging.Error(outErr),
			logging.String(logging.FieldErrorHint, "check the vision API key and model, then analyze again"),
			logging.String(logging.FieldImpact, "no items detected"),
		)
		m.notifyError(ctx, outErr, "photo analysis")
		return report, outErr
	}
	logger.Info("analysis complete",
		logging.Int("images", report.Analyzed),
		logging.Int("failed", report.Failed),
		logging.Int("detected", report.Detected),
	)
	return report, nil
}

// detect runs detection for one photo and annotates the results.
func (m *Machine) detect(ctx context.Context, image scan.CapturedImage, labels []scan.Label) detection {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DetectionTimeout)
	defer cancel()

	out := detection{image: image}
	items, err := m.deps.Detector.Detect(ctx, image.File, scan.OptionsFor(image, m.cfg.ExtendedFields, labels))
	if err == nil && len(items) == 0 {
		err = fmt.Errorf("%w in %s", ErrNothingDetected, imageName(image))
	}
	if err != nil {
		out.err = err
		return out
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = scan.NewID()
		}
		items[i].SourceImageID = image.ID
		file := image.File
		items[i].SourceFile = &file
		items[i].Normalize()
	}
	m.annotateDuplicates(ctx, items)
	out.items = items
	return out
}

// annotateDuplicates attaches advisory serial-number matches. Lookup
// failures never block detection.
func (m *Machine) annotateDuplicates(ctx context.Context, items []scan.CandidateItem) {
	if !m.cfg.DuplicateCheck || m.deps.Duplicates == nil {
		return
	}
	for i := range items {
		serial := strings.TrimSpace(items[i].Extended.SerialNumber)
		if serial == "" {
			continue
		}
		match, err := m.deps.Duplicates.CheckSerial(ctx, serial)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "duplicate check failed", "duplicate_check_failed",
				logging.String("item", items[i].Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "possible duplicate not flagged"),
			)
			continue
		}
		items[i].Duplicate = match
	}
}

func (m *Machine) detectionLabels() []scan.Label {
	if !m.cfg.SuggestLabels {
		return nil
	}
	return m.deps.Labels
}

func imageName(image scan.CapturedImage) string {
	if image.File.Name != "" {
		return image.File.Name
	}
	return image.ID
}
