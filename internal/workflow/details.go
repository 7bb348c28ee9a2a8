package workflow

import (
	"context"
	"fmt"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/review"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
)

var editableStatuses = []scan.Status{scan.StatusConfirming, scan.StatusSubmissionFailed, scan.StatusSessionExpired}

// AnalyzeItemDetails sends the confirmed item's photos plus files to the
// analyzer and fills in whatever it could read. files are kept as extra
// photos of the item.
func (m *Machine) AnalyzeItemDetails(ctx context.Context, itemID string, files []scan.File) (scan.ConfirmedItem, error) {
	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	item, err := m.editableItemLocked("AnalyzeItemDetails", itemID)
	if err != nil {
		m.unlock()
		return scan.ConfirmedItem{}, err
	}
	photos := append(itemPhotos(item), files...)
	if len(photos) == 0 {
		m.unlock()
		return scan.ConfirmedItem{}, services.Wrap(services.ErrValidation, "review", "AnalyzeItemDetails", "at least one photo is required", nil)
	}
	generation := m.generation
	ctx = services.WithItemID(m.contextLocked(ctx, "review"), item.ID)
	m.unlock()

	details, err := m.deps.Analyzer.AnalyzeDetails(ctx, item, photos)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "item analysis failed", "item_analysis_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item left unchanged"),
		)
		return scan.ConfirmedItem{}, err
	}
	details.Normalize()

	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	defer m.unlock()
	if generation != m.generation {
		return scan.ConfirmedItem{}, fmt.Errorf("%w: wizard changed during analysis", review.ErrStaleItem)
	}
	current, err := m.editableItemLocked("AnalyzeItemDetails", itemID)
	if err != nil {
		return scan.ConfirmedItem{}, err
	}
	applyDetails(&current, details)
	current.AdditionalImages = append(current.AdditionalImages, files...)
	if err := current.Validate(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	m.state.Confirmed[m.confirmedIndexLocked(itemID)] = current
	m.commitLocked()
	return current.Clone(), nil
}

// MergeItems replaces the confirmed items ids with one record from the
// analyzer. The merged item takes the first item's place and keeps the first
// item's photo; distinct photos of the others become extra photos.
func (m *Machine) MergeItems(ctx context.Context, ids []string) (scan.ConfirmedItem, error) {
	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	if len(ids) < 2 {
		m.unlock()
		return scan.ConfirmedItem{}, services.Wrap(services.ErrValidation, "review", "MergeItems", "at least two items are required", nil)
	}
	items := make([]scan.ConfirmedItem, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			m.unlock()
			return scan.ConfirmedItem{}, services.Wrap(services.ErrValidation, "review", "MergeItems", "item listed twice: "+id, nil)
		}
		seen[id] = struct{}{}
		item, err := m.editableItemLocked("MergeItems", id)
		if err != nil {
			m.unlock()
			return scan.ConfirmedItem{}, err
		}
		items = append(items, item)
	}
	generation := m.generation
	ctx = m.contextLocked(ctx, "review")
	m.unlock()

	merged, err := m.deps.Analyzer.Merge(ctx, items)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "item merge failed", "item_merge_failed",
			logging.Error(err),
			logging.Int("item_count", len(items)),
			logging.String(logging.FieldImpact, "items left unchanged"),
		)
		return scan.ConfirmedItem{}, err
	}
	merged.Normalize()

	if err := m.lock(); err != nil {
		return scan.ConfirmedItem{}, err
	}
	defer m.unlock()
	if generation != m.generation {
		return scan.ConfirmedItem{}, fmt.Errorf("%w: wizard changed during merge", review.ErrStaleItem)
	}
	for _, id := range ids {
		if _, err := m.editableItemLocked("MergeItems", id); err != nil {
			return scan.ConfirmedItem{}, err
		}
	}

	first := items[0]
	out := scan.ConfirmedItem{
		ID:              scan.NewID(),
		SourceImageID:   first.SourceImageID,
		Name:            merged.Name,
		Quantity:        merged.Quantity,
		Description:     merged.Description,
		LabelIDs:        merged.LabelIDs,
		Extended:        merged.Extended,
		OriginalFile:    first.OriginalFile,
		CustomThumbnail: first.CustomThumbnail,
	}
	if out.Extended.IsZero() {
		out.Extended = first.Extended
	}
	held := make(map[string]struct{})
	for _, item := range items {
		for _, photo := range itemPhotos(item) {
			if _, ok := held[photo.ID]; ok {
				continue
			}
			held[photo.ID] = struct{}{}
			if out.OriginalFile == nil || photo.ID != out.OriginalFile.ID {
				out.AdditionalImages = append(out.AdditionalImages, photo)
			}
		}
	}
	if err := out.Validate(); err != nil {
		return scan.ConfirmedItem{}, err
	}

	kept := make([]scan.ConfirmedItem, 0, len(m.state.Confirmed)-len(ids)+1)
	for _, item := range m.state.Confirmed {
		switch _, merging := seen[item.ID]; {
		case item.ID == first.ID:
			kept = append(kept, out)
		case merging:
		default:
			kept = append(kept, item)
		}
	}
	m.state.Confirmed = kept
	for _, id := range ids {
		m.engine.Forget(id)
	}
	m.state.Submission = m.engine.Records()
	m.commitLocked()
	logging.WithContext(ctx, m.logger).Info("items merged",
		logging.Int("item_count", len(ids)),
		logging.String("item", out.Name),
	)
	return out.Clone(), nil
}

// editableItemLocked returns the confirmed item id when the summary allows
// edits and nothing of it reached the inventory yet.
func (m *Machine) editableItemLocked(op, id string) (scan.ConfirmedItem, error) {
	if err := m.requireLocked(op, editableStatuses...); err != nil {
		return scan.ConfirmedItem{}, err
	}
	if m.deps.Analyzer == nil {
		return scan.ConfirmedItem{}, services.Wrap(services.ErrConfiguration, "review", op, "analyzer not configured", nil)
	}
	idx := m.confirmedIndexLocked(id)
	if idx < 0 {
		return scan.ConfirmedItem{}, fmt.Errorf("%w: confirmed item %s", ErrItemNotFound, id)
	}
	item := m.state.Confirmed[idx]
	switch m.itemStatusesLocked()[id] {
	case scan.SubmissionSuccess, scan.SubmissionPartialSuccess:
		return scan.ConfirmedItem{}, fmt.Errorf("%w: %q is already in the inventory", ErrInvalidTransition, item.Name)
	}
	return item.Clone(), nil
}

// itemPhotos lists every image held by item, thumbnail excluded.
func itemPhotos(item scan.ConfirmedItem) []scan.File {
	var out []scan.File
	if item.OriginalFile != nil {
		out = append(out, *item.OriginalFile)
	}
	return append(out, item.AdditionalImages...)
}

// applyDetails overwrites the fields the analyzer filled. The name the user
// confirmed is kept.
func applyDetails(item *scan.ConfirmedItem, details scan.CandidateItem) {
	if details.Description != "" {
		item.Description = details.Description
	}
	if len(details.LabelIDs) > 0 {
		item.LabelIDs = details.LabelIDs
	}
	ext := details.Extended
	if ext.Manufacturer != "" {
		item.Extended.Manufacturer = ext.Manufacturer
	}
	if ext.ModelNumber != "" {
		item.Extended.ModelNumber = ext.ModelNumber
	}
	if ext.SerialNumber != "" {
		item.Extended.SerialNumber = ext.SerialNumber
	}
	if ext.PurchasePrice > 0 {
		item.Extended.PurchasePrice = ext.PurchasePrice
	}
	if ext.PurchaseFrom != "" {
		item.Extended.PurchaseFrom = ext.PurchaseFrom
	}
	if ext.Notes != "" {
		item.Extended.Notes = ext.Notes
	}
}
