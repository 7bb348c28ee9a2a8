// Package review holds the ordered candidate list and the cursor the user
// walks while confirming or skipping detections.
//
// The Pipeline is the only mutator of the candidate list. Every Skip or
// Confirm removes exactly one candidate and keeps the cursor in range;
// callers learn that the list drained from the returned flag rather than
// by inspecting the list themselves.
package review

import (
	"errors"
	"fmt"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

var (
	// ErrEmpty is returned when an operation needs a current candidate and there is none.
	ErrEmpty = errors.New("review: no candidates")
	// ErrStaleItem is returned when a confirm or edit targets a candidate other than the current one.
	ErrStaleItem = errors.New("review: item is not the current candidate")
)

// Pipeline is an ordered list of candidates with a clamped cursor. It is
// not safe for concurrent use; the workflow machine serialises access.
type Pipeline struct {
	items []scan.CandidateItem
	index int
}

// New builds a pipeline over a copy of items with the cursor clamped into range.
func New(items []scan.CandidateItem, index int) *Pipeline {
	p := &Pipeline{items: cloneItems(items)}
	p.index = p.clamp(index)
	return p
}

// Items returns a copy of the remaining candidates.
func (p *Pipeline) Items() []scan.CandidateItem { return cloneItems(p.items) }

// Len returns the number of remaining candidates.
func (p *Pipeline) Len() int { return len(p.items) }

// Index returns the cursor. It is zero when the pipeline is empty.
func (p *Pipeline) Index() int { return p.index }

// Current returns the candidate under the cursor.
func (p *Pipeline) Current() (scan.CandidateItem, bool) {
	if len(p.items) == 0 {
		return scan.CandidateItem{}, false
	}
	return p.items[p.index].Clone(), true
}

// Next advances the cursor. It reports whether the cursor moved.
func (p *Pipeline) Next() bool {
	if p.index+1 >= len(p.items) {
		return false
	}
	p.index++
	return true
}

// Previous moves the cursor back. It reports whether the cursor moved.
func (p *Pipeline) Previous() bool {
	if p.index == 0 {
		return false
	}
	p.index--
	return true
}

// Skip discards the current candidate and reports whether the list drained.
func (p *Pipeline) Skip() (bool, error) {
	if len(p.items) == 0 {
		return false, ErrEmpty
	}
	p.removeCurrent()
	return len(p.items) == 0, nil
}

// Confirm validates edited, removes the current candidate and returns the
// confirmed item along with whether the list drained. edited must carry the
// current candidate's ID. A missing original file or source image is filled
// in from the candidate. Nothing changes when validation fails.
func (p *Pipeline) Confirm(edited scan.ConfirmedItem) (scan.ConfirmedItem, bool, error) {
	current, ok := p.Current()
	if !ok {
		return scan.ConfirmedItem{}, false, ErrEmpty
	}
	if edited.ID != current.ID {
		return scan.ConfirmedItem{}, false, fmt.Errorf("%w: got %q, current %q", ErrStaleItem, edited.ID, current.ID)
	}
	confirmed := edited.Clone()
	if confirmed.SourceImageID == "" {
		confirmed.SourceImageID = current.SourceImageID
	}
	if confirmed.OriginalFile == nil && current.SourceFile != nil {
		file := *current.SourceFile
		confirmed.OriginalFile = &file
	}
	if err := confirmed.Validate(); err != nil {
		return scan.ConfirmedItem{}, false, err
	}
	p.removeCurrent()
	return confirmed, len(p.items) == 0, nil
}

// SetCurrent replaces the current candidate with an edited copy. Edits are
// not validated until confirmation.
func (p *Pipeline) SetCurrent(edited scan.CandidateItem) error {
	if len(p.items) == 0 {
		return ErrEmpty
	}
	if edited.ID != p.items[p.index].ID {
		return fmt.Errorf("%w: got %q, current %q", ErrStaleItem, edited.ID, p.items[p.index].ID)
	}
	p.items[p.index] = edited.Clone()
	return nil
}

// Replace swaps the current candidate for replacements, keeping the cursor
// on the first replacement. Replacements inherit the source image and file
// when they do not carry their own.
func (p *Pipeline) Replace(replacements []scan.CandidateItem) error {
	if len(p.items) == 0 {
		return ErrEmpty
	}
	if len(replacements) == 0 {
		return errors.New("review: replace requires at least one item")
	}
	current := p.items[p.index]
	fresh := make([]scan.CandidateItem, 0, len(replacements))
	for _, item := range replacements {
		item = item.Clone()
		if item.ID == "" {
			item.ID = scan.NewID()
		}
		if item.SourceImageID == "" {
			item.SourceImageID = current.SourceImageID
		}
		if item.SourceFile == nil && current.SourceFile != nil {
			file := *current.SourceFile
			item.SourceFile = &file
		}
		fresh = append(fresh, item)
	}
	out := make([]scan.CandidateItem, 0, len(p.items)-1+len(fresh))
	out = append(out, p.items[:p.index]...)
	out = append(out, fresh...)
	out = append(out, p.items[p.index+1:]...)
	p.items = out
	return nil
}

func (p *Pipeline) removeCurrent() {
	p.items = append(p.items[:p.index], p.items[p.index+1:]...)
	p.index = p.clamp(p.index)
}

func (p *Pipeline) clamp(index int) int {
	if index >= len(p.items) {
		index = len(p.items) - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

func cloneItems(items []scan.CandidateItem) []scan.CandidateItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]scan.CandidateItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
