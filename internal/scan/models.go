package scan

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxNameLength is the inventory's limit for item names, in characters.
	MaxNameLength = 255
	// MaxDescriptionLength is the inventory's limit for item descriptions, in characters.
	MaxDescriptionLength = 1000
)

// ErrInvalidItem marks a confirmed item that fails validation.
var ErrInvalidItem = errors.New("invalid item")

// NewID returns a random identifier for images and candidates.
func NewID() string {
	return uuid.NewString()
}

// File is an opaque in-memory image. Data is excluded from JSON encoding.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// NewFile wraps image bytes in a File with a fresh identifier.
func NewFile(name, mimeType string, data []byte) File {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return File{ID: NewID(), Name: strings.TrimSpace(name), MimeType: mimeType, Data: data}
}

// Size returns the byte length of the image.
func (f File) Size() int { return len(f.Data) }

// Location identifies where confirmed items are created.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// ParentItem optionally nests new items under an existing item.
type ParentItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CaptureOptions carries per-photo hints for detection.
type CaptureOptions struct {
	SingleItem   bool   `json:"single_item,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// CapturedImage is a photo awaiting detection.
type CapturedImage struct {
	ID            string         `json:"id"`
	File          File           `json:"file"`
	TakenAt       time.Time      `json:"taken_at"`
	Options       CaptureOptions `json:"options"`
	AnalysisError string         `json:"analysis_error,omitempty"`
}

// ExtendedFields are optional attributes applied after an item is created.
type ExtendedFields struct {
	Manufacturer  string  `json:"manufacturer,omitempty"`
	ModelNumber   string  `json:"model_number,omitempty"`
	SerialNumber  string  `json:"serial_number,omitempty"`
	PurchasePrice float64 `json:"purchase_price,omitempty"`
	PurchaseFrom  string  `json:"purchase_from,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// IsZero reports whether no extended field is set.
func (e ExtendedFields) IsZero() bool {
	return e == ExtendedFields{}
}

// DuplicateMatch is an advisory hint that an existing item shares a serial number.
type DuplicateMatch struct {
	ItemID       string `json:"item_id"`
	ItemName     string `json:"item_name"`
	LocationName string `json:"location_name,omitempty"`
	SerialNumber string `json:"serial_number"`
}

// CandidateItem is an AI-suggested record awaiting review.
type CandidateItem struct {
	ID            string          `json:"id"`
	SourceImageID string          `json:"source_image_id"`
	SourceFile    *File           `json:"source_file,omitempty"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	Description   string          `json:"description,omitempty"`
	LabelIDs      []string        `json:"label_ids,omitempty"`
	Extended      ExtendedFields  `json:"extended"`
	Duplicate     *DuplicateMatch `json:"duplicate,omitempty"`
}

// Normalize trims text fields to the inventory limits and floors quantity at one.
func (c *CandidateItem) Normalize() {
	c.Name = truncate(strings.TrimSpace(c.Name), MaxNameLength)
	c.Description = truncate(strings.TrimSpace(c.Description), MaxDescriptionLength)
	if c.Quantity < 1 {
		c.Quantity = 1
	}
}

// Promote converts a reviewed candidate into a confirmed item.
func (c CandidateItem) Promote() ConfirmedItem {
	item := ConfirmedItem{
		ID:            c.ID,
		SourceImageID: c.SourceImageID,
		Name:          c.Name,
		Quantity:      c.Quantity,
		Description:   c.Description,
		LabelIDs:      cloneStrings(c.LabelIDs),
		Extended:      c.Extended,
		Duplicate:     c.Duplicate,
	}
	if c.SourceFile != nil {
		file := *c.SourceFile
		item.OriginalFile = &file
	}
	return item
}

// ConfirmedItem is a user-approved record ready for submission.
type ConfirmedItem struct {
	ID               string          `json:"id"`
	SourceImageID    string          `json:"source_image_id,omitempty"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity"`
	Description      string          `json:"description,omitempty"`
	LabelIDs         []string        `json:"label_ids,omitempty"`
	Extended         ExtendedFields  `json:"extended"`
	Duplicate        *DuplicateMatch `json:"duplicate,omitempty"`
	OriginalFile     *File           `json:"original_file,omitempty"`
	AdditionalImages []File          `json:"additional_images,omitempty"`
	CustomThumbnail  *File           `json:"custom_thumbnail,omitempty"`
}

// Validate enforces the confirmation rules: a non-empty name and quantity of at least one.
func (c ConfirmedItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if c.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	}
	if len([]rune(c.Name)) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidItem, MaxNameLength)
	}
	if len([]rune(c.Description)) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidItem, MaxDescriptionLength)
	}
	return nil
}

// Attachment is one image to upload for an item.
type Attachment struct {
	File    File
	Primary bool
}

// Attachments lists the images to upload, primary first. A custom thumbnail
// takes precedence over the original photo.
func (c ConfirmedItem) Attachments() []Attachment {
	out := make([]Attachment, 0, len(c.AdditionalImages)+1)
	switch {
	case c.CustomThumbnail != nil:
		out = append(out, Attachment{File: *c.CustomThumbnail, Primary: true})
	case c.OriginalFile != nil:
		out = append(out, Attachment{File: *c.OriginalFile, Primary: true})
	}
	for _, file := range c.AdditionalImages {
		out = append(out, Attachment{File: file})
	}
	return out
}

// Clone returns a copy that shares no slices with the receiver.
func (c ConfirmedItem) Clone() ConfirmedItem {
	out := c
	out.LabelIDs = cloneStrings(c.LabelIDs)
	if len(c.AdditionalImages) > 0 {
		out.AdditionalImages = append([]File(nil), c.AdditionalImages...)
	}
	if c.OriginalFile != nil {
		file := *c.OriginalFile
		out.OriginalFile = &file
	}
	if c.CustomThumbnail != nil {
		file := *c.CustomThumbnail
		out.CustomThumbnail = &file
	}
	if c.Duplicate != nil {
		dup := *c.Duplicate
		out.Duplicate = &dup
	}
	return out
}

// Clone returns a copy that shares no slices with the receiver.
func (c CandidateItem) Clone() CandidateItem {
	out := c
	out.LabelIDs = cloneStrings(c.LabelIDs)
	if c.SourceFile != nil {
		file := *c.SourceFile
		out.SourceFile = &file
	}
	if c.Duplicate != nil {
		dup := *c.Duplicate
		out.Duplicate = &dup
	}
	return out
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit]))
}
