package homebox

import (
	"context"
	"strings"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

// Inventory adapts Client to the submission engine's item steps.
type Inventory struct {
	client *Client
}

// NewInventory wraps client.
func NewInventory(client *Client) *Inventory {
	return &Inventory{client: client}
}

// CreateItem creates item under location and, when set, parent. It returns
// the new item's ID.
func (i *Inventory) CreateItem(ctx context.Context, token string, item scan.ConfirmedItem, location scan.Location, parent *scan.ParentItem) (string, error) {
	payload := ItemCreate{
		Name:        strings.TrimSpace(item.Name),
		Description: strings.TrimSpace(item.Description),
		Quantity:    item.Quantity,
		LocationID:  location.ID,
		LabelIDs:    item.LabelIDs,
	}
	if parent != nil {
		payload.ParentID = parent.ID
	}
	created, err := i.client.CreateItem(ctx, token, payload)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// ApplyDetails writes the extended fields onto an existing item. The update
// endpoint replaces the whole record, so the current item is read first.
func (i *Inventory) ApplyDetails(ctx context.Context, token, itemID string, item scan.ConfirmedItem) error {
	current, err := i.client.GetItem(ctx, token, itemID)
	if err != nil {
		return err
	}
	update := ItemUpdate{
		ID:            itemID,
		Name:          current.Name,
		Description:   current.Description,
		Quantity:      current.Quantity,
		LabelIDs:      make([]string, 0, len(current.Labels)),
		Manufacturer:  item.Extended.Manufacturer,
		ModelNumber:   item.Extended.ModelNumber,
		SerialNumber:  item.Extended.SerialNumber,
		PurchasePrice: item.Extended.PurchasePrice,
		PurchaseFrom:  item.Extended.PurchaseFrom,
		Notes:         item.Extended.Notes,
	}
	if current.Location != nil {
		update.LocationID = current.Location.ID
	}
	if current.Parent != nil {
		update.ParentID = current.Parent.ID
	}
	for _, label := range current.Labels {
		if label.ID != "" {
			update.LabelIDs = append(update.LabelIDs, label.ID)
		}
	}
	_, err = i.client.UpdateItem(ctx, token, itemID, update)
	return err
}

// UploadAttachment uploads one image to itemID.
func (i *Inventory) UploadAttachment(ctx context.Context, token, itemID string, attachment scan.Attachment) error {
	return i.client.UploadAttachment(ctx, token, itemID, attachment.File, attachment.Primary)
}
