package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
)

type detectionResponse struct {
	Items []detectedItem `json:"items"`
	// A bare item object is accepted in place of the array.
	Name *string `json:"name"`
}

type detectedItem struct {
	Name          string       `json:"name"`
	Quantity      json.Number  `json:"quantity"`
	Description   *string      `json:"description"`
	LabelIDs      []string     `json:"labelIds"`
	TagIDs        []string     `json:"tagIds"`
	Manufacturer  *string      `json:"manufacturer"`
	ModelNumber   *string      `json:"modelNumber"`
	SerialNumber  *string      `json:"serialNumber"`
	PurchasePrice *json.Number `json:"purchasePrice"`
	PurchaseFrom  *string      `json:"purchaseFrom"`
	Notes         *string      `json:"notes"`
}

func parseItems(content string, labels []scan.Label) ([]scan.CandidateItem, error) {
	var resp detectionResponse
	if err := llm.DecodeLLMJSON(content, &resp); err != nil {
		return nil, fmt.Errorf("parse detection response: %w", err)
	}
	raw := resp.Items
	if len(raw) == 0 && resp.Name != nil {
		var single detectedItem
		if err := llm.DecodeLLMJSON(content, &single); err == nil {
			raw = []detectedItem{single}
		}
	}

	known := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		known[label.ID] = struct{}{}
	}

	items := make([]scan.CandidateItem, 0, len(raw))
	for _, entry := range raw {
		if strings.TrimSpace(entry.Name) == "" {
			continue
		}
		item := scan.CandidateItem{
			ID:          scan.NewID(),
			Name:        entry.Name,
			Quantity:    parseQuantity(entry.Quantity),
			Description: deref(entry.Description),
			LabelIDs:    filterLabels(append(entry.LabelIDs, entry.TagIDs...), known),
			Extended: scan.ExtendedFields{
				Manufacturer:  deref(entry.Manufacturer),
				ModelNumber:   deref(entry.ModelNumber),
				SerialNumber:  deref(entry.SerialNumber),
				PurchasePrice: parsePrice(entry.PurchasePrice),
				PurchaseFrom:  deref(entry.PurchaseFrom),
				Notes:         deref(entry.Notes),
			},
		}
		item.Normalize()
		items = append(items, item)
	}
	return items, nil
}

func parseQuantity(value json.Number) int {
	if value == "" {
		return 1
	}
	if n, err := value.Int64(); err == nil {
		return int(n)
	}
	if f, err := value.Float64(); err == nil {
		return int(f)
	}
	return 1
}

func parsePrice(value *json.Number) float64 {
	if value == nil {
		return 0
	}
	f, err := value.Float64()
	if err != nil || f <= 0 {
		return 0
	}
	return f
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

// filterLabels drops IDs the model invented. With no known labels every ID is dropped.
func filterLabels(ids []string, known map[string]struct{}) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// quantityGiven reports whether the first named item in content carries a
// quantity of its own.
func quantityGiven(content string) bool {
	var resp detectionResponse
	if err := llm.DecodeLLMJSON(content, &resp); err != nil {
		return false
	}
	raw := resp.Items
	if len(raw) == 0 {
		var single detectedItem
		if err := llm.DecodeLLMJSON(content, &single); err != nil {
			return false
		}
		raw = []detectedItem{single}
	}
	for _, entry := range raw {
		if strings.TrimSpace(entry.Name) != "" {
			return entry.Quantity != ""
		}
	}
	return false
}
