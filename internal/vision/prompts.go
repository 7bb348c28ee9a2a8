package vision

import (
	"fmt"
	"strings"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

const itemSchema = `OUTPUT SCHEMA - return {"items": [...]} where each item has:
- name: short title, most identifying word first (max 255 characters)
- quantity: integer count of identical units (minimum 1)
- description: one or two sentences on condition and notable features (max 1000 characters)
- labelIds: array of matching label IDs`

const extendedSchema = `
EXTENDED FIELDS - include only when clearly visible, otherwise null:
- manufacturer: brand or maker
- modelNumber: model or part number
- serialNumber: serial number printed on the item
- purchasePrice: number without currency symbol
- purchaseFrom: store or seller
- notes: anything else worth recording`

const namingExamples = `Examples: "Hammer, Claw 16oz", "Cable, USB-C 2m", "Batteries, AA Alkaline".`

func criticalConstraints(singleItem bool) string {
	if singleItem {
		return "CRITICAL: treat everything in the photo as ONE item. Return exactly one entry in items, quantity 1 unless the user says otherwise."
	}
	return "CRITICAL: list each distinct object as its own item. Group identical objects into one item with a quantity."
}

func labelPrompt(labels []scan.Label) string {
	if len(labels) == 0 {
		return "No labels are available; return an empty labelIds array."
	}
	var b strings.Builder
	b.WriteString("LABELS - assign only IDs from this list:\n")
	for _, label := range labels {
		fmt.Fprintf(&b, "- %s: %s\n", label.ID, label.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func detectionSystemPrompt(opts scan.DetectOptions) string {
	parts := []string{
		"You are an inventory assistant cataloguing household items from photos. Respond with JSON only.",
		criticalConstraints(opts.SingleItem),
		itemSchema,
	}
	if opts.ExtendedFields {
		parts = append(parts, extendedSchema)
	}
	parts = append(parts, namingExamples, labelPrompt(opts.Labels))
	return strings.Join(parts, "\n\n")
}

func detectionUserPrompt(opts scan.DetectOptions) string {
	var b strings.Builder
	if opts.SingleItem {
		b.WriteString("Identify the single item in this photo.")
	} else {
		b.WriteString("Identify every item in this photo.")
	}
	if hint := strings.TrimSpace(opts.Instructions); hint != "" {
		fmt.Fprintf(&b, "\n\nUser hint: %q", hint)
	}
	if opts.ExtendedFields {
		b.WriteString("\n\nInclude extended fields where visible.")
	}
	return b.String()
}

func correctionSystemPrompt(labels []scan.Label) string {
	return strings.Join([]string{
		"You are an inventory assistant correcting item detection errors. Return a JSON object with an `items` array.",
		"CORRECTION RULES:\n- 'separate items' means return multiple items in the array\n- a name or description fix means return one corrected item\n- map price to purchasePrice, store to purchaseFrom, brand to manufacturer\n- always verify against the image",
		itemSchema,
		extendedSchema,
		namingExamples,
		labelPrompt(labels),
	}, "\n\n")
}

func correctionUserPrompt(item scan.CandidateItem, instructions string) string {
	summary := fmt.Sprintf("Current: %s (qty: %d)", item.Name, item.Quantity)
	if item.Extended.Manufacturer != "" {
		summary += ", mfr: " + item.Extended.Manufacturer
	}
	return fmt.Sprintf("%s\n\nUser correction: %q\n\nApply the correction and return JSON with corrected item(s).", summary, strings.TrimSpace(instructions))
}

func analysisSystemPrompt(labels []scan.Label) string {
	return strings.Join([]string{
		"You are an inventory assistant extracting details about ONE item from several photos of it. Respond with JSON only.",
		criticalConstraints(true),
		itemSchema,
		extendedSchema,
		"Read labels, stickers and engravings. Combine what every photo shows into one entry.",
		labelPrompt(labels),
	}, "\n\n")
}

func analysisUserPrompt(item scan.ConfirmedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item: %s", item.Name)
	if desc := strings.TrimSpace(item.Description); desc != "" {
		fmt.Fprintf(&b, "\nCurrent description: %s", desc)
	}
	b.WriteString("\n\nAnalyze all images and return JSON.")
	return b.String()
}

func mergeSystemPrompt(labels []scan.Label) string {
	return strings.Join([]string{
		"You are an inventory assistant combining similar items into one record. Respond with JSON only.",
		"MERGE RULES:\n- return exactly one entry in items\n- name the group, e.g. \"Sandpaper Assortment\"\n- quantity is the total count across all inputs\n- the description mentions the variants",
		itemSchema,
		namingExamples,
		labelPrompt(labels),
	}, "\n\n")
}

func mergeUserPrompt(items []scan.ConfirmedItem) string {
	var b strings.Builder
	b.WriteString("Items to merge:")
	for _, item := range items {
		fmt.Fprintf(&b, "\n- %s (qty: %d)", item.Name, item.Quantity)
		if desc := strings.TrimSpace(item.Description); desc != "" {
			fmt.Fprintf(&b, ": %s", desc)
		}
	}
	return b.String()
}
