package scan

// Label is an inventory tag the detector may suggest for an item.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DetectOptions tunes a single detection request.
type DetectOptions struct {
	SingleItem     bool
	Instructions   string
	ExtendedFields bool
	Labels         []Label
}

// OptionsFor builds detection options from a captured image's hints.
func OptionsFor(image CapturedImage, extended bool, labels []Label) DetectOptions {
	return DetectOptions{
		SingleItem:     image.Options.SingleItem,
		Instructions:   image.Options.Instructions,
		ExtendedFields: extended,
		Labels:         labels,
	}
}
