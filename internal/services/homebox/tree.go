package homebox

import (
	"strings"

	"github.com/Duelion/homebox-companion-sub001/internal/scan"
)

const pathSeparator = " / "

// FlattenTree walks the location tree depth first and returns every
// location with its full path. Item nodes are skipped.
func FlattenTree(nodes []TreeNode) []scan.Location {
	var out []scan.Location
	var walk func(nodes []TreeNode, prefix []string)
	walk = func(nodes []TreeNode, prefix []string) {
		for _, node := range nodes {
			if node.Type != "" && !strings.EqualFold(node.Type, "location") {
				continue
			}
			path := append(append([]string(nil), prefix...), node.Name)
			out = append(out, scan.Location{ID: node.ID, Name: node.Name, Path: strings.Join(path, pathSeparator)})
			walk(node.Children, path)
		}
	}
	walk(nodes, nil)
	return out
}

// ToLabels converts API labels to detection labels.
func ToLabels(labels []Label) []scan.Label {
	out := make([]scan.Label, 0, len(labels))
	for _, label := range labels {
		out = append(out, scan.Label{ID: label.ID, Name: label.Name})
	}
	return out
}
