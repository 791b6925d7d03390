package layout

import (
	"path/filepath"
	"strings"
)

// Kind is the storage shape of a path relative to the uploads root.
type Kind int

const (
	// Other is any path outside the two recognised shapes.
	Other Kind = iota
	// Flat is a file directly under the root.
	Flat
	// Sharded is {numeric}/{numeric}/name, the year/month layout.
	Sharded
)

func (k Kind) String() string {
	switch k {
	case Flat:
		return "flat"
	case Sharded:
		return "sharded"
	default:
		return "other"
	}
}

// Location is the classification of one path.
type Location struct {
	Kind  Kind
	Year  string
	Month string
	Name  string
}

// Classify reports where path sits relative to root. Paths outside root are
// Other.
func Classify(root, path string) Location {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Location{Kind: Other}
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 1:
		return Location{Kind: Flat, Name: parts[0]}
	case len(parts) == 3 && isNumeric(parts[0]) && isNumeric(parts[1]):
		return Location{Kind: Sharded, Year: parts[0], Month: parts[1], Name: parts[2]}
	default:
		return Location{Kind: Other, Name: parts[len(parts)-1]}
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
