package extract

import "fmt"

// Extractor names accepted by New.
const (
	NameRegex = "regex"
	NameDOM   = "dom"
)

// New returns the Extractor registered under name. An empty name selects the
// pattern-based extractor.
func New(name string) (Extractor, error) {
	switch name {
	case "", NameRegex:
		return NewRegex(), nil
	case NameDOM:
		return NewDOM(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}
