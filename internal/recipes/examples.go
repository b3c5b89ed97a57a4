package recipes

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
)

//go:embed examples.json
var examplesJSON []byte

// Examples returns the bundled recipe bank used when no hosted bank is
// configured or the hosted bank returned nothing.
func Examples() ([]Recipe, error) {
	var raw []Example
	if err := json.Unmarshal(examplesJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode example recipes: %w", err)
	}
	out := make([]Recipe, 0, len(raw))
	var errs []error
	for _, e := range raw {
		r, err := FromExample(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}
