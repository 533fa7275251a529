package risk

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable means the model could not be consulted at all
// (missing artifact, open circuit, unreachable endpoint).
var ErrModelUnavailable = errors.New("risk: model unavailable")

// EncodingError reports a feature that could not be turned into model input.
type EncodingError struct {
	Column string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("risk: encode %s: %s", e.Column, e.Reason)
}
