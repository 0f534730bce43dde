package normalize

import (
	"github.com/corner-places/venue-engine/internal/observability"
)

// Normalizer runs the field parsers and reports recoverable problems to its logger.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	logger *observability.Logger
}

// New creates a Normalizer. A nil logger discards warnings.
func New(logger *observability.Logger) *Normalizer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Normalizer{logger: logger.WithOperation("normalize")}
}

func (n *Normalizer) warn(field string, v Value, msg string) {
	n.logger.Warn().
		Str("field", field).
		Str("kind", v.Kind().String()).
		Msg(msg)
}
