package risk

import "context"

// Model scores a transfer's fraud probability in [0, 1].
type Model interface {
	Name() string
	ScoreProbability(ctx context.Context, rec FeatureRecord) (float64, error)
}
