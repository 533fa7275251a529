package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Node is one node of a decision tree. Leaves have Left == -1 and carry the
// per-class weights in Value.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a decision tree; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// ForestArtifact is the JSON export of a trained random forest and the
// encoder fitted alongside it.
type ForestArtifact struct {
	Encoder *Encoder `json:"encoder"`
	Trees   []Tree   `json:"trees"`
}

// ForestModel scores records with a random forest. The probability is the mean
// of each tree's normalized class-1 leaf weight.
type ForestModel struct {
	encoder *Encoder
	trees   []Tree
}

// LoadForest reads and validates an artifact from path.
func LoadForest(path string) (*ForestModel, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied artifact path
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	var art ForestArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrModelUnavailable, err)
	}
	return NewForest(art)
}

// NewForest validates art and returns a ready model.
func NewForest(art ForestArtifact) (*ForestModel, error) {
	if art.Encoder == nil {
		return nil, fmt.Errorf("%w: artifact has no encoder", ErrModelUnavailable)
	}
	if err := art.Encoder.ready(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("%w: artifact has no trees", ErrModelUnavailable)
	}
	width := art.Encoder.Width()
	for i, t := range art.Trees {
		if err := t.validate(width); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrModelUnavailable, i, err)
		}
	}
	return &ForestModel{encoder: art.Encoder, trees: art.Trees}, nil
}

// validate checks child indices point forward, so traversal always terminates,
// and that every split feature exists in the encoded vector.
func (t Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left == -1 {
			if len(n.Value) < 2 {
				return fmt.Errorf("leaf %d has %d class weights", i, len(n.Value))
			}
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, width)
		}
	}
	return nil
}

// leaf descends to the leaf for x; x <= threshold goes left.
func (t Tree) leaf(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Name implements Model.
func (m *ForestModel) Name() string { return "forest" }

// ScoreProbability implements Model.
func (m *ForestModel) ScoreProbability(ctx context.Context, rec FeatureRecord) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x, err := m.encoder.Encode(rec)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, t := range m.trees {
		v := t.leaf(x).Value
		var total float64
		for _, w := range v {
			total += w
		}
		if total > 0 {
			sum += v[1] / total
		}
	}
	return sum / float64(len(m.trees)), nil
}
