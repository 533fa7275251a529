package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mbd888/transferguard/internal/logging"
	"github.com/mbd888/transferguard/internal/traces"
)

// DefaultModelTimeout bounds a single model call.
const DefaultModelTimeout = 500 * time.Millisecond

// Assessment is the combined rule and model verdict for one evaluation.
type Assessment struct {
	RuleScore  float64  `json:"ruleScore"`
	RuleReason string   `json:"ruleReason"`
	ModelScore *float64 `json:"modelScore,omitempty"`
	Blended    float64  `json:"blendedScore"`
	ModelError string   `json:"modelError,omitempty"`
}

// Assessor runs the rule table and, when a model is loaded, the model.
// Model failures never fail an assessment; the rule score stands alone.
type Assessor struct {
	model   Model
	timeout time.Duration
}

// NewAssessor creates an assessor. model may be nil when no artifact was loaded.
func NewAssessor(model Model, timeout time.Duration) *Assessor {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &Assessor{model: model, timeout: timeout}
}

// ModelLoaded reports whether a model is available.
func (a *Assessor) ModelLoaded() bool { return a.model != nil }

// ModelName returns the loaded model's name, or "none".
func (a *Assessor) ModelName() string {
	if a.model == nil {
		return "none"
	}
	return a.model.Name()
}

// Assess scores signals with the rule table and rec with the model.
func (a *Assessor) Assess(ctx context.Context, signals Signals, rec FeatureRecord) Assessment {
	rule := signals.Rule()
	out := Assessment{
		RuleScore:  rule.Score,
		RuleReason: rule.Reason,
		Blended:    rule.Score,
	}

	if a.model != nil {
		p, err := a.score(ctx, rec)
		if err != nil {
			modelFailuresTotal.WithLabelValues(a.model.Name()).Inc()
			logging.L(ctx).Warn("risk model scoring failed, using rule score",
				"model", a.model.Name(),
				"error", err,
			)
			out.ModelError = err.Error()
		} else {
			out.ModelScore = &p
			out.Blended = math.Max(rule.Score, p)
		}
	}

	assessmentsTotal.WithLabelValues(a.ModelName()).Inc()
	blendedScore.Observe(out.Blended)
	return out
}

func (a *Assessor) score(ctx context.Context, rec FeatureRecord) (float64, error) {
	ctx, span := traces.StartSpan(ctx, "risk.model", attribute.String("risk.model", a.model.Name()))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	p, err := a.model.ScoreProbability(ctx, rec)
	if err == nil && (math.IsNaN(p) || p < 0 || p > 1) {
		err = fmt.Errorf("%w: probability %v out of range", ErrModelUnavailable, p)
	}
	if err != nil {
		traces.RecordError(span, err)
		return 0, err
	}
	span.SetAttributes(traces.RiskScore(p))
	return p, nil
}
