package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/transferguard/internal/circuitbreaker"
	"github.com/mbd888/transferguard/internal/retry"
)

const (
	remoteAttempts     = 2
	remoteBaseDelay    = 50 * time.Millisecond
	remoteMaxBody      = 4 << 10
	breakerThreshold   = 5
	breakerOpenTimeout = 30 * time.Second
)

// RemoteModel scores records by posting them to an HTTP scoring service that
// answers {"probability": p}. Transient failures are retried once; repeated
// failures open a circuit so later calls fail fast.
type RemoteModel struct {
	endpoint string
	client   *http.Client
	breaker  *circuitbreaker.Breaker
	policy   retry.Policy
}

// NewRemoteModel creates a client for endpoint. A nil client uses
// http.DefaultClient; per-call deadlines come from the caller's context.
func NewRemoteModel(endpoint string, client *http.Client) (*RemoteModel, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid model URL %q", ErrModelUnavailable, endpoint)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteModel{
		endpoint: u.String(),
		client:   client,
		breaker:  circuitbreaker.New(breakerThreshold, breakerOpenTimeout),
		policy:   retry.Policy{Attempts: remoteAttempts, BaseDelay: remoteBaseDelay},
	}, nil
}

// WithBreaker replaces the circuit breaker.
func (m *RemoteModel) WithBreaker(b *circuitbreaker.Breaker) *RemoteModel {
	m.breaker = b
	return m
}

// Name implements Model.
func (m *RemoteModel) Name() string { return "remote" }

type scoreResponse struct {
	Probability *float64 `json:"probability"`
}

// ScoreProbability implements Model.
func (m *RemoteModel) ScoreProbability(ctx context.Context, rec FeatureRecord) (float64, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return 0, &EncodingError{Column: "*", Reason: err.Error()}
	}

	var p float64
	err = m.breaker.Execute(ctx, m.endpoint, func(ctx context.Context) error {
		return retry.Do(ctx, m.policy, func(ctx context.Context) error {
			v, err := m.post(ctx, body)
			if err != nil {
				return err
			}
			p = v
			return nil
		})
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return 0, fmt.Errorf("%w: circuit open", ErrModelUnavailable)
	}
	if err != nil {
		return 0, err
	}
	return p, nil
}

func (m *RemoteModel) post(ctx context.Context, body []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, retry.Permanent(ctx.Err())
		}
		return 0, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("%w: scoring service returned %d", ErrModelUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return 0, retry.Permanent(&EncodingError{Column: "*", Reason: fmt.Sprintf("scoring service rejected record: %d", resp.StatusCode)})
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, remoteMaxBody)).Decode(&out); err != nil {
		return 0, retry.Permanent(fmt.Errorf("%w: decode response: %v", ErrModelUnavailable, err))
	}
	if out.Probability == nil {
		return 0, retry.Permanent(fmt.Errorf("%w: response has no probability", ErrModelUnavailable))
	}
	return *out.Probability, nil
}
