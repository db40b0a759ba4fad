// Package scorer talks to the external free-response scoring service.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrUnavailable       = errors.New("scorer unavailable")
	ErrMalformedResponse = errors.New("scorer returned a malformed response")
	ErrNotConfigured     = errors.New("scorer not configured")
)

// Request is everything the scorer needs to judge one response.
type Request struct {
	QuestionID uint    `json:"question_id"`
	Prompt     string  `json:"prompt"`
	Rubric     string  `json:"rubric,omitempty"`
	MaxPoints  float64 `json:"max_points"`
	Response   string  `json:"response"`
}

type Suggestion struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Evidence  string  `json:"evidence,omitempty"`
	Provider  string  `json:"provider"`
}

// Scorer proposes a score for a free-response answer.
type Scorer interface {
	Suggest(ctx context.Context, req Request) (*Suggestion, error)
}

type Config struct {
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Model        string
	Timeout      time.Duration
}

// HTTPScorer posts JSON to the scoring endpoint, authenticating with the
// OAuth2 client credentials grant when a token URL is configured.
type HTTPScorer struct {
	http     *http.Client
	endpoint string
	model    string
}

func NewHTTPScorer(cfg Config) *HTTPScorer {
	var h *http.Client
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		h = cc.Client(context.Background())
	} else {
		h = &http.Client{}
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	} else {
		h.Timeout = 15 * time.Second
	}
	return &HTTPScorer{http: h, endpoint: cfg.Endpoint, model: cfg.Model}
}

type scoreRequest struct {
	Model string `json:"model,omitempty"`
	Request
}

type scoreResponse struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
	Evidence  string   `json:"evidence"`
	Provider  string   `json:"provider"`
}

func (s *HTTPScorer) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	if s.endpoint == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(scoreRequest{Model: s.model, Request: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := s.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: status %s: %s", ErrUnavailable, res.Status, strings.TrimSpace(string(snippet)))
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Score == nil || math.IsNaN(*out.Score) || math.IsInf(*out.Score, 0) {
		return nil, fmt.Errorf("%w: missing or non-finite score", ErrMalformedResponse)
	}
	if strings.TrimSpace(out.Rationale) == "" {
		return nil, fmt.Errorf("%w: missing rationale", ErrMalformedResponse)
	}

	provider := out.Provider
	if provider == "" {
		provider = s.model
	}
	return &Suggestion{
		Score:     *out.Score,
		Rationale: out.Rationale,
		Evidence:  out.Evidence,
		Provider:  provider,
	}, nil
}

// Clamp bounds a suggested score to [0, maxPoints].
func Clamp(score, maxPoints float64) float64 {
	return math.Max(0, math.Min(score, maxPoints))
}
