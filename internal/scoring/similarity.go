package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode"
)

// Similarity scores how close a student's free-text answer is to the reference, in [0,1].
type Similarity interface {
	Similarity(ctx context.Context, studentText, referenceText string) (float64, error)
}

// ─── HTTP scorer ───────────────────────────────────────────────────

// HTTPSimilarity calls an external short-answer grading service.
// Request:  POST {"student_text": "...", "reference_text": "..."}
// Response: {"similarity": 0.83}
type HTTPSimilarity struct {
	url    string
	client *http.Client
}

// NewHTTPSimilarity creates an HTTPSimilarity for the given endpoint.
func NewHTTPSimilarity(url string, timeout time.Duration) *HTTPSimilarity {
	return &HTTPSimilarity{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type similarityRequest struct {
	StudentText   string `json:"student_text"`
	ReferenceText string `json:"reference_text"`
}

type similarityResponse struct {
	Similarity *float64 `json:"similarity"`
}

// Similarity implements Similarity.
func (s *HTTPSimilarity) Similarity(ctx context.Context, studentText, referenceText string) (float64, error) {
	body, err := json.Marshal(similarityRequest{StudentText: studentText, ReferenceText: referenceText})
	if err != nil {
		return 0, fmt.Errorf("%w: marshal request: %w", ErrScoringCollaborator, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrScoringCollaborator, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: unexpected status %d", ErrScoringCollaborator, resp.StatusCode)
	}

	var out similarityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %w", ErrScoringCollaborator, err)
	}
	if out.Similarity == nil {
		return 0, fmt.Errorf("%w: response has no similarity", ErrScoringCollaborator)
	}
	return clamp01(*out.Similarity), nil
}

// ─── Local scorer ──────────────────────────────────────────────────

// LevenshteinSimilarity is a local scorer: 1 - editDistance/maxLen over
// case-folded, punctuation-free text. Used when no grading service is configured.
type LevenshteinSimilarity struct{}

// Similarity implements Similarity.
func (LevenshteinSimilarity) Similarity(_ context.Context, studentText, referenceText string) (float64, error) {
	a := []rune(normalize(studentText))
	b := []rune(normalize(referenceText))
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0, errors.New("nothing to compare")
	}
	return 1 - float64(levenshtein(a, b))/float64(longest), nil
}

// normalize does simple casefolding and trims punctuation/extra spaces.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			tmp := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return row[len(b)]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
