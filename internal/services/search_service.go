package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"weekend_planner_go_backend/internal/utils/breaker"

	"github.com/rs/zerolog"
)

const (
	DefaultSearchResults = 10
	MaxSearchResults     = 100
	maxErrorBodyBytes    = 2048
)

// ErrCircuitOpen is returned while the search breaker is failing fast.
var ErrCircuitOpen = breaker.ErrOpen

type SearchConfig struct {
	APIKey   string
	URL      string
	Country  string
	Language string
	Timeout  time.Duration
}

// SearchService queries a Serper-compatible web search API and renders the
// results as plain text for the model.
type SearchService struct {
	cfg     SearchConfig
	client  *http.Client
	breaker *breaker.Breaker
}

func NewSearchService(cfg SearchConfig) *SearchService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SearchService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: breaker.New("search", 3, 30*time.Second, countsAsOutage),
	}
}

// countsAsOutage reports whether err reflects provider health. Cancellations
// and deadlines of the calling request never do.
func countsAsOutage(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrSearchTransport)
}

type searchRequest struct {
	Query    string `json:"q"`
	Num      int    `json:"num"`
	Country  string `json:"gl,omitempty"`
	Language string `json:"hl,omitempty"`
}

type searchResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
	PeopleAlsoAsk []struct {
		Question string `json:"question"`
		Snippet  string `json:"snippet"`
	} `json:"peopleAlsoAsk"`
}

// Search runs one query. resultCount is clamped to [1, 100]; zero or less
// means the default of 10.
func (s *SearchService) Search(ctx context.Context, query string, resultCount int) (string, error) {
	var out string
	err := s.breaker.Do(func() error {
		resp, err := s.do(ctx, query, clampResultCount(resultCount))
		if err != nil {
			return err
		}
		out = formatSearchResults(resp)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (s *SearchService) do(ctx context.Context, query string, num int) (*searchResponse, error) {
	body, err := json.Marshal(searchRequest{
		Query:    query,
		Num:      num,
		Country:  s.cfg.Country,
		Language: s.cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.cfg.APIKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		// The caller giving up says nothing about provider health.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("search aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrSearchTransport, err)
	}
	defer resp.Body.Close()

	zerolog.Ctx(ctx).Debug().
		Str("query", query).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Search provider responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &SearchProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("search aborted: %w", ctxErr)
		}
		return nil, &SearchProviderError{StatusCode: resp.StatusCode, Body: "invalid response body: " + err.Error()}
	}
	return &parsed, nil
}

func clampResultCount(n int) int {
	switch {
	case n <= 0:
		return DefaultSearchResults
	case n > MaxSearchResults:
		return MaxSearchResults
	default:
		return n
	}
}

func formatSearchResults(r *searchResponse) string {
	var b strings.Builder

	if r.AnswerBox != nil {
		answer := r.AnswerBox.Answer
		if answer == "" {
			answer = r.AnswerBox.Snippet
		}
		if answer != "" {
			b.WriteString("Featured answer:\n")
			if r.AnswerBox.Title != "" {
				fmt.Fprintf(&b, "%s\n", r.AnswerBox.Title)
			}
			fmt.Fprintf(&b, "%s\n\n", answer)
		}
	}

	if len(r.Organic) == 0 {
		b.WriteString("No search results found.\n")
	} else {
		b.WriteString("Search results:\n")
		for i, item := range r.Organic {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
			if item.Snippet != "" {
				fmt.Fprintf(&b, "   %s\n", item.Snippet)
			}
			if item.Link != "" {
				fmt.Fprintf(&b, "   Link: %s\n", item.Link)
			}
			if item.Date != "" {
				fmt.Fprintf(&b, "   Date: %s\n", item.Date)
			}
		}
	}

	if len(r.PeopleAlsoAsk) > 0 {
		b.WriteString("\nRelated questions:\n")
		for _, q := range r.PeopleAlsoAsk {
			fmt.Fprintf(&b, "- %s\n", q.Question)
			if q.Snippet != "" {
				fmt.Fprintf(&b, "  %s\n", q.Snippet)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
