package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSearch(url string) *SearchService {
	return NewSearchService(SearchConfig{APIKey: "test-key", URL: url, Country: "pl", Language: "en"})
}

func TestSearchSendsQueryAndFormatsResults(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"answerBox": {"title": "Kids events", "answer": "Family fair on Saturday"},
			"organic": [
				{"title": "Zoo Kraków", "link": "https://zoo.krakow.pl", "snippet": "Open daily", "date": "Jun 14, 2024"},
				{"title": "Museum night", "link": "https://example.org/museum", "snippet": "Free entry"}
			],
			"peopleAlsoAsk": [{"question": "Is the zoo open on Sunday?", "snippet": "Yes."}]
		}`))
	}))
	defer srv.Close()

	out, err := newTestSearch(srv.URL).Search(context.Background(), "family events Kraków", 0)
	require.NoError(t, err)

	assert.Equal(t, "family events Kraków", got.Query)
	assert.Equal(t, DefaultSearchResults, got.Num)
	assert.Equal(t, "pl", got.Country)
	assert.Contains(t, out, "Featured answer:")
	assert.Contains(t, out, "1. Zoo Kraków")
	assert.Contains(t, out, "   Link: https://zoo.krakow.pl")
	assert.Contains(t, out, "   Date: Jun 14, 2024")
	assert.Contains(t, out, "2. Museum night")
	assert.Contains(t, out, "Related questions:")
}

func TestSearchClampsResultCount(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"organic": []}`))
	}))
	defer srv.Close()

	out, err := newTestSearch(srv.URL).Search(context.Background(), "q", 500)
	require.NoError(t, err)
	assert.Equal(t, MaxSearchResults, got.Num)
	assert.Equal(t, "No search results found.", out)
}

func TestSearchNon2xxIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	_, err := newTestSearch(srv.URL).Search(context.Background(), "q", 5)
	var perr *SearchProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Equal(t, "rate limited", perr.Body)
}

func TestSearchMalformedBodyIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := newTestSearch(srv.URL).Search(context.Background(), "q", 5)
	var perr *SearchProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusOK, perr.StatusCode)
}

func TestSearchTransportFailureOpensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := newTestSearch(url)
	for i := 0; i < 3; i++ {
		_, err := s.Search(context.Background(), "q", 5)
		assert.ErrorIs(t, err, ErrSearchTransport)
	}
	_, err := s.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSearchCallerCancellationDoesNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organic": [{"title": "Zoo Kraków", "link": "https://zoo.krakow.pl"}]}`))
	}))
	defer srv.Close()
	s := newTestSearch(srv.URL)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := s.Search(cancelled, "q", 5)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrSearchTransport)
	}

	out, err := s.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Zoo Kraków")
}

func TestSearchCallerDeadlineDoesNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got searchRequest
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.Query == "slow" {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(`{"organic": []}`))
	}))
	defer srv.Close()
	s := newTestSearch(srv.URL)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := s.Search(ctx, "slow", 5)
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrSearchTransport)
	}

	out, err := s.Search(context.Background(), "fast", 5)
	require.NoError(t, err)
	assert.Equal(t, "No search results found.", out)
}

func TestCountsAsOutage(t *testing.T) {
	assert.True(t, countsAsOutage(fmt.Errorf("%w: connection refused", ErrSearchTransport)))
	assert.False(t, countsAsOutage(fmt.Errorf("%w: %w", ErrSearchTransport, context.DeadlineExceeded)))
	assert.False(t, countsAsOutage(context.Canceled))
	assert.False(t, countsAsOutage(&SearchProviderError{StatusCode: 500}))
}
