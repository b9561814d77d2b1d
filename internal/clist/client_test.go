package clist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mut func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := Config{
		BaseURL:           srv.URL + "/api/v1/contest/",
		Username:          "alice",
		APIKey:            "s3cret&key",
		ResourceIDs:       []int{1, 2, 73},
		Timeout:           2 * time.Second,
		RequestsPerMinute: 6000,
		Retries:           2,
		RetryDelay:        time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}
	return New(cfg, logx.Nop())
}

func TestFetchContestsSendsWindowQuery(t *testing.T) {
	t.Parallel()

	queries := make(chan url.Values, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		_, _ = w.Write([]byte(`{"meta":{"total_count":0},"objects":[]}`))
	}, nil)

	start := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	contests, err := c.FetchContests(context.Background(), start, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(contests) != 0 {
		t.Fatalf("expected empty result, got %v", contests)
	}

	q := <-queries
	want := map[string]string{
		"username":         "alice",
		"api_key":          "s3cret&key",
		"resource__id__in": "1,2,73",
		"start__gt":        "2024-03-01T10:30:00",
		"start__lt":        "2024-03-15T10:30:00",
		"order_by":         "start",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Fatalf("param %s: got %q want %q (all: %v)", k, q.Get(k), v, q)
		}
	}
}

func TestFetchContestsDecodesRecords(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"objects":[
			{"id":101,"event":"Codeforces Round 900","href":"https://codeforces.com/contests/1","start":"2024-03-02T14:35:00","end":"2024-03-02T16:35:00","resource":{"id":1,"name":"codeforces.com"}},
			{"id":102,"event":"AtCoder Beginner Contest 350","href":"https://atcoder.jp/contests/abc350","start":"2024-03-03T12:00:00","end":"2024-03-03T13:40:00","resource":{"id":93}}
		]}`))
	}, nil)

	contests, err := c.FetchContests(context.Background(), time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(contests) != 2 {
		t.Fatalf("expected 2 contests, got %d", len(contests))
	}
	first := contests[0]
	if first.ID != 101 || first.Event != "Codeforces Round 900" || first.ResourceID != 1 {
		t.Fatalf("unexpected first contest %+v", first)
	}
	if !first.Start.Equal(time.Date(2024, 3, 2, 14, 35, 0, 0, time.UTC)) || first.Duration() != 2*time.Hour {
		t.Fatalf("unexpected times %v..%v", first.Start, first.End)
	}
}

func TestFetchContestsRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing objects": `{"meta":{}}`,
		"null objects":    `{"objects":null}`,
		"missing id":      `{"objects":[{"event":"x","start":"2024-03-02T14:35:00","end":"2024-03-02T16:35:00"}]}`,
		"missing event":   `{"objects":[{"id":1,"start":"2024-03-02T14:35:00","end":"2024-03-02T16:35:00"}]}`,
		"bad start":       `{"objects":[{"id":1,"event":"x","start":"2024-03-02 14:35","end":"2024-03-02T16:35:00"}]}`,
		"end before":      `{"objects":[{"id":1,"event":"x","start":"2024-03-02T14:35:00","end":"2024-03-02T10:00:00"}]}`,
		"string id":       `{"objects":[{"id":"1","event":"x","start":"2024-03-02T14:35:00","end":"2024-03-02T16:35:00"}]}`,
		"not json":        `<html>oops</html>`,
	}
	for name, body := range cases {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(body))
			}, nil)

			_, err := c.FetchContests(context.Background(), time.Now(), 0)
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if pe.Op != "schema" && pe.Op != "decode" {
				t.Fatalf("unexpected op %q: %v", pe.Op, pe)
			}
			if calls.Load() != 1 {
				t.Fatalf("malformed bodies must not be retried, got %d calls", calls.Load())
			}
		})
	}
}

func TestFetchContestsRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"objects":[]}`))
	}, nil)

	if _, err := c.FetchContests(context.Background(), time.Now(), 0); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestFetchContestsDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}, nil)

	_, err := c.FetchContests(context.Background(), time.Now(), 0)
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "status" || pe.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 ProviderError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestFetchContestsTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *Config) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.Retries = 0
	})
	defer close(release)

	started := time.Now()
	_, err := c.FetchContests(context.Background(), time.Now(), 0)
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "request" {
		t.Fatalf("expected request ProviderError, got %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(started))
	}
}

func TestFetchContestsWithoutResourceIDsSendsNothing(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"objects":[]}`))
	}, func(cfg *Config) {
		cfg.ResourceIDs = nil
	})

	_, err := c.FetchContests(context.Background(), time.Now(), 0)
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "request" {
		t.Fatalf("expected request ProviderError, got %v", err)
	}
	if !errors.Is(err, errInvalidRequest) || pe.Temporary() {
		t.Fatalf("expected a permanent invalid request, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no calls, got %d", calls.Load())
	}
}

func TestFetchContestsRateLimitWaitIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"objects":[]}`))
	}, func(cfg *Config) {
		// One request per minute with a burst of one.
		cfg.RequestsPerMinute = 1
		cfg.Timeout = 200 * time.Millisecond
		cfg.Retries = 3
		cfg.RetryDelay = 300 * time.Millisecond
	})

	if _, err := c.FetchContests(context.Background(), time.Now(), 0); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	started := time.Now()
	_, err := c.FetchContests(context.Background(), time.Now(), 0)
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "ratelimit" || pe.Temporary() {
		t.Fatalf("expected permanent ratelimit ProviderError, got %v", err)
	}
	if took := time.Since(started); took >= 300*time.Millisecond {
		t.Fatalf("rate limit wait was retried, took %v", took)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}
