package samapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/ceradon/samwatch/internal/models"
)

// fastConfig keeps retry/backoff delays negligible for tests.
func fastConfig(baseURL string) ClientConfig {
	return ClientConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		PageSize:    2,
		MaxRetries:  4,
		BackoffBase: time.Millisecond,
		RateLimit:   10000,
	}
}

type page struct {
	Records []models.RawRecord
	Total   *int
}

func pageServer(t *testing.T, pages map[int]page) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		p := pages[offset]

		resp := map[string]interface{}{"opportunitiesData": p.Records}
		if p.Records == nil {
			resp["opportunitiesData"] = []models.RawRecord{}
		}
		if p.Total != nil {
			resp["totalRecords"] = *p.Total
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func drain(t *testing.T, it *Search) []models.RawRecord {
	t.Helper()
	var out []models.RawRecord
	for it.Next() {
		out = append(out, it.Record())
	}
	return out
}

func recordsNamed(names ...string) []models.RawRecord {
	out := make([]models.RawRecord, len(names))
	for i, name := range names {
		out[i] = models.RawRecord{"noticeId": name}
	}
	return out
}

func TestSearch_TerminatesOnEmptyPage(t *testing.T) {
	// Pages of [2, 2, 0] with no totalRecords: exactly 4 records, stop after
	// the empty page.
	server, requests := pageServer(t, map[int]page{
		0: {Records: recordsNamed("a", "b")},
		2: {Records: recordsNamed("c", "d")},
		4: {},
	})

	client := NewClient(fastConfig(server.URL))
	it := client.Search(context.Background(), url.Values{})

	records := drain(t, it)
	if err := it.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	if *requests != 3 {
		t.Errorf("made %d requests, want 3", *requests)
	}
}

func TestSearch_TerminatesOnTotalRecords(t *testing.T) {
	total := 4
	server, requests := pageServer(t, map[int]page{
		0: {Records: recordsNamed("a", "b"), Total: &total},
		2: {Records: recordsNamed("c", "d"), Total: &total},
	})

	client := NewClient(fastConfig(server.URL))
	records := drain(t, client.Search(context.Background(), url.Values{}))

	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	// Offset reached the reported total, so no third request is issued.
	if *requests != 2 {
		t.Errorf("made %d requests, want 2", *requests)
	}
}

func TestSearch_RetryBound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(fastConfig(server.URL))
	it := client.Search(context.Background(), url.Values{})

	if it.Next() {
		t.Fatal("Next returned true against an always-failing server")
	}
	if it.Err() == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	// 1 initial + 4 retries.
	if attempts != 5 {
		t.Errorf("made %d attempts, want 5", attempts)
	}
}

func TestSearch_MalformedBodyIsTransient(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			fmt.Fprint(w, "{not json")
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"opportunitiesData": recordsNamed("a"),
			"totalRecords":      1,
		})
	}))
	t.Cleanup(server.Close)

	client := NewClient(fastConfig(server.URL))
	records := drain(t, client.Search(context.Background(), url.Values{}))

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 after transient decode failures", len(records))
	}
	if attempts != 3 {
		t.Errorf("made %d attempts, want 3", attempts)
	}
}

func TestSearch_4xxIsPermanent(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := NewClient(fastConfig(server.URL))
	it := client.Search(context.Background(), url.Values{})

	if it.Next() {
		t.Fatal("Next returned true for a 403")
	}
	var statusErr *StatusError
	if !errors.As(it.Err(), &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want StatusError 403", it.Err())
	}
	if attempts != 1 {
		t.Errorf("made %d attempts, want 1 (no retry on 4xx)", attempts)
	}
}

func TestSearch_AuthPlacement(t *testing.T) {
	var gotHeader, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-API-Key")
		gotQuery = r.URL.Query().Get("api_key")
		json.NewEncoder(w).Encode(map[string]interface{}{"opportunitiesData": []models.RawRecord{}})
	}))
	t.Cleanup(server.Close)

	headerClient := NewClient(fastConfig(server.URL))
	drain(t, headerClient.Search(context.Background(), url.Values{}))
	if gotHeader != "test-key" || gotQuery != "" {
		t.Errorf("header mode: header=%q query=%q, want key in header only", gotHeader, gotQuery)
	}

	cfg := fastConfig(server.URL)
	cfg.APIKeyInQuery = true
	queryClient := NewClient(cfg)
	drain(t, queryClient.Search(context.Background(), url.Values{}))
	if gotQuery != "test-key" || gotHeader != "" {
		t.Errorf("query mode: header=%q query=%q, want key in query only", gotHeader, gotQuery)
	}
}

func TestSearch_IndependentIterators(t *testing.T) {
	server, _ := pageServer(t, map[int]page{
		0: {Records: recordsNamed("a", "b")},
		2: {Records: recordsNamed("c", "d")},
		4: {},
	})
	client := NewClient(fastConfig(server.URL))

	// Abandon a partially consumed iterator.
	partial := client.Search(context.Background(), url.Values{})
	if !partial.Next() {
		t.Fatalf("first Next failed: %v", partial.Err())
	}

	// A fresh search must restart from offset 0 and see everything.
	records := drain(t, client.Search(context.Background(), url.Values{}))
	if len(records) != 4 {
		t.Fatalf("fresh search got %d records, want 4", len(records))
	}
	if records[0]["noticeId"] != "a" {
		t.Errorf("fresh search did not restart from offset 0: %v", records[0])
	}
}

func TestSearch_PreservesCallerParams(t *testing.T) {
	var gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("postedFrom")
		json.NewEncoder(w).Encode(map[string]interface{}{"opportunitiesData": []models.RawRecord{}})
	}))
	t.Cleanup(server.Close)

	client := NewClient(fastConfig(server.URL))
	drain(t, client.Search(context.Background(), url.Values{"postedFrom": {"01/01/2024"}}))
	if gotFrom != "01/01/2024" {
		t.Errorf("postedFrom = %q, want 01/01/2024", gotFrom)
	}
}
