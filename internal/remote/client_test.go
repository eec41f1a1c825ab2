package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"backend-parklookup/internal/track"
)

func testPoints(n int) []track.Point {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	points := make([]track.Point, n)
	for i := range points {
		points[i] = track.Point{
			Sequence:   int64(i + 1),
			Lat:        37.7,
			Lng:        -119.6,
			CapturedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	return points
}

func TestCreateSession(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracking/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Association.ParkCode != "yose" {
			t.Errorf("unexpected association %+v", req.Association)
		}
		_ = json.NewEncoder(w).Encode(createSessionResponse{ID: "remote-42"})
	}))
	defer srv.Close()

	client := New(srv.URL, "token-1", 2)
	id, err := client.CreateSession(context.Background(), track.Association{ParkCode: "yose"}, track.ActivityHiking)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if id != "remote-42" {
		t.Fatalf("unexpected id %s", id)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestAppendPointsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req appendPointsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.SeqStart != 1 || req.SeqEnd != 3 || len(req.Points) != 3 {
			t.Errorf("unexpected batch %+v", req)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, "", 4)
	if err := client.AppendPoints(context.Background(), "remote-1", 1, 3, testPoints(3)); err != nil {
		t.Fatalf("append points: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 2 retries then success, got %d calls", calls.Load())
	}
}

func TestAppendPointsGivesUpAfterBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, "", 2)
	if err := client.AppendPoints(context.Background(), "remote-1", 1, 3, testPoints(3)); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if calls.Load() != 3 { // initial attempt + 2 retries
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, "bad-token", 4)
	if err := client.StopSession(context.Background(), "remote-1", track.Summary{}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(srv.URL, "", 10)
	if err := client.AppendPoints(ctx, "remote-1", 1, 1, testPoints(1)); err == nil {
		t.Fatalf("expected context error")
	}
}
