package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mockmate/mockmate/internal/interview"
)

func TestGetSessionDecodesTypedModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id header")
		}
		_ = json.NewEncoder(w).Encode(interview.Session{
			SessionID:      "sess-1",
			QuestionLength: 2,
			Cursor:         interview.Cursor{Question: 1, FollowUp: 0},
			QAFlow: []interview.QuestionEntry{
				{Question: "q1", FollowUpLength: 1, FollowUps: []interview.FollowUpEntry{{Question: "f1"}}},
				{Question: "q2"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-1", time.Second)
	s, err := client.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s.SessionID != "sess-1" || len(s.QAFlow) != 2 {
		t.Fatalf("unexpected session %#v", s)
	}
	if s.Cursor != (interview.Cursor{Question: 1, FollowUp: 0}) {
		t.Fatalf("unexpected cursor %#v", s.Cursor)
	}
	if s.QAFlow[0].FollowUps[0].Question != "f1" {
		t.Fatalf("unexpected follow-up %#v", s.QAFlow[0].FollowUps)
	}
}

func TestSaveAnswerSendsBody(t *testing.T) {
	var got struct {
		Answer string `json:"answer"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/sessions/sess-1/questions/2/answer" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	if err := client.SaveAnswer(context.Background(), "sess-1", 2, "my answer"); err != nil {
		t.Fatalf("SaveAnswer failed: %v", err)
	}
	if got.Answer != "my answer" {
		t.Fatalf("expected answer in body, got %#v", got)
	}
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"SESSION_NOT_FOUND","message":"no such session"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.GetSession(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "SESSION_NOT_FOUND" {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if !IsNotFound(err) {
		t.Fatal("IsNotFound should report true")
	}
	if IsRetryable(err) {
		t.Fatal("a 404 must not be retryable")
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	err := client.GenerateFeedback(context.Background(), "sess-1", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("a 500 must be retryable, got %v", err)
	}
}

func TestCallTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "", 50*time.Millisecond)
	_, err := client.GenerateFollowUps(context.Background(), "sess-1", 0)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsRetryable(err) {
		t.Fatalf("a timed-out call must be retryable, got %v", err)
	}
}

func TestFetchAudioConcurrentDistinctPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio:" + r.URL.Path))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := client.FetchAudio(context.Background(), server.URL+"/audio/"+string(rune('a'+i)))
			if err != nil {
				t.Errorf("FetchAudio failed: %v", err)
				return
			}
			defer func() { _ = body.Close() }()
			raw, _ := io.ReadAll(body)
			results[i] = string(raw)
		}()
	}
	wg.Wait()

	for i, got := range results {
		want := "audio:/audio/" + string(rune('a'+i))
		if got != want {
			t.Fatalf("result %d = %q, want %q", i, got, want)
		}
	}
}
