package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMilestoneByTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/acme/widgets/milestones" {
			json.NewEncoder(w).Encode([]Milestone{
				{Title: "v1.0.0", Number: 1, Description: "first release"},
				{Title: "v2.0.0", Number: 2},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New("test-token", WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	m, err := client.MilestoneByTitle(context.Background(), "acme/widgets", "v2.0.0")
	if err != nil {
		t.Fatalf("MilestoneByTitle: %v", err)
	}
	if m.Number != 2 {
		t.Errorf("number = %d, want 2", m.Number)
	}

	// Number-as-string also resolves.
	m, err = client.MilestoneByTitle(context.Background(), "acme/widgets", "1")
	if err != nil {
		t.Fatalf("MilestoneByTitle by number: %v", err)
	}
	if m.Title != "v1.0.0" {
		t.Errorf("title = %q, want v1.0.0", m.Title)
	}

	_, err = client.MilestoneByTitle(context.Background(), "acme/widgets", "v9")
	if err == nil || !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestIssues_SendsMilestoneFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/issues" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("milestone"); got != "2" {
			t.Errorf("milestone param = %q, want 2", got)
		}
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state param = %q, want all", got)
		}
		json.NewEncoder(w).Encode([]Issue{
			{Number: 10, Title: "Login is slow", Body: "premium users affected"},
		})
	}))
	defer server.Close()

	client := New("", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	issues, err := client.Issues(context.Background(), "acme/widgets", 2)
	if err != nil {
		t.Fatalf("Issues: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 10 {
		t.Errorf("issues = %+v", issues)
	}
}

func TestGetJSON_RetriesOn403(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode([]Milestone{{Title: "v1", Number: 1}})
	}))
	defer server.Close()

	var slept time.Duration
	client := New("", WithBaseURL(server.URL), WithHTTPClient(server.Client()),
		withSleep(func(d time.Duration) { slept += d }))

	milestones, err := client.Milestones(context.Background(), "acme/widgets")
	if err != nil {
		t.Fatalf("Milestones: %v", err)
	}
	if len(milestones) != 1 {
		t.Errorf("milestones = %+v", milestones)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if slept != time.Second {
		t.Errorf("slept %v, want 1s", slept)
	}
}

func TestGetJSON_NonRetryableErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))
	defer server.Close()

	client := New("", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := client.Issue(context.Background(), "acme/widgets", 99)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
}
