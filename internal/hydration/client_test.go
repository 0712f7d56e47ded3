package hydration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/posts/42", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Post{ID: 42, Title: "Go generics", AuthorID: 9, Category: "golang"})
	})
	mux.HandleFunc("GET /internal/posts/404", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("POST /internal/posts/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PostIDs []int64 `json:"postIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		posts := []Post{}
		for _, id := range req.PostIDs {
			if id == 42 {
				posts = append(posts, Post{ID: 42, Title: "Go generics"})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"posts": posts})
	})
	mux.HandleFunc("GET /internal/users/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UserProfile{ID: 7, Name: "ada"})
	})
	mux.HandleFunc("GET /internal/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPostInfo(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	post := c.PostInfo(ctx, 42)
	if post == nil || post.Title != "Go generics" || post.Category != "golang" {
		t.Errorf("PostInfo(42) = %+v", post)
	}
	if got := c.PostInfo(ctx, 404); got != nil {
		t.Errorf("PostInfo(404) = %+v, want nil", got)
	}
}

func TestBatchPostInfo(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL, time.Second, nil)

	posts := c.BatchPostInfo(context.Background(), []int64{42, 404})
	if len(posts) != 1 || posts[42] == nil || posts[42].Title != "Go generics" {
		t.Errorf("BatchPostInfo() = %v", posts)
	}
}

func TestProfile(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL, time.Second, nil)

	profile := c.Profile(context.Background(), 7)
	if profile == nil || profile.Name != "ada" {
		t.Errorf("Profile(7) = %+v", profile)
	}
}

func TestLookupsDegradeToNoData(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured base url", func(t *testing.T) {
		c := NewClient("", time.Second, nil)
		if got := c.PostInfo(ctx, 42); got != nil {
			t.Errorf("PostInfo() = %+v, want nil", got)
		}
		if got := c.BatchPostInfo(ctx, []int64{42}); len(got) != 0 {
			t.Errorf("BatchPostInfo() = %v, want empty", got)
		}
		if err := c.HealthCheck(ctx); err == nil {
			t.Error("HealthCheck() error = nil, want error")
		}
	})

	t.Run("unreachable backend", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, nil)
		if got := c.PostInfo(ctx, 42); got != nil {
			t.Errorf("PostInfo() = %+v, want nil", got)
		}
		if got := c.Profile(ctx, 7); got != nil {
			t.Errorf("Profile() = %+v, want nil", got)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := NewClient(srv.URL, time.Second, nil)
		if got := c.PostInfo(ctx, 42); got != nil {
			t.Errorf("PostInfo() = %+v, want nil", got)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	srv := newBackend(t)
	c := NewClient(srv.URL, time.Second, nil)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
