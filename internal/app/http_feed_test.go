package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ecostarter/api/internal/live"
	"ecostarter/api/internal/store"
)

func authedRequest(t *testing.T, svc *Service, method, target string, body string) *http.Request {
	t.Helper()
	session, err := svc.issueSession(context.Background(), store.User{ID: "user-1", Email: "avery@example.com", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFeedListsPosts(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeStore{
		listPostsFn: func(context.Context) ([]store.Post, error) {
			return []store.Post{
				{ID: "post-2", Content: "newer", ServerTimestamp: now},
				{ID: "post-1", Content: "older", ServerTimestamp: now.Add(-time.Hour)},
			}, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, svc, http.MethodGet, "/api/posts", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Posts []store.Post `json:"posts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(payload.Posts) != 2 || payload.Posts[0].ID != "post-2" {
		t.Fatalf("expected store order preserved, got %+v", payload.Posts)
	}
}

func TestCreatePostEndpoint(t *testing.T) {
	fs := &fakeStore{
		getProfileFn: func(context.Context, string) (store.Profile, error) {
			return store.Profile{DisplayName: "Avery"}, nil
		},
		insertPostFn: func(_ context.Context, post store.Post) (time.Time, error) {
			return time.Now().UTC(), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, svc, http.MethodPost, "/api/posts", `{"content":"planted a tree"}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var post store.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &post); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if post.Content != "planted a tree" || post.UserName != "Avery" {
		t.Fatalf("unexpected post payload: %+v", post)
	}
	if post.Likes == nil || post.Comments == nil {
		t.Fatalf("expected empty collections, not null: %+v", post)
	}
}

func TestCreatePostWithoutContentOrImageRejected(t *testing.T) {
	svc := newTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, svc, http.MethodPost, "/api/posts", `{"content":"  "}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreatePostImageOnlyEndpoint(t *testing.T) {
	fs := &fakeStore{
		getProfileFn: func(context.Context, string) (store.Profile, error) {
			return store.Profile{DisplayName: "Avery"}, nil
		},
		insertPostFn: func(_ context.Context, post store.Post) (time.Time, error) {
			return time.Now().UTC(), nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, svc, http.MethodPost, "/api/posts", `{"image":"https://img.example/tree.png"}`))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var post store.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &post); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if post.Image != "https://img.example/tree.png" || post.Content != "" {
		t.Fatalf("unexpected post payload: %+v", post)
	}
}

func TestCommentEndpointOnMissingPost(t *testing.T) {
	fs := &fakeStore{
		appendPostCommentFn: func(context.Context, string, store.Comment) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, authedRequest(t, svc, http.MethodPost, "/api/posts/nope/comments", `{"content":"hi"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPostStreamDeliversEvents(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ts := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer ts.Close()

	session, err := svc.issueSession(context.Background(), store.User{ID: "user-1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/posts/stream", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event stream content type, got %q", got)
	}

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for svc.Hub().SubscriberCount(TopicPosts) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Hub().Publish(live.Event{Topic: TopicPosts, Type: live.EventCreated, Payload: map[string]string{"id": "post-1"}})

	scanner := bufio.NewScanner(resp.Body)
	sawCreated := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: created" {
			sawCreated = true
		}
		if sawCreated && strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, "post-1") {
				t.Fatalf("expected event payload with post id, got %q", line)
			}
			return
		}
	}
	t.Fatalf("stream closed without a created event: %v", scanner.Err())
}
