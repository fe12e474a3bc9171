package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var output bytes.Buffer
	root := newRootCommand()
	root.SetOut(&output)
	root.SetErr(&output)
	root.SetArgs(args)
	err := root.Execute()
	return output.String(), err
}

func TestProfileCommandListsAuthorPosts(t *testing.T) {
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.Method+" "+r.URL.Path)
		if r.URL.Path != "/posts/user/b@x.com" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"b-1","content":"first from b","authorEmail":"b@x.com","createdAt":"2024-03-01T12:00:00.000Z","likedBy":["a@x.com"],"dislikedBy":[],"comments":[]},
			{"id":"b-2","content":"second from b","authorEmail":"b@x.com","authorName":"Bea","createdAt":"2024-03-01T13:00:00.000Z","likedBy":[],"dislikedBy":[],"comments":[]}
		]`))
	}))
	defer server.Close()

	output, err := runCLI(t, "profile", "B@x.com", "--api-url", server.URL, "--no-color")
	if err != nil {
		t.Fatalf("unexpected error: %v (output %q)", err, output)
	}
	if len(requested) != 1 || requested[0] != "GET /posts/user/b@x.com" {
		t.Fatalf("unexpected requests %v", requested)
	}
	first := strings.Index(output, "second from b")
	second := strings.Index(output, "first from b")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected newest post first, got:\n%s", output)
	}
	if !strings.Contains(output, "[b-1]") || !strings.Contains(output, "+1 / -0") {
		t.Fatalf("unexpected output:\n%s", output)
	}
}

func TestProfileCommandWithoutIdentityFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	if _, err := runCLI(t, "profile", "--api-url", server.URL, "--no-color"); err == nil {
		t.Fatal("expected an error without an identity")
	}
}

func TestShowCommandPrintsPostWithComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/posts/p1":
			_, _ = w.Write([]byte(`{"id":"p1","content":"hello","authorEmail":"a@x.com","createdAt":"2024-03-01T12:00:00.000Z","likedBy":[],"dislikedBy":["b@x.com"]}`))
		case "/posts/p1/comments":
			_, _ = w.Write([]byte(`[{"id":"c1","postId":"p1","content":"nice","authorEmail":"b@x.com","createdAt":"2024-03-01T12:01:00.000Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	output, err := runCLI(t, "show", "p1", "--api-url", server.URL, "--no-color")
	if err != nil {
		t.Fatalf("unexpected error: %v (output %q)", err, output)
	}
	for _, want := range []string{"hello", "+0 / -1", "b@x.com: nice"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}
