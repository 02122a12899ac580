package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/feedlens/pkg/domain"
)

func TestRedditFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/vscode/new.json", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {"children": [
				{"data": {"id": "abc1", "title": "Crash on save", "selftext": "it crashes",
					"author": "u1", "created_utc": 1717243200, "permalink": "/r/vscode/abc1",
					"link_flair_text": "bug", "score": 42}},
				{"data": {"id": "abc2", "title": "Feature idea", "selftext": "",
					"author": "u2", "created_utc": 1717243300, "permalink": "/r/vscode/abc2"}}
			]}
		}`))
	}))
	defer ts.Close()

	f := NewRedditFetcher(NewClient(5 * time.Second))
	f.baseURL = ts.URL

	items, err := f.Fetch(context.Background(), domain.SourceConfig{
		Name: "vscode", Kind: domain.SourceReddit, Subreddit: "vscode", MaxItems: 25,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Crash on save", items[0].Title)
	assert.Equal(t, "it crashes", items[0].Body)
	assert.Equal(t, "u1", items[0].Author)
	assert.Equal(t, "1717243200", items[0].CreatedAtRaw)
	assert.Equal(t, ts.URL+"/r/vscode/abc1", items[0].URL)
	assert.Equal(t, "abc1", items[0].NativeID)
	assert.Equal(t, "bug", items[0].Extra["flair"])
	assert.Equal(t, "42", items[0].Extra["score"])
}

func TestGitHubFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/example/cli/issues", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"number": 12, "title": "Panic on empty input", "body": "stack trace here",
				"html_url": "https://github.com/example/cli/issues/12",
				"created_at": "2024-06-01T10:00:00Z",
				"user": {"login": "dev1"},
				"labels": [{"name": "bug"}, {"name": "p1"}]},
			{"number": 13, "title": "A pull request", "body": "",
				"html_url": "https://github.com/example/cli/pull/13",
				"created_at": "2024-06-01T11:00:00Z",
				"user": {"login": "dev2"},
				"labels": [],
				"pull_request": {}}
		]`))
	}))
	defer ts.Close()

	f := NewGitHubFetcher(NewClient(5*time.Second), "tok")
	f.baseURL = ts.URL

	items, err := f.Fetch(context.Background(), domain.SourceConfig{
		Name: "cli", Kind: domain.SourceGitHub, Owner: "example", Repo: "cli",
	})
	require.NoError(t, err)
	require.Len(t, items, 1, "pull requests are skipped")

	assert.Equal(t, "Panic on empty input", items[0].Title)
	assert.Equal(t, "12", items[0].NativeID)
	assert.Equal(t, "2024-06-01T10:00:00Z", items[0].CreatedAtRaw)
	assert.Equal(t, "bug,p1", items[0].Extra["labels"])
}

func TestCommunityFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"topic_list": {"topics": [
				{"id": 7, "title": "Export button missing", "excerpt": "where did it go",
					"created_at": "2024-06-01T09:00:00Z", "slug": "export-button-missing", "posts_count": 4}
			]}
		}`))
	}))
	defer ts.Close()

	f := NewCommunityFetcher(NewClient(5 * time.Second))
	items, err := f.Fetch(context.Background(), domain.SourceConfig{
		Name: "forum", Kind: domain.SourceCommunity, URL: ts.URL,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Export button missing", items[0].Title)
	assert.Equal(t, ts.URL+"/t/export-button-missing/7", items[0].URL)
	assert.Equal(t, "7", items[0].NativeID)
	assert.Equal(t, "4", items[0].Extra["posts"])
}

func TestHTTPJSONFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"title": "Sync loses edits", "description": "edits vanish after sync",
				"reporter": "qa-bot", "created_at": "2024-06-01", "link": "https://tracker/1",
				"id": 101, "severity": "high"},
			{"subject": "Add dark mode", "text": "please", "date": "2024-06-02", "guid": "t-2"}
		]`))
	}))
	defer ts.Close()

	f := NewHTTPJSONFetcher(NewClient(5 * time.Second))
	items, err := f.Fetch(context.Background(), domain.SourceConfig{
		Name: "tracker", Kind: domain.SourceHTTPJSON, URL: ts.URL,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Sync loses edits", items[0].Title)
	assert.Equal(t, "edits vanish after sync", items[0].Body)
	assert.Equal(t, "qa-bot", items[0].Author)
	assert.Equal(t, "101", items[0].NativeID)
	assert.Equal(t, "https://tracker/1", items[0].URL)
	assert.Equal(t, "high", items[0].Extra["severity"], "unknown fields preserved")

	assert.Equal(t, "Add dark mode", items[1].Title, "alternate field names mapped")
	assert.Equal(t, "please", items[1].Body)
	assert.Equal(t, "t-2", items[1].NativeID)
}

func TestClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	f := NewHTTPJSONFetcher(NewClient(5 * time.Second))
	_, err := f.Fetch(context.Background(), domain.SourceConfig{Name: "x", Kind: domain.SourceHTTPJSON, URL: ts.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer ts.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewHTTPJSONFetcher(NewClient(5 * time.Second))
	_, err := f.Fetch(ctx, domain.SourceConfig{Name: "x", Kind: domain.SourceHTTPJSON, URL: ts.URL})
	assert.Error(t, err)
}

func TestADOFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/proj/_apis/wit/wiql":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"workItems": [{"id": 100}, {"id": 101}, {"id": 102}]}`))
		case "/proj/_apis/wit/workitemsbatch":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"value": [
				{"id": 101, "fields": {
					"System.Title": "Telemetry spike",
					"System.Description": "cpu at 100%",
					"System.CreatedBy": {"displayName": "PM One"},
					"System.CreatedDate": "2024-06-01T08:00:00Z",
					"System.State": "Active",
					"System.Tags": "perf"}},
				{"id": 102, "fields": {
					"System.Title": "Docs unclear",
					"System.CreatedDate": "2024-06-02T08:00:00Z"}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	f := NewADOFetcher(NewClient(5*time.Second), "pat")
	items, err := f.Fetch(context.Background(), domain.SourceConfig{
		Name: "backlog", Kind: domain.SourceADO,
		OrgURL: ts.URL, Project: "proj", ParentWorkID: "100",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Telemetry spike", items[0].Title)
	assert.Equal(t, "cpu at 100%", items[0].Body)
	assert.Equal(t, "PM One", items[0].Author)
	assert.Equal(t, "101", items[0].NativeID)
	assert.Equal(t, "perf", items[0].Extra["tags"])
	assert.Equal(t, ts.URL+"/proj/_workitems/edit/101", items[0].URL)

	assert.Equal(t, "Docs unclear", items[1].Title)
	assert.Empty(t, items[1].Author)
}
