package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/feedlens/feedlens/pkg/domain"
)

// GitHubFetcher pulls open issues from a repository via the REST API.
// A token is optional; without one the anonymous rate limit applies.
type GitHubFetcher struct {
	client  *Client
	baseURL string
	token   string
}

// NewGitHubFetcher creates a github fetcher, token may be empty
func NewGitHubFetcher(client *Client, token string) *GitHubFetcher {
	return &GitHubFetcher{client: client, baseURL: "https://api.github.com", token: token}
}

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// Fetch retrieves open issues for the configured repository, skipping pull
// requests which the issues endpoint also returns
func (f *GitHubFetcher) Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	perPage := src.MaxItems
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&sort=created&direction=desc&per_page=%d",
		f.baseURL, src.Owner, src.Repo, perPage)

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if f.token != "" {
		headers["Authorization"] = "Bearer " + f.token
	}

	var issues []githubIssue
	if err := f.client.getJSON(ctx, url, headers, &issues); err != nil {
		return nil, fmt.Errorf("github %s/%s: %w", src.Owner, src.Repo, err)
	}

	items := make([]domain.RawItem, 0, len(issues))
	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.Name)
		}
		items = append(items, domain.RawItem{
			Title:        issue.Title,
			Body:         issue.Body,
			Author:       issue.User.Login,
			CreatedAtRaw: issue.CreatedAt,
			URL:          issue.HTMLURL,
			NativeID:     strconv.Itoa(issue.Number),
			Extra:        map[string]string{"labels": strings.Join(labels, ",")},
		})
	}
	return items, nil
}
