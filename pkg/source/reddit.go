package source

import (
	"context"
	"fmt"
	"strconv"

	"github.com/feedlens/feedlens/pkg/domain"
)

// RedditFetcher pulls recent posts from a subreddit via the public JSON
// listing endpoint, no authentication required
type RedditFetcher struct {
	client  *Client
	baseURL string
}

// NewRedditFetcher creates a reddit fetcher
func NewRedditFetcher(client *Client) *RedditFetcher {
	return &RedditFetcher{client: client, baseURL: "https://www.reddit.com"}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				SelfText   string  `json:"selftext"`
				Author     string  `json:"author"`
				CreatedUTC float64 `json:"created_utc"`
				Permalink  string  `json:"permalink"`
				Flair      string  `json:"link_flair_text"`
				Score      int     `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch retrieves the newest posts from the configured subreddit
func (f *RedditFetcher) Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	limit := src.MaxItems
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", f.baseURL, src.Subreddit, limit)

	var listing redditListing
	if err := f.client.getJSON(ctx, url, nil, &listing); err != nil {
		return nil, fmt.Errorf("reddit %s: %w", src.Subreddit, err)
	}

	items := make([]domain.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		items = append(items, domain.RawItem{
			Title:        post.Title,
			Body:         post.SelfText,
			Author:       post.Author,
			CreatedAtRaw: strconv.FormatFloat(post.CreatedUTC, 'f', 0, 64),
			URL:          f.baseURL + post.Permalink,
			NativeID:     post.ID,
			Extra: map[string]string{
				"flair": post.Flair,
				"score": strconv.Itoa(post.Score),
			},
		})
	}
	return items, nil
}
