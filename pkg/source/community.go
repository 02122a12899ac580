package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/feedlens/feedlens/pkg/domain"
)

// CommunityFetcher pulls the latest topics from a Discourse-compatible forum
// via its public JSON surface
type CommunityFetcher struct {
	client *Client
}

// NewCommunityFetcher creates a community forum fetcher
func NewCommunityFetcher(client *Client) *CommunityFetcher {
	return &CommunityFetcher{client: client}
}

type discourseLatest struct {
	TopicList struct {
		Topics []struct {
			ID        int    `json:"id"`
			Title     string `json:"title"`
			Excerpt   string `json:"excerpt"`
			CreatedAt string `json:"created_at"`
			Slug      string `json:"slug"`
			PostsCnt  int    `json:"posts_count"`
		} `json:"topics"`
	} `json:"topic_list"`
	Users []struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	} `json:"users"`
}

// Fetch retrieves the latest forum topics
func (f *CommunityFetcher) Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	base := strings.TrimRight(src.URL, "/")

	var latest discourseLatest
	if err := f.client.getJSON(ctx, base+"/latest.json", nil, &latest); err != nil {
		return nil, fmt.Errorf("community %s: %w", src.Name, err)
	}

	items := make([]domain.RawItem, 0, len(latest.TopicList.Topics))
	for _, topic := range latest.TopicList.Topics {
		items = append(items, domain.RawItem{
			Title:        topic.Title,
			Body:         topic.Excerpt,
			CreatedAtRaw: topic.CreatedAt,
			URL:          fmt.Sprintf("%s/t/%s/%d", base, topic.Slug, topic.ID),
			NativeID:     strconv.Itoa(topic.ID),
			Extra:        map[string]string{"posts": strconv.Itoa(topic.PostsCnt)},
		})
	}
	return items, nil
}
