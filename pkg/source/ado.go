package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/feedlens/feedlens/pkg/domain"
)

// ADOFetcher pulls work items from Azure DevOps. It runs a WIQL query scoped
// to children of the configured parent work item, then loads the matched
// items in one batch call.
type ADOFetcher struct {
	client *Client
	pat    string // personal access token
}

// NewADOFetcher creates an azure devops fetcher
func NewADOFetcher(client *Client, pat string) *ADOFetcher {
	return &ADOFetcher{client: client, pat: pat}
}

type wiqlResult struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type workItemBatch struct {
	Value []struct {
		ID     int            `json:"id"`
		Fields map[string]any `json:"fields"`
	} `json:"value"`
}

// Fetch retrieves work items under the configured parent
func (f *ADOFetcher) Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	headers := map[string]string{}
	if f.pat != "" {
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+f.pat))
	}

	query := "SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = @project ORDER BY [System.CreatedDate] DESC"
	if src.ParentWorkID != "" {
		query = fmt.Sprintf("SELECT [System.Id] FROM WorkItemLinks WHERE [Source].[System.Id] = %s "+
			"AND [System.Links.LinkType] = 'System.LinkTypes.Hierarchy-Forward' MODE (Recursive)", src.ParentWorkID)
	}

	wiqlURL := fmt.Sprintf("%s/%s/_apis/wit/wiql?api-version=7.0", strings.TrimRight(src.OrgURL, "/"), src.Project)
	var wiql wiqlResult
	if err := f.client.postJSON(ctx, wiqlURL, headers, map[string]string{"query": query}, &wiql); err != nil {
		return nil, fmt.Errorf("ado wiql %s: %w", src.Project, err)
	}
	if len(wiql.WorkItems) == 0 {
		return nil, nil
	}

	max := src.MaxItems
	if max <= 0 || max > 200 {
		max = 200
	}
	ids := make([]int, 0, max)
	for _, wi := range wiql.WorkItems {
		if src.ParentWorkID != "" && strconv.Itoa(wi.ID) == src.ParentWorkID {
			continue // the parent itself is not feedback
		}
		ids = append(ids, wi.ID)
		if len(ids) == max {
			break
		}
	}

	batchURL := fmt.Sprintf("%s/%s/_apis/wit/workitemsbatch?api-version=7.0", strings.TrimRight(src.OrgURL, "/"), src.Project)
	batchReq := map[string]any{
		"ids":    ids,
		"fields": []string{"System.Id", "System.Title", "System.Description", "System.CreatedBy", "System.CreatedDate", "System.State", "System.Tags"},
	}
	var batch workItemBatch
	if err := f.client.postJSON(ctx, batchURL, headers, batchReq, &batch); err != nil {
		return nil, fmt.Errorf("ado batch %s: %w", src.Project, err)
	}

	items := make([]domain.RawItem, 0, len(batch.Value))
	for _, wi := range batch.Value {
		items = append(items, domain.RawItem{
			Title:        fieldString(wi.Fields, "System.Title"),
			Body:         fieldString(wi.Fields, "System.Description"),
			Author:       adoAuthor(wi.Fields["System.CreatedBy"]),
			CreatedAtRaw: fieldString(wi.Fields, "System.CreatedDate"),
			URL:          fmt.Sprintf("%s/%s/_workitems/edit/%d", strings.TrimRight(src.OrgURL, "/"), src.Project, wi.ID),
			NativeID:     strconv.Itoa(wi.ID),
			Extra: map[string]string{
				"state": fieldString(wi.Fields, "System.State"),
				"tags":  fieldString(wi.Fields, "System.Tags"),
			},
		})
	}
	return items, nil
}

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// adoAuthor unpacks the identity object the API returns for person fields
func adoAuthor(v any) string {
	if m, ok := v.(map[string]any); ok {
		if name, ok := m["displayName"].(string); ok {
			return name
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
