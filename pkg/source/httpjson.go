package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/feedlens/feedlens/pkg/domain"
)

// HTTPJSONFetcher is the escape hatch for custom endpoints: it expects a JSON
// array of flat objects and maps common field names onto raw items. Unknown
// fields are preserved in Extra.
type HTTPJSONFetcher struct {
	client *Client
}

// NewHTTPJSONFetcher creates a generic JSON endpoint fetcher
func NewHTTPJSONFetcher(client *Client) *HTTPJSONFetcher {
	return &HTTPJSONFetcher{client: client}
}

// field name candidates tried in order for each raw item slot
var (
	titleFields   = []string{"title", "subject", "name", "summary"}
	bodyFields    = []string{"body", "text", "description", "content", "message"}
	authorFields  = []string{"author", "user", "username", "reporter"}
	createdFields = []string{"created_at", "createdAt", "created", "date", "timestamp"}
	urlFields     = []string{"url", "link", "html_url", "permalink"}
	idFields      = []string{"id", "guid", "key", "uid"}
)

// Fetch retrieves and maps a JSON array endpoint
func (f *HTTPJSONFetcher) Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	var payload []map[string]json.RawMessage
	if err := f.client.getJSON(ctx, src.URL, nil, &payload); err != nil {
		return nil, fmt.Errorf("httpjson %s: %w", src.Name, err)
	}

	items := make([]domain.RawItem, 0, len(payload))
	for _, obj := range payload {
		item := domain.RawItem{
			Title:        pickString(obj, titleFields),
			Body:         pickString(obj, bodyFields),
			Author:       pickString(obj, authorFields),
			CreatedAtRaw: pickString(obj, createdFields),
			URL:          pickString(obj, urlFields),
			NativeID:     pickString(obj, idFields),
			Extra:        map[string]string{},
		}
		for k, v := range obj {
			if !known(k) {
				item.Extra[k] = rawToString(v)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func pickString(obj map[string]json.RawMessage, candidates []string) string {
	for _, key := range candidates {
		if raw, ok := obj[key]; ok {
			if s := rawToString(raw); s != "" {
				return s
			}
		}
	}
	return ""
}

// rawToString renders a scalar JSON value as text, objects and arrays as-is
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}

func known(key string) bool {
	for _, set := range [][]string{titleFields, bodyFields, authorFields, createdFields, urlFields, idFields} {
		for _, k := range set {
			if k == key {
				return true
			}
		}
	}
	return false
}
