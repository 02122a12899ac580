package domain

import "fmt"

// SourceKind discriminates the closed set of supported source configurations
type SourceKind string

// supported source kinds
const (
	SourceReddit    SourceKind = "reddit"
	SourceGitHub    SourceKind = "github"
	SourceADO       SourceKind = "ado"
	SourceCommunity SourceKind = "community"
	SourceHTTPJSON  SourceKind = "httpjson"
)

// SourceConfig is a closed tagged variant describing one feedback source.
// Exactly the fields relevant to its Kind are required; Validate enforces
// this at configuration load, before anything enters the pipeline.
type SourceConfig struct {
	Name    string     `yaml:"name" json:"name"`
	Kind    SourceKind `yaml:"kind" json:"kind"`
	Enabled bool       `yaml:"enabled" json:"enabled"`

	// reddit
	Subreddit string `yaml:"subreddit,omitempty" json:"subreddit,omitempty"`

	// github
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Repo  string `yaml:"repo,omitempty" json:"repo,omitempty"`

	// ado
	OrgURL       string `yaml:"org_url,omitempty" json:"org_url,omitempty"`
	Project      string `yaml:"project,omitempty" json:"project,omitempty"`
	ParentWorkID string `yaml:"parent_work_id,omitempty" json:"parent_work_id,omitempty"`

	// community and httpjson
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	MaxItems int `yaml:"max_items,omitempty" json:"max_items,omitempty"`
}

// Validate checks the variant has the fields its kind requires
func (s SourceConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	switch s.Kind {
	case SourceReddit:
		if s.Subreddit == "" {
			return fmt.Errorf("source %s: subreddit is required for reddit kind", s.Name)
		}
	case SourceGitHub:
		if s.Owner == "" || s.Repo == "" {
			return fmt.Errorf("source %s: owner and repo are required for github kind", s.Name)
		}
	case SourceADO:
		if s.OrgURL == "" || s.Project == "" {
			return fmt.Errorf("source %s: org_url and project are required for ado kind", s.Name)
		}
	case SourceCommunity, SourceHTTPJSON:
		if s.URL == "" {
			return fmt.Errorf("source %s: url is required for %s kind", s.Name, s.Kind)
		}
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}
