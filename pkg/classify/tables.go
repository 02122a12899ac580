package classify

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yml
var defaultTables []byte

// Keyword is one weighted cue in a subcategory keyword list
type Keyword struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

// Subcategory holds a weighted keyword list and optional declared attributes.
// Declaration order is significant: earlier subcategories win score ties.
type Subcategory struct {
	Name     string    `yaml:"name"`
	Domain   string    `yaml:"domain,omitempty"`
	Priority string    `yaml:"priority,omitempty"`
	Keywords []Keyword `yaml:"keywords"`
}

// Category groups subcategories under a primary category name
type Category struct {
	Name          string        `yaml:"name"`
	Subcategories []Subcategory `yaml:"subcategories"`
}

// DomainTable is a cross-cutting domain with its own keyword list, used as a
// fallback when a winning subcategory declares no domain
type DomainTable struct {
	Name     string    `yaml:"name"`
	Keywords []Keyword `yaml:"keywords"`
}

// Tables is the versioned, data-driven classification configuration consumed
// by the pure matching functions. Loaded once, never mutated.
type Tables struct {
	Version    string        `yaml:"version"`
	MinScore   float64       `yaml:"min_score"`
	Categories []Category    `yaml:"categories"`
	Domains    []DomainTable `yaml:"domains"`

	Audience map[string][]string `yaml:"audience"`
	Severity struct {
		Critical []string `yaml:"critical"`
		High     []string `yaml:"high"`
		Low      []string `yaml:"low"`
	} `yaml:"severity"`
	Sentiment struct {
		Positive []string `yaml:"positive"`
		Negative []string `yaml:"negative"`
		Margin   int      `yaml:"margin"`
	} `yaml:"sentiment"`
	Impact struct {
		Bug      []string `yaml:"bug"`
		Feature  []string `yaml:"feature"`
		Question []string `yaml:"question"`
	} `yaml:"impact"`
}

// DefaultTables returns the embedded classification tables
func DefaultTables() (*Tables, error) {
	return parseTables(defaultTables)
}

// LoadTables reads classification tables from a YAML file, falling back to
// nothing - a broken tables file is a startup error, not a degraded run
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from config
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}
	return parseTables(data)
}

func parseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}

	if t.MinScore < 0 || t.MinScore > 1 {
		return nil, fmt.Errorf("min_score must be within [0,1], got %v", t.MinScore)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("tables define no categories")
	}
	for _, c := range t.Categories {
		if len(c.Subcategories) == 0 {
			return nil, fmt.Errorf("category %q has no subcategories", c.Name)
		}
		for _, sc := range c.Subcategories {
			if len(sc.Keywords) == 0 {
				return nil, fmt.Errorf("subcategory %q has no keywords", sc.Name)
			}
		}
	}
	if t.Sentiment.Margin == 0 {
		t.Sentiment.Margin = 1
	}

	// default keyword weight is 1
	for ci := range t.Categories {
		for si := range t.Categories[ci].Subcategories {
			kws := t.Categories[ci].Subcategories[si].Keywords
			for ki := range kws {
				if kws[ki].Weight == 0 {
					kws[ki].Weight = 1
				}
			}
		}
	}
	for di := range t.Domains {
		for ki := range t.Domains[di].Keywords {
			if t.Domains[di].Keywords[ki].Weight == 0 {
				t.Domains[di].Keywords[ki].Weight = 1
			}
		}
	}

	return &t, nil
}
