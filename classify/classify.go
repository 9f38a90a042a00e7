// Package classify assigns a category label to a tab from a priority-ordered
// rule table. Pure and deterministic: a function of URL and title only.
package classify

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps URL/title patterns to a category. Patterns are case-insensitive
// substring matches; higher priority rules are tried first.
type Rule struct {
	Name          string   `yaml:"name"`
	Color         string   `yaml:"color,omitempty"`
	Priority      int      `yaml:"priority,omitempty"`
	URLPatterns   []string `yaml:"url_patterns,omitempty"`
	TitlePatterns []string `yaml:"title_patterns,omitempty"`
}

// Ruleset is an ordered rule table.
type Ruleset struct {
	rules []Rule
}

// New builds a Ruleset, ordering rules by priority descending. Rules with
// equal priority keep their declaration order.
func New(rules []Rule) *Ruleset {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return &Ruleset{rules: ordered}
}

// Load reads a YAML rule table:
//
//	rules:
//	  - name: Work
//	    color: blue
//	    priority: 10
//	    url_patterns: ["mail.example.com", "docs.example.com"]
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read rules: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("classify: parse rules: %w", err)
	}
	return New(doc.Rules), nil
}

// Len returns the number of rules.
func (rs *Ruleset) Len() int { return len(rs.rules) }

// Match returns the first rule (in priority order) whose patterns match the
// tab's URL or title. The second return is false when nothing matches.
func (rs *Ruleset) Match(url, title string) (Rule, bool) {
	lurl := strings.ToLower(url)
	ltitle := strings.ToLower(title)
	for _, r := range rs.rules {
		for _, p := range r.URLPatterns {
			if p != "" && strings.Contains(lurl, strings.ToLower(p)) {
				return r, true
			}
		}
		for _, p := range r.TitlePatterns {
			if p != "" && strings.Contains(ltitle, strings.ToLower(p)) {
				return r, true
			}
		}
	}
	return Rule{}, false
}
