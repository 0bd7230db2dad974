package transfer

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// homepageEntry is one link of a Homepage bookmarks.yaml or services.yaml.
type homepageEntry struct {
	Href        string `yaml:"href"`
	Abbr        string `yaml:"abbr,omitempty"`
	Icon        string `yaml:"icon,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// homepageGroup maps a group name to its entries. Homepage writes
// bookmarks as lists of single-entry lists and services as plain maps,
// so each entry node is decoded leniently.
type homepageGroup map[string][]map[string]yaml.Node

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// stripTemplateVariables blanks Homepage's {{HOMEPAGE_VAR_...}} placeholders.
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}

// ParseHomepage reads a Homepage bookmarks.yaml (or services.yaml). The
// group name becomes a tag, the entry name the title.
func ParseHomepage(r io.Reader) ([]domain.NewBookmark, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read homepage yaml: %w", err)
	}
	data = stripTemplateVariables(data)

	var groups []homepageGroup
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse homepage yaml: %w", err)
	}

	var out []domain.NewBookmark
	for _, group := range groups {
		for groupName, entries := range group {
			for _, entryMap := range entries {
				for name, node := range entryMap {
					e, ok := decodeHomepageEntry(&node)
					if !ok || e.Href == "" {
						continue
					}
					out = append(out, domain.NewBookmark{
						URL:         e.Href,
						Title:       strings.TrimSpace(name),
						Description: e.Description,
						Tags:        []string{strings.ToLower(strings.TrimSpace(groupName))},
						SkipEnrich:  true,
					})
				}
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid bookmarks found in homepage yaml")
	}
	return out, nil
}

// decodeHomepageEntry accepts both `name: {href: ...}` and
// `name: [{href: ...}]`; only the first list element is used.
func decodeHomepageEntry(n *yaml.Node) (homepageEntry, bool) {
	var e homepageEntry
	switch n.Kind {
	case yaml.MappingNode:
		if err := n.Decode(&e); err != nil {
			return e, false
		}
	case yaml.SequenceNode:
		var list []homepageEntry
		if err := n.Decode(&list); err != nil || len(list) == 0 {
			return e, false
		}
		e = list[0]
	default:
		return e, false
	}
	return e, true
}
