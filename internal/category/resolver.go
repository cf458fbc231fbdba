// Package category resolves a site's category IDs into readable
// breadcrumb paths using the site's navigation API.
package category

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Fetcher retrieves a navigation document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// unknownSegment is returned for category IDs absent from every loaded
// navigation tree.
const unknownSegment = "Unknown"

// nameAliases maps site spellings to the canonical catalog vocabulary.
var nameAliases = map[string]string{
	"SHOES": "FOOTWEAR",
}

type node struct {
	name   string
	parent string
}

// Resolver maps category IDs to root-to-leaf name paths. Load builds the
// table once; Path afterwards is read-only and safe for concurrent use.
type Resolver struct {
	nodes  map[string]node
	logger *zap.Logger
}

type navigationDoc struct {
	MenuData struct {
		Categories []navigationNode `json:"categories"`
	} `json:"menuData"`
}

type navigationNode struct {
	ID       json.Number      `json:"id"`
	Name     string           `json:"name"`
	Children []navigationNode `json:"children"`
}

// Load fetches every navigation URL and flattens the trees into one
// resolver. A later tree never overwrites an ID loaded by an earlier one.
func Load(ctx context.Context, fetcher Fetcher, urls []string, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{nodes: make(map[string]node), logger: logger}
	for _, url := range urls {
		body, err := fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch navigation %s: %w", url, err)
		}
		var doc navigationDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("parse navigation %s: %w", url, err)
		}
		for _, root := range doc.MenuData.Categories {
			r.flatten(root, "")
		}
	}
	logger.Info("navigation loaded",
		zap.Int("sections", len(urls)),
		zap.Int("categories", len(r.nodes)))
	return r, nil
}

func (r *Resolver) flatten(n navigationNode, parentID string) {
	id := n.ID.String()
	if id != "" {
		if _, seen := r.nodes[id]; !seen {
			r.nodes[id] = node{name: canonicalName(n.Name), parent: parentID}
		}
	}
	for _, child := range n.Children {
		r.flatten(child, id)
	}
}

// Path returns the root-to-leaf name path for id, or ["Unknown"] when the
// ID is not in any loaded tree.
func (r *Resolver) Path(id string) []string {
	if _, ok := r.nodes[id]; !ok {
		return []string{unknownSegment}
	}
	var reversed []string
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		if seen[cur] {
			r.logger.Warn("category cycle detected", zap.String("id", cur))
			break
		}
		seen[cur] = true
		n, ok := r.nodes[cur]
		if !ok {
			break
		}
		reversed = append(reversed, n.name)
		cur = n.parent
	}
	path := make([]string, len(reversed))
	for i, name := range reversed {
		path[len(reversed)-1-i] = name
	}
	return path
}

// Len reports how many category IDs were loaded.
func (r *Resolver) Len() int { return len(r.nodes) }

func canonicalName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if alias, ok := nameAliases[upper]; ok {
		return alias
	}
	return upper
}
