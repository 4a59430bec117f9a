// Package dirtree builds a hierarchical index over a flat list of
// folder paths so that LIST-style commands can answer parent/child
// existence queries cheaply.
//
// A tree is built fresh from a folder listing each time it is needed;
// it carries no identity between calls. Nodes live in a flat arena and
// are addressed by integer handles, so the whole structure is freed at
// once when the tree goes out of scope.
package dirtree

import "strings"

// Handle addresses a node inside a Tree. The zero Handle is the root.
type Handle int

// NotFound is returned by Match for paths absent from the tree.
const NotFound Handle = -1

type node struct {
	name        string
	parent      Handle
	firstChild  Handle
	nextSibling Handle

	// loaded is true when this exact path appeared in the source
	// listing, false when the node exists only as an inferred
	// ancestor of a deeper path.
	loaded bool
}

// Tree is a folder hierarchy index. The zero value is not usable;
// call Build.
type Tree struct {
	nodes []node
}

// Build constructs a tree from a flat list of folder paths. Paths are
// split on "/"; intermediate nodes are created lazily and marked not
// loaded until the same path later appears as a listing entry.
func Build(paths []string) *Tree {
	t := &Tree{nodes: []node{{name: "", parent: NotFound, firstChild: NotFound, nextSibling: NotFound, loaded: true}}}
	for _, p := range paths {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		cur := Handle(0)
		for _, seg := range strings.Split(p, "/") {
			next := t.findChild(cur, seg, false)
			if next == NotFound {
				next = t.addChild(cur, seg)
			}
			cur = next
		}
		t.nodes[cur].loaded = true
	}
	return t
}

func (t *Tree) addChild(parent Handle, name string) Handle {
	h := Handle(len(t.nodes))
	t.nodes = append(t.nodes, node{name: name, parent: parent, firstChild: NotFound, nextSibling: NotFound})
	// Append as last sibling to keep listing order stable.
	if t.nodes[parent].firstChild == NotFound {
		t.nodes[parent].firstChild = h
		return h
	}
	c := t.nodes[parent].firstChild
	for t.nodes[c].nextSibling != NotFound {
		c = t.nodes[c].nextSibling
	}
	t.nodes[c].nextSibling = h
	return h
}

func (t *Tree) findChild(parent Handle, seg string, inboxAlias bool) Handle {
	for c := t.nodes[parent].firstChild; c != NotFound; c = t.nodes[c].nextSibling {
		if t.nodes[c].name == seg {
			return c
		}
		// At the top level the inbox matches case-insensitively in
		// both directions: a stored "INBOX" answers a query for
		// "inbox" and the other way around.
		if inboxAlias && strings.EqualFold(seg, "inbox") && strings.EqualFold(t.nodes[c].name, "inbox") {
			return c
		}
	}
	return NotFound
}

// Match walks the tree segment by segment and returns the handle of
// the node for path, or NotFound. The empty path matches the root.
func (t *Tree) Match(path string) Handle {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return 0
	}
	cur := Handle(0)
	for depth, seg := range strings.Split(path, "/") {
		cur = t.findChild(cur, seg, depth == 0)
		if cur == NotFound {
			return NotFound
		}
	}
	return cur
}

// HasChildren reports whether the node has at least one child.
func (t *Tree) HasChildren(h Handle) bool {
	return h != NotFound && t.nodes[h].firstChild != NotFound
}

// Loaded reports whether the node's exact path was present in the
// source listing.
func (t *Tree) Loaded(h Handle) bool {
	return h != NotFound && t.nodes[h].loaded
}
