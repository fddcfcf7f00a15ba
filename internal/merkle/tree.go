// Package merkle builds and proves membership in binary Merkle trees over
// either raw data blocks (CLI mode) or file contents (service mode). The
// pairwise, bottom-up construction and duplicate-last odd-node policy are
// ported directly from original_source/python/merkle_tree.py, the
// implementation this service's tree semantics were distilled from; the
// Go shape (Node/Level arena, canonical JSON body) follows the teacher's
// content-addressed object conventions (systemshift-memex-fs's
// internal/dag/node.go CanonicalJSON helper, adapted below).
//
// Leaf hashes are not domain-separated from interior hashes. The original
// implementation does not separate them either, and preserving that keeps
// root hashes compatible with any existing deployment — at the cost of
// leaving the construction theoretically open to a second-preimage attack
// that substitutes a leaf for an interior node of the same hash. This is a
// known, deliberate limitation (see SPEC_FULL.md §9).
package merkle

import (
	"sort"

	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/hashutil"
)

// Mode selects how a Builder input is turned into a leaf hash.
type Mode int

const (
	// ModeData hashes each item as a raw UTF-8 data block (CLI mode).
	ModeData Mode = iota
	// ModeFiles hashes each item as the path to a file to stream-hash
	// (service mode).
	ModeFiles
)

// Node is either a Leaf or an Interior; Children is nil for leaves.
type Node struct {
	Hash     hashutil.Hash `json:"hash"`
	Source   string        `json:"source,omitempty"` // data block or file path, leaves only
	Children *[2]int       `json:"-"`                // arena indices of the left and right child
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return n.Children == nil }

// Level is an ordered sequence of node indices within a Tree's flat arena.
type Level []int

// Tree is the full result of a build: a flat arena of nodes plus the level
// structure needed to walk it for proof generation. Interior nodes reference
// children by arena index rather than by pointer, so the same node identity
// is visible from both Root and Levels, per SPEC_FULL.md §9.
type Tree struct {
	arena  []Node
	Levels []Level
}

// Root returns the tree's root node (the sole node of the last level).
// Root must not be called on an empty tree.
func (t *Tree) Root() *Node {
	last := t.Levels[len(t.Levels)-1]
	return &t.arena[last[0]]
}

// Node returns the arena node at idx.
func (t *Tree) Node(idx int) *Node { return &t.arena[idx] }

// Leaves returns the Level-0 node indices.
func (t *Tree) Leaves() Level { return t.Levels[0] }

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int { return len(t.Levels[0]) }

// Build constructs a Tree from items in order. mode selects how each item is
// turned into a leaf hash. Build fails with KindEmpty if items is empty (the
// service never builds zero-leaf trees; the caller is expected to have
// already checked this via the walker, but Build enforces it independently).
func Build(items []string, mode Mode) (*Tree, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.KindEmpty, "merkle.Build", nil)
	}

	t := &Tree{}
	level0 := make(Level, 0, len(items))
	for _, item := range items {
		h, err := leafHash(item, mode)
		if err != nil {
			return nil, err
		}
		idx := t.appendNode(Node{Hash: h, Source: item})
		level0 = append(level0, idx)
	}
	t.Levels = append(t.Levels, level0)

	for len(t.Levels[len(t.Levels)-1]) > 1 {
		cur := t.Levels[len(t.Levels)-1]
		next := make(Level, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			leftIdx := cur[i]
			rightIdx := leftIdx
			if i+1 < len(cur) {
				rightIdx = cur[i+1]
			}
			left := &t.arena[leftIdx]
			right := &t.arena[rightIdx]
			parentHash := hashutil.HashConcat(left.Hash, right.Hash)
			parentIdx := t.appendNode(Node{Hash: parentHash, Children: &[2]int{leftIdx, rightIdx}})
			next = append(next, parentIdx)
		}
		t.Levels = append(t.Levels, next)
	}

	return t, nil
}

func (t *Tree) appendNode(n Node) int {
	t.arena = append(t.arena, n)
	return len(t.arena) - 1
}

func leafHash(item string, mode Mode) (hashutil.Hash, error) {
	switch mode {
	case ModeFiles:
		h, err := hashutil.HashFile(item)
		if err != nil {
			return "", err
		}
		return h, nil
	default:
		return hashutil.HashBytes(item), nil
	}
}

// LevelCount returns ⌈log2(max(N,1))⌉ + 1 for an N-leaf tree, matching
// len(t.Levels).
func LevelCount(n int) int {
	if n <= 1 {
		return 1
	}
	count := 1
	size := 1
	for size < n {
		size *= 2
		count++
	}
	return count
}

// SortedPaths returns a lexicographically sorted copy of paths, for callers
// that need a stable item order before calling Build in ModeFiles. Nothing in
// this module calls it: the walker sorts its own output, and the CLI's
// --input-file keeps the file's line order.
func SortedPaths(paths []string) []string {
	out := make([]string, len(paths))
	copy(out, paths)
	sort.Strings(out)
	return out
}
