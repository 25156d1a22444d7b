package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// Tree is the materialized form of a derivation-tree string. Nonterminal nodes
// own their ordered children; terminal nodes are leaves. String and ParseTree
// round-trip exactly, so the string form stays the interchange format while
// structural operations work on nodes.
type Tree struct {
	Symbol   string
	Terminal bool
	Children []*Tree
}

// ParseTree reads the whitespace-tokenized parenthesized encoding, e.g.
// "(S (T 2) (ADD +) (T 1))".
func ParseTree(s string) (*Tree, error) {
	var (
		root  *Tree
		stack []*Tree
	)
	attach := func(node *Tree) error {
		if len(stack) == 0 {
			if root != nil {
				return errors.New("multiple root nodes")
			}
			if node.Terminal {
				return errors.New("terminal outside any scope")
			}
			root = node
			return nil
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		return nil
	}

	for _, tok := range strings.Fields(s) {
		closes := 0
		for strings.HasSuffix(tok, ")") {
			tok = tok[:len(tok)-1]
			closes++
		}
		switch {
		case strings.HasPrefix(tok, "("):
			if len(tok) == 1 {
				return nil, errors.New("empty nonterminal token")
			}
			node := &Tree{Symbol: tok[1:]}
			if err := attach(node); err != nil {
				return nil, err
			}
			stack = append(stack, node)
		case tok != "":
			if err := attach(&Tree{Symbol: tok, Terminal: true}); err != nil {
				return nil, err
			}
		}
		if closes > len(stack) {
			return nil, errors.New("unbalanced closing bracket")
		}
		stack = stack[:len(stack)-closes]
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed scopes: %d", len(stack))
	}
	if root == nil {
		return nil, errors.New("empty tree")
	}
	return root, nil
}

func (t *Tree) String() string {
	if t.Terminal {
		return t.Symbol
	}
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(t.Symbol)
	for _, c := range t.Children {
		b.WriteString(" ")
		b.WriteString(c.String())
	}
	b.WriteString(")")
	return b.String()
}

// Depth is the number of levels in the tree, terminals included: a lone
// terminal counts 1, a nonterminal 1 + the deepest child. This matches the
// depth bound Generator enforces.
func (t *Tree) Depth() int {
	if t.Terminal || len(t.Children) == 0 {
		return 1
	}
	max := 0
	for _, c := range t.Children {
		if d := c.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

func (t *Tree) TerminalCount() int {
	if t.Terminal {
		return 1
	}
	n := 0
	for _, c := range t.Children {
		n += c.TerminalCount()
	}
	return n
}

// Terminals returns the in-order terminal sequence, the sentence the tree
// derives.
func (t *Tree) Terminals() []string {
	if t.Terminal {
		return []string{t.Symbol}
	}
	var out []string
	for _, c := range t.Children {
		out = append(out, c.Terminals()...)
	}
	return out
}

func (t *Tree) Clone() *Tree {
	clone := &Tree{Symbol: t.Symbol, Terminal: t.Terminal}
	if len(t.Children) > 0 {
		clone.Children = make([]*Tree, len(t.Children))
		for i, c := range t.Children {
			clone.Children[i] = c.Clone()
		}
	}
	return clone
}

// NodeAt resolves a token index (the position of a node's head token in the
// string form) to its node.
func (t *Tree) NodeAt(index int) (*Tree, bool) {
	node, _ := t.nodeAt(index, 0)
	return node, node != nil
}

func (t *Tree) nodeAt(target, offset int) (*Tree, int) {
	if offset == target {
		return t, offset
	}
	next := offset + 1
	if t.Terminal {
		return nil, next
	}
	for _, c := range t.Children {
		var found *Tree
		found, next = c.nodeAt(target, next)
		if found != nil {
			return found, next
		}
	}
	return nil, next
}

// ReplaceAt swaps the subtree whose head sits at the given token index for the
// replacement node, returning false if the index does not resolve or points at
// the root.
func (t *Tree) ReplaceAt(index int, replacement *Tree) bool {
	if index == 0 {
		return false
	}
	return t.replaceAt(index, 0, replacement) < 0
}

// replaceAt returns the running token offset, or a negative value once the
// replacement has been spliced in.
func (t *Tree) replaceAt(target, offset int, replacement *Tree) int {
	next := offset + 1
	if t.Terminal {
		return next
	}
	for i, c := range t.Children {
		if next == target {
			t.Children[i] = replacement
			return -1
		}
		next = c.replaceAt(target, next, replacement)
		if next < 0 {
			return next
		}
	}
	return next
}
