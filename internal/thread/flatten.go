package thread

type frame struct {
	node   *Node
	parent string
	depth  int
	root   bool
}

// Walk visits every node of the forest in pre-order, depth first, and calls
// fn with the hoisted comment and its nesting depth (0 for roots).
//
// Siblings are visited in the order given. The traversal uses an explicit
// stack, so reply depth is bounded only by memory. A node already visited,
// either as the same pointer or under the same non-empty ID, is skipped
// together with its subtree, which breaks cycles and drops duplicates. Nil
// nodes are ignored.
func Walk(roots []*Node, fn func(c Comment, depth int)) {
	visited := make(map[string]struct{})
	seenNodes := make(map[*Node]struct{})
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i], root: true})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil {
			continue
		}
		if _, seen := seenNodes[f.node]; seen {
			continue
		}
		seenNodes[f.node] = struct{}{}

		c := f.node.Comment
		if c.ID != "" {
			if _, seen := visited[c.ID]; seen {
				continue
			}
			visited[c.ID] = struct{}{}
		}
		if f.root {
			if c.ParentID == c.ID {
				c.ParentID = ""
			}
		} else {
			c.ParentID = f.parent
		}
		c.Author = AuthorOrUnknown(c.Author)

		fn(c, f.depth)

		children := f.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], parent: c.ID, depth: f.depth + 1})
		}
	}
}

// Flatten hoists a reply forest into a flat, parent-linked sequence. Parents
// always precede their descendants. It never fails; empty input yields an
// empty (non-nil) slice.
func Flatten(roots []*Node) []Comment {
	out := make([]Comment, 0, len(roots))
	Walk(roots, func(c Comment, _ int) {
		out = append(out, c)
	})
	return out
}

// Depths recomputes nesting depth for a flattened sequence. A comment whose
// parent does not appear earlier in the sequence is treated as a root.
func Depths(comments []Comment) []int {
	depths := make([]int, len(comments))
	byID := make(map[string]int, len(comments))
	for i, c := range comments {
		if parent, ok := byID[c.ParentID]; ok && c.ParentID != "" {
			depths[i] = parent + 1
		}
		if c.ID != "" {
			if _, dup := byID[c.ID]; !dup {
				byID[c.ID] = depths[i]
			}
		}
	}
	return depths
}
