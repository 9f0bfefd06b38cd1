package quadtree

import (
	"bufio"
	"io"
	"strings"
)

// Dump writes a human-readable rendering of the subtree rooted at n, one
// line per node, children labelled by quadrant:
//
//	└── Root @ Boundary(x=0, y=0, w=100, h=100) | Gravity Point: Point(...)
//	    ├── TL @ Boundary(...) | Leaf Point: Point(...)
//	    └── BR @ Boundary(...) | Leaf Point: Point(...)
func Dump(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	dumpNode(bw, n, "", true, "Root")
	return bw.Flush()
}

// DumpString returns the Dump output as a string.
func DumpString(n *Node) string {
	var sb strings.Builder
	_ = Dump(&sb, n)
	return sb.String()
}

func dumpNode(w *bufio.Writer, n *Node, prefix string, last bool, label string) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}

	w.WriteString(prefix)
	w.WriteString(connector)
	w.WriteString(label)
	w.WriteString(" @ ")
	w.WriteString(n.bounds.String())
	if n.IsLeaf() {
		w.WriteString(" | Leaf Point: ")
		w.WriteString(formatOptional(n.particle))
	} else {
		w.WriteString(" | Gravity Point: ")
		w.WriteString(formatOptional(n.centroid))
	}
	w.WriteByte('\n')

	var present []Quadrant
	for _, q := range Quadrants {
		if n.children[q] != nil {
			present = append(present, q)
		}
	}
	for i, q := range present {
		dumpNode(w, n.children[q], childPrefix, i == len(present)-1, q.String())
	}
}
