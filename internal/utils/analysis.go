package utils

import (
	"runtime"

	"ctcbeam/internal/decoder/pathtrie"
)

// PathTrieStats summarizes the shape of a decoder's prefix trie at a
// point in time, for diagnostic reporting alongside a decode's timing
// and hypothesis count.
type PathTrieStats struct {
	Nodes         int
	Leaves        int
	MaxDepth      int
	AvgDepth      float64
	LiveNodes     int
	TotalChildren int
}

// MeasurePathTrie walks the trie rooted at root, counting total and live
// nodes, leaves, and depth statistics. It descends through tombstoned
// nodes the same as live ones, since a tombstoned node with surviving
// children is still part of the tree's shape.
func MeasurePathTrie(root *pathtrie.Node) PathTrieStats {
	var stats PathTrieStats
	var totalDepth int

	var walk func(n *pathtrie.Node, depth int)
	walk = func(n *pathtrie.Node, depth int) {
		stats.Nodes++
		if n.Exists() {
			stats.LiveNodes++
		}
		children := n.Children()
		stats.TotalChildren += len(children)
		if len(children) == 0 {
			stats.Leaves++
			totalDepth += depth
			if depth > stats.MaxDepth {
				stats.MaxDepth = depth
			}
			return
		}
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)

	if stats.Leaves > 0 {
		stats.AvgDepth = float64(totalDepth) / float64(stats.Leaves)
	}
	return stats
}

// MeasureMemory runs build and reports the heap growth it caused, after
// forcing a GC immediately before and after so transient garbage from
// earlier work does not pollute the measurement.
func MeasureMemory(build func()) runtime.MemStats {
	runtime.GC()
	runtime.GC()

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	build()

	runtime.GC()
	runtime.GC()
	runtime.ReadMemStats(&after)

	after.HeapAlloc -= before.HeapAlloc
	after.TotalAlloc -= before.TotalAlloc
	after.HeapObjects -= before.HeapObjects

	return after
}
