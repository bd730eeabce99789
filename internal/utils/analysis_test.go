package utils

import (
	"testing"

	"ctcbeam/internal/decoder/pathtrie"
)

func TestMeasurePathTrieCountsNodesAndLeaves(t *testing.T) {
	root := pathtrie.NewRoot()
	a, _ := root.GetOrCreateChild(0, 0, -0.1, nil, false, true)
	b, _ := root.GetOrCreateChild(1, 0, -0.2, nil, false, true)
	_, _ = a.GetOrCreateChild(2, 1, -0.3, nil, false, true)

	stats := MeasurePathTrie(root)

	if stats.Nodes != 4 {
		t.Fatalf("Nodes = %d, want 4 (root + a + b + a's child)", stats.Nodes)
	}
	if stats.Leaves != 2 {
		t.Fatalf("Leaves = %d, want 2 (b and a's child)", stats.Leaves)
	}
	if stats.MaxDepth != 2 {
		t.Fatalf("MaxDepth = %d, want 2", stats.MaxDepth)
	}
	if stats.LiveNodes != stats.Nodes {
		t.Fatalf("LiveNodes = %d, want %d (nothing removed)", stats.LiveNodes, stats.Nodes)
	}
	_ = b
}

func TestMeasurePathTrieTracksTombstonedNodes(t *testing.T) {
	root := pathtrie.NewRoot()
	a, _ := root.GetOrCreateChild(0, 0, -0.1, nil, false, true)
	_, _ = a.GetOrCreateChild(1, 1, -0.2, nil, false, true)
	a.Remove() // a has a surviving child, so it stays in the tree tombstoned

	stats := MeasurePathTrie(root)
	if stats.Nodes != 3 {
		t.Fatalf("Nodes = %d, want 3 (root, tombstoned a, a's child)", stats.Nodes)
	}
	if stats.LiveNodes != 2 {
		t.Fatalf("LiveNodes = %d, want 2 (root and a's child, a is tombstoned)", stats.LiveNodes)
	}
}

func TestMeasureMemoryRunsBuild(t *testing.T) {
	ran := false
	stats := MeasureMemory(func() {
		buf := make([]byte, 1<<20)
		_ = buf
		ran = true
	})
	_ = stats
	if !ran {
		t.Fatalf("expected MeasureMemory to run build")
	}
}
