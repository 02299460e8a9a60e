package repository

import (
	"math/rand/v2"
	"sync"

	"github.com/okian/typerace/internal/domain/model"
)

// Write buffer: an in-memory treap of accepted scores waiting for a flush.
//
// Ordering: totalScore DESC, then timestamp ASC, then username ASC, then
// insertion sequence ASC. The sequence makes every node unique, so two scores
// that tie on everything else are both kept. In-order traversal yields the
// leaderboard from best to worst.

type bufferedEntry struct {
	entry model.LeaderboardEntry
	seq   uint64
}

// treap node
type node struct {
	item  bufferedEntry
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if a ranks before b.
func less(a, b bufferedEntry) bool {
	if a.entry.TotalScore != b.entry.TotalScore {
		return a.entry.TotalScore > b.entry.TotalScore
	}
	at, bt := a.entry.Timestamp.UnixMilli(), b.entry.Timestamp.UnixMilli()
	if at != bt {
		return at < bt
	}
	if a.entry.Username != b.entry.Username {
		return a.entry.Username < b.entry.Username
	}
	return a.seq < b.seq
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, item bufferedEntry, prio uint64) *node {
	if n == nil {
		return &node{item: item, prio: prio, size: 1}
	}
	if less(item, n.item) {
		n.left = insert(n.left, item, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, item, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// collect appends every item in rank order.
func collect(n *node, out *[]bufferedEntry) {
	if n == nil {
		return
	}
	collect(n.left, out)
	*out = append(*out, n.item)
	collect(n.right, out)
}

// writeBuffer is safe for concurrent use. Add never blocks on I/O.
type writeBuffer struct {
	mu   sync.Mutex
	root *node
	seq  uint64
}

// Add queues e and returns the new buffer size.
func (b *writeBuffer) Add(e model.LeaderboardEntry) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.root = insert(b.root, bufferedEntry{entry: e, seq: b.seq}, rand.Uint64())
	return nsize(b.root)
}

// Drain atomically takes everything buffered and leaves the buffer empty.
// Items come back in rank order.
func (b *writeBuffer) Drain() []bufferedEntry {
	b.mu.Lock()
	root := b.root
	b.root = nil
	b.mu.Unlock()

	out := make([]bufferedEntry, 0, nsize(root))
	collect(root, &out)
	return out
}

// Requeue puts drained items back, keeping their original sequence numbers
// so relative order among exact ties is unchanged.
func (b *writeBuffer) Requeue(items []bufferedEntry) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range items {
		b.root = insert(b.root, it, rand.Uint64())
	}
	return nsize(b.root)
}

// Len is the number of buffered items.
func (b *writeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nsize(b.root)
}
