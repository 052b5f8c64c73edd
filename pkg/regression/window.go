package regression

import (
	"math"

	"github.com/google/btree"

	"conformal/pkg/stats"
)

type scoreItem struct {
	score float64
	seq   uint64
}

func scoreLess(a, b scoreItem) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq < b.seq
}

// scoreWindow is a bounded rolling multiset of conformity scores kept ordered
// for quantile queries: O(log n) insert and eviction, in-order walks for the
// quantile lookups. The sequence number keeps equal scores distinct in the tree.
type scoreWindow struct {
	tree *btree.BTreeG[scoreItem]
	fifo []scoreItem
	cap  int
	seq  uint64
}

func newScoreWindow(capacity int) *scoreWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &scoreWindow{
		tree: btree.NewG(32, scoreLess),
		cap:  capacity,
	}
}

// Add inserts a score, evicting the oldest one once the window is full.
// NaN scores are ignored.
func (w *scoreWindow) Add(score float64) {
	if math.IsNaN(score) {
		return
	}
	item := scoreItem{score: score, seq: w.seq}
	w.seq++
	w.tree.ReplaceOrInsert(item)
	w.fifo = append(w.fifo, item)
	if w.tree.Len() > w.cap {
		oldest := w.fifo[0]
		w.fifo = w.fifo[1:]
		w.tree.Delete(oldest)
	}
}

func (w *scoreWindow) Len() int {
	return w.tree.Len()
}

// Quantile walks the tree in order up to the virtual index for level q.
func (w *scoreWindow) Quantile(q float64, interp stats.Interpolation) float64 {
	n := w.tree.Len()
	if n == 0 {
		return math.NaN()
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	h := q * float64(n-1)
	var target int
	if interp == stats.Lower {
		target = int(math.Floor(h))
	} else {
		target = int(math.Ceil(h))
	}

	i := 0
	out := math.NaN()
	w.tree.Ascend(func(it scoreItem) bool {
		if i == target {
			out = it.score
			return false
		}
		i++
		return true
	})
	return out
}

// Sorted materializes the window contents in ascending order.
func (w *scoreWindow) Sorted() []float64 {
	out := make([]float64, 0, w.tree.Len())
	w.tree.Ascend(func(it scoreItem) bool {
		out = append(out, it.score)
		return true
	})
	return out
}
