package als

import (
	"github.com/asecurityteam/rolling"
	"gonum.org/v1/gonum/stat"

	"alsd/x/mathx"
)

// Window is the smoothing window: a fixed-capacity ring of the most recent
// samples. It only reports an average once every slot holds an available
// sample pushed since the last Reset or Resize. Not safe for concurrent use.
type Window struct {
	size   int
	run    int // consecutive available samples pushed
	points *rolling.PointPolicy
}

// NewWindow returns an empty window of capacity size (minimum 1).
func NewWindow(size int) *Window {
	w := &Window{}
	w.Resize(size)
	return w
}

// Size is the configured capacity.
func (w *Window) Size() int { return w.size }

// Fill is the number of slots currently holding available samples.
func (w *Window) Fill() int { return min(w.run, w.size) }

// Resize replaces the ring with an empty one of capacity n.
func (w *Window) Resize(n int) {
	w.size = max(n, 1)
	w.Reset()
}

// Reset marks every slot unavailable.
func (w *Window) Reset() {
	w.points = rolling.NewPointPolicy(rolling.NewWindow(w.size))
	w.run = 0
}

// Push appends v, evicting the oldest slot. A NaN or infinite v occupies a
// slot as unavailable and keeps the window from being full until it has
// been evicted.
func (w *Window) Push(v float64) {
	if !mathx.Finite(v) {
		w.points.Append(0)
		w.run = 0
		return
	}
	w.points.Append(v)
	w.run++
}

// Average returns the arithmetic mean of all slots, or false while any slot
// is unavailable.
func (w *Window) Average() (float64, bool) {
	if w.run < w.size {
		return 0, false
	}
	return w.points.Reduce(mean), true
}

func mean(win rolling.Window) float64 {
	vals := make([]float64, 0, len(win))
	for _, bucket := range win {
		vals = append(vals, bucket...)
	}
	return stat.Mean(vals, nil)
}
