package usecase

// scalarWindow is a fixed-capacity ring of float64 observations with
// incrementally maintained sums. Insertion evicts the oldest value and
// adjusts the sums by subtraction; Recompute re-derives them from the raw
// buffer to bound floating-point drift.
type scalarWindow struct {
	buf   []float64
	head  int
	size  int
	sum   float64
	sumSq float64
}

func newScalarWindow(capacity int) *scalarWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &scalarWindow{buf: make([]float64, capacity)}
}

func (w *scalarWindow) Push(v float64) {
	if w.size == len(w.buf) {
		old := w.buf[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.size++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	w.sum += v
	w.sumSq += v * v
}

func (w *scalarWindow) Len() int  { return w.size }
func (w *scalarWindow) Full() bool { return w.size == len(w.buf) }

// Mean returns the window mean, 0 for an empty window.
func (w *scalarWindow) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	return w.sum / float64(w.size)
}

// Variance returns the population variance (ddof=0), 0 if degenerate.
func (w *scalarWindow) Variance() float64 {
	if w.size == 0 {
		return 0
	}
	n := float64(w.size)
	v := w.sumSq/n - (w.sum/n)*(w.sum/n)
	if v < 0 {
		return 0 // numeric noise near zero
	}
	return v
}

// Recompute rebuilds the sums from the buffer contents.
func (w *scalarWindow) Recompute() {
	w.sum, w.sumSq = 0, 0
	for i := 0; i < w.size; i++ {
		v := w.buf[(w.head-w.size+i+len(w.buf))%len(w.buf)]
		w.sum += v
		w.sumSq += v * v
	}
}

func (w *scalarWindow) Reset() {
	w.head, w.size, w.sum, w.sumSq = 0, 0, 0, 0
}

// pairWindow is a fixed-capacity ring of paired (y, x) observations with the
// incrementally maintained sums needed for OLS slope and Pearson correlation.
type pairWindow struct {
	ys, xs []float64
	head   int
	size   int
	sumY   float64
	sumX   float64
	sumYY  float64
	sumXX  float64
	sumXY  float64
}

func newPairWindow(capacity int) *pairWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &pairWindow{ys: make([]float64, capacity), xs: make([]float64, capacity)}
}

func (w *pairWindow) Push(y, x float64) {
	if w.size == len(w.ys) {
		oy, ox := w.ys[w.head], w.xs[w.head]
		w.sumY -= oy
		w.sumX -= ox
		w.sumYY -= oy * oy
		w.sumXX -= ox * ox
		w.sumXY -= oy * ox
	} else {
		w.size++
	}
	w.ys[w.head] = y
	w.xs[w.head] = x
	w.head = (w.head + 1) % len(w.ys)
	w.sumY += y
	w.sumX += x
	w.sumYY += y * y
	w.sumXX += x * x
	w.sumXY += y * x
}

func (w *pairWindow) Len() int   { return w.size }
func (w *pairWindow) Full() bool { return w.size == len(w.ys) }

// Slope returns the OLS regression slope of y on x and whether the window is
// non-degenerate (enough points, non-zero x variance).
func (w *pairWindow) Slope() (float64, bool) {
	if w.size < 2 {
		return 0, false
	}
	n := float64(w.size)
	denom := n*w.sumXX - w.sumX*w.sumX
	if denom <= epsilon*n*n {
		return 0, false
	}
	return (n*w.sumXY - w.sumY*w.sumX) / denom, true
}

// Correlation returns the Pearson correlation of y and x over the window and
// whether both variances are non-degenerate.
func (w *pairWindow) Correlation() (float64, bool) {
	if w.size < 2 {
		return 0, false
	}
	n := float64(w.size)
	varY := n*w.sumYY - w.sumY*w.sumY
	varX := n*w.sumXX - w.sumX*w.sumX
	if varY <= epsilon*n*n || varX <= epsilon*n*n {
		return 0, false
	}
	return (n*w.sumXY - w.sumY*w.sumX) / sqrt(varY*varX), true
}

// Recompute rebuilds all sums from the buffer contents.
func (w *pairWindow) Recompute() {
	w.sumY, w.sumX, w.sumYY, w.sumXX, w.sumXY = 0, 0, 0, 0, 0
	for i := 0; i < w.size; i++ {
		idx := (w.head - w.size + i + len(w.ys)) % len(w.ys)
		y, x := w.ys[idx], w.xs[idx]
		w.sumY += y
		w.sumX += x
		w.sumYY += y * y
		w.sumXX += x * x
		w.sumXY += y * x
	}
}

func (w *pairWindow) Reset() {
	w.head, w.size = 0, 0
	w.sumY, w.sumX, w.sumYY, w.sumXX, w.sumXY = 0, 0, 0, 0, 0
}
