package flowkernel

import (
	"slices"
	"sync"
)

// ProgressReading is the state of a progress indicator at one point in time.
// Percent is only meaningful when Determined is true.
type ProgressReading struct {
	Name       string            `json:"name"`
	Pending    bool              `json:"pending"`
	Determined bool              `json:"determined"`
	Percent    float64           `json:"percent"`
	Children   []ProgressReading `json:"children,omitempty"`
}

// ProgressNode is an element of a progress tree: a leaf Progress or a nested
// ProgressCombiner.
type ProgressNode interface {
	Name() string
	// Total is the declared amount of work; 0 means undetermined.
	Total() int64
	// Update recomputes and returns the current reading.
	Update() ProgressReading
	// Finished reports whether the node completed for good.
	Finished() bool
}

// Progress is a leaf progress indicator counting up to a declared total.
type Progress struct {
	name string

	mu       sync.Mutex
	total    int64
	count    int64
	finished bool
}

// NewProgress creates a pending indicator. A total of 0 creates an
// undetermined indicator which only reports whether work is pending.
func NewProgress(name string, total int64) *Progress {
	if total < 0 {
		total = 0
	}
	return &Progress{name: name, total: total}
}

// Name returns the indicator name.
func (p *Progress) Name() string { return p.name }

// Total returns the declared total.
func (p *Progress) Total() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// SetTotal changes the declared total. The count is capped at the new total.
func (p *Progress) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.total = max(total, 0)
	if p.total > 0 && p.count > p.total {
		p.count = p.total
	}
}

// Increment adds n to the count. The count never exceeds the total.
func (p *Progress) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.count += n
	if p.total > 0 && p.count > p.total {
		p.count = p.total
	}
}

// Count returns the amount of work done.
func (p *Progress) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Finish marks the indicator as done.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
	p.count = p.total
}

// Finished reports whether Finish was called.
func (p *Progress) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Update returns the current reading.
func (p *Progress) Update() ProgressReading {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := ProgressReading{Name: p.name, Pending: !p.finished, Determined: p.total > 0}
	if r.Determined {
		r.Percent = 100 * float64(p.count) / float64(p.total)
	}
	return r
}

// ProgressCombiner aggregates child indicators into one reading. Finished
// children are dropped from the child list; their declared totals are kept as
// completed work so the percentage never goes down when a child completes.
// All methods are safe for concurrent use.
type ProgressCombiner struct {
	name string

	mu        sync.Mutex
	children  []ProgressNode
	completed int64
	last      ProgressReading
}

// NewProgressCombiner creates a combiner without children.
func NewProgressCombiner(name string) *ProgressCombiner {
	return &ProgressCombiner{name: name, last: ProgressReading{Name: name}}
}

// Name returns the combiner name.
func (c *ProgressCombiner) Name() string { return c.name }

// AddSubProgress attaches p. Adding the same node twice has no effect.
func (c *ProgressCombiner) AddSubProgress(p ProgressNode) {
	if p == nil || p == ProgressNode(c) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.children, p) {
		c.children = append(c.children, p)
	}
}

// RemoveSubProgress detaches p without accounting it as completed.
func (c *ProgressCombiner) RemoveSubProgress(p ProgressNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = slices.DeleteFunc(c.children, func(n ProgressNode) bool { return n == p })
}

// Total returns the sum of the declared totals of the current children plus the
// completed work.
func (c *ProgressCombiner) Total() int64 {
	c.mu.Lock()
	children := slices.Clone(c.children)
	total := c.completed
	c.mu.Unlock()
	for _, child := range children {
		total += child.Total()
	}
	return total
}

// Finished is always false: a combiner can gain children at any time.
func (c *ProgressCombiner) Finished() bool { return false }

// Len returns the number of current children.
func (c *ProgressCombiner) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

// Update recomputes the reading from the current state of all children.
// Pending is true if any child is pending. The percentage is the average of
// the children weighted by their declared totals, where finished children and
// nested combiners with nothing pending count as complete; it is only
// determined when every pending child has a determined total.
func (c *ProgressCombiner) Update() ProgressReading {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		pending    bool
		determined = true
		weight     = float64(c.completed)
		done       = 100 * float64(c.completed)
		readings   []ProgressReading
		kept       = c.children[:0:0]
	)
	for _, child := range c.children {
		if child.Finished() {
			c.completed += child.Total()
			weight += float64(child.Total())
			done += 100 * float64(child.Total())
			continue
		}
		kept = append(kept, child)

		r := child.Update()
		readings = append(readings, r)
		if !r.Pending {
			// a combiner whose children all completed counts as done
			weight += float64(child.Total())
			done += 100 * float64(child.Total())
			continue
		}
		pending = true
		total := child.Total()
		if !r.Determined || total <= 0 {
			determined = false
			continue
		}
		weight += float64(total)
		done += r.Percent * float64(total)
	}
	c.children = kept

	reading := ProgressReading{Name: c.name, Pending: pending, Children: readings}
	if determined && weight > 0 {
		reading.Determined = true
		reading.Percent = done / weight
	}
	c.last = reading
	return reading
}

// Reading returns the result of the last Update.
func (c *ProgressCombiner) Reading() ProgressReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
