package adaptimg

import (
	"sort"
	"strings"
	"sync"
)

// FilterChain is an ordered list of filters. Filters run by ascending
// priority and, within one priority, in the order they were added.
//
// A chain is safe for concurrent reads; mutating it while it is applied
// elsewhere is not supported.
type FilterChain struct {
	mu      sync.Mutex
	buckets map[int][]Filter
	sorted  []Filter
}

func NewFilterChain(filters ...Filter) *FilterChain {
	fc := &FilterChain{}
	for _, f := range filters {
		fc.Add(f, 0)
	}
	return fc
}

// Add registers a filter at the given priority.
func (fc *FilterChain) Add(f Filter, priority int) *FilterChain {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.buckets == nil {
		fc.buckets = make(map[int][]Filter)
	}
	fc.buckets[priority] = append(fc.buckets[priority], f)
	fc.sorted = nil
	return fc
}

// Filters returns the filters in execution order.
func (fc *FilterChain) Filters() []Filter {
	if fc == nil {
		return nil
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.sorted == nil {
		priorities := make([]int, 0, len(fc.buckets))
		for p := range fc.buckets {
			priorities = append(priorities, p)
		}
		sort.Ints(priorities)
		sorted := []Filter{}
		for _, p := range priorities {
			sorted = append(sorted, fc.buckets[p]...)
		}
		fc.sorted = sorted
	}
	return fc.sorted
}

func (fc *FilterChain) Len() int {
	return len(fc.Filters())
}

// Apply runs all filters on img in order.
func (fc *FilterChain) Apply(img Image) error {
	for _, f := range fc.Filters() {
		if err := f.Apply(img); err != nil {
			return err
		}
	}
	return nil
}

// CalculateSize folds size through all filters in execution order.
func (fc *FilterChain) CalculateSize(size Box) Box {
	for _, f := range fc.Filters() {
		size = f.CalculateSize(size)
	}
	return size
}

// Descriptor describes all filters in execution order.
func (fc *FilterChain) Descriptor() string {
	filters := fc.Filters()
	d := make([]string, len(filters))
	for i, f := range filters {
		d[i] = f.Descriptor()
	}
	return strings.Join(d, ";")
}

// Prepend adds the filters of other as a new priority below all existing
// ones, keeping their order.
func (fc *FilterChain) Prepend(other *FilterChain) *FilterChain {
	return fc.insert(other, func(lo, _ int) int { return lo - 1 })
}

// Append adds the filters of other as a new priority above all existing
// ones, keeping their order.
func (fc *FilterChain) Append(other *FilterChain) *FilterChain {
	return fc.insert(other, func(_, hi int) int { return hi + 1 })
}

func (fc *FilterChain) insert(other *FilterChain, priority func(lo, hi int) int) *FilterChain {
	filters := other.Filters()
	if len(filters) == 0 {
		return fc
	}

	fc.mu.Lock()
	p := 0
	if len(fc.buckets) > 0 {
		lo, hi := 0, 0
		first := true
		for k := range fc.buckets {
			if first || k < lo {
				lo = k
			}
			if first || k > hi {
				hi = k
			}
			first = false
		}
		p = priority(lo, hi)
	}
	fc.mu.Unlock()

	for _, f := range filters {
		fc.Add(f, p)
	}
	return fc
}

// replace swaps old for f, keeping its position.
func (fc *FilterChain) replace(old, f Filter) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for p, bucket := range fc.buckets {
		for i := range bucket {
			if bucket[i] == old {
				bucket[i] = f
				fc.buckets[p] = bucket
				fc.sorted = nil
				return
			}
		}
	}
}

// Compose returns a new chain running the given chains one after another.
// Nil chains are skipped.
func Compose(chains ...*FilterChain) *FilterChain {
	fc := NewFilterChain()
	for _, c := range chains {
		if c != nil {
			fc.Append(c)
		}
	}
	return fc
}
