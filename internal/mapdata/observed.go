package mapdata

import "sync"

// Observed accumulates the distinct addresses seen in a map across polls,
// in first-seen order.
type Observed struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewObserved returns an empty set.
func NewObserved() *Observed {
	return &Observed{seen: make(map[string]struct{})}
}

// Add merges records into the set and returns how many addresses were new.
func (o *Observed) Add(records ...Record) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	added := 0
	for _, r := range records {
		if _, ok := o.seen[r.IP]; ok {
			continue
		}
		o.seen[r.IP] = struct{}{}
		o.order = append(o.order, r.IP)
		added++
	}
	return added
}

// Len returns the number of distinct addresses.
func (o *Observed) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}

// Contains reports whether ip has been observed.
func (o *Observed) Contains(ip string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.seen[ip]
	return ok
}

// IPs returns a copy of the observed addresses.
func (o *Observed) IPs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}
