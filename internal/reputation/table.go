package reputation

import (
	"container/list"
	"sync"

	"grimm.is/sieve/internal/mapdata"
)

// Table is a capacity-bounded LRU map with the insert semantics of
// BPF_MAP_TYPE_LRU_HASH: a full table evicts its least recently used entry
// instead of rejecting the insert.
type Table struct {
	capacity int
	entries  map[mapdata.Key]*list.Element
	order    *list.List // front is most recently used
	mu       sync.Mutex
}

type tableEntry struct {
	key    mapdata.Key
	record mapdata.Record
}

// NewTable creates a table holding at most capacity entries.
func NewTable(capacity uint32) *Table {
	if capacity == 0 {
		capacity = 1
	}
	return &Table{
		capacity: int(capacity),
		entries:  make(map[mapdata.Key]*list.Element),
		order:    list.New(),
	}
}

// Lookup returns the entry for key and marks it recently used.
func (t *Table) Lookup(key mapdata.Key) (mapdata.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[key]
	if !ok {
		return mapdata.Record{}, false
	}
	t.order.MoveToFront(el)
	return el.Value.(*tableEntry).record, true
}

// Peek returns the entry for key without touching its recency.
func (t *Table) Peek(key mapdata.Key) (mapdata.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[key]
	if !ok {
		return mapdata.Record{}, false
	}
	return el.Value.(*tableEntry).record, true
}

// InsertNoExist adds an entry and reports false when key is already present.
func (t *Table) InsertNoExist(key mapdata.Key, r mapdata.Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; ok {
		return false
	}
	if t.order.Len() >= t.capacity {
		oldest := t.order.Back()
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*tableEntry).key)
	}
	t.entries[key] = t.order.PushFront(&tableEntry{key: key, record: r})
	return true
}

// Update replaces an existing entry. It reports false when key is absent.
func (t *Table) Update(key mapdata.Key, r mapdata.Record) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[key]
	if !ok {
		return false
	}
	el.Value.(*tableEntry).record = r
	t.order.MoveToFront(el)
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// Records returns the entries from most to least recently used.
func (t *Table) Records() []mapdata.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]mapdata.Record, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*tableEntry).record)
	}
	return out
}
