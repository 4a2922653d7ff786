package buffer

import (
	"container/list"
	"sync"
)

// LRUReplacer tracks the frames that may be evicted, i.e. frames whose pin
// count dropped to zero. Victim picks the one unpinned longest ago.
// It holds frame ids (indexes into the pool's frame array), not page ids.
type LRUReplacer struct {
	mu       sync.Mutex
	list     *list.List            // front: most recently unpinned, back: least
	elements map[int]*list.Element // frame id -> list node
}

func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		list:     list.New(),
		elements: make(map[int]*list.Element, capacity),
	}
}

// Victim removes and returns the least recently unpinned frame.
func (l *LRUReplacer) Victim() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem := l.list.Back()
	if elem == nil {
		return -1, false
	}
	frameID := l.list.Remove(elem).(int)
	delete(l.elements, frameID)
	return frameID, true
}

// Pin makes a frame ineligible for eviction. Unknown frames are ignored.
func (l *LRUReplacer) Pin(frameID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.elements[frameID]; ok {
		l.list.Remove(elem)
		delete(l.elements, frameID)
	}
}

// Unpin makes a frame evictable as the most recently unpinned one. A frame
// that is already evictable keeps its position.
func (l *LRUReplacer) Unpin(frameID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.elements[frameID]; ok {
		return
	}
	l.elements[frameID] = l.list.PushFront(frameID)
}

// Restore puts back a frame that Victim returned but the caller could not
// evict. It goes to the least recently unpinned end, so the next Victim
// picks it again.
func (l *LRUReplacer) Restore(frameID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.elements[frameID]; ok {
		return
	}
	l.elements[frameID] = l.list.PushBack(frameID)
}

// Size is the number of evictable frames.
func (l *LRUReplacer) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}
