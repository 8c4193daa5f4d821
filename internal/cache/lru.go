package cache

// entry is a cached value linked into the recency list.
type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

// list is a doubly-linked recency list. The front is the most recently
// used entry. The list is not thread-safe.
type list[K comparable, V any] struct {
	head, tail *entry[K, V]
}

func (l *list[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

func (l *list[K, V]) moveToFront(e *entry[K, V]) {
	if e == l.head {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

func (l *list[K, V]) back() *entry[K, V] { return l.tail }

func (l *list[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
