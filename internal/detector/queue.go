package detector

const queueCap = 16

// eventQueue is a fixed-capacity FIFO. When full, new events are dropped
// and counted; older events are never displaced.
type eventQueue struct {
	buf     [queueCap]Event
	head    int
	count   int
	dropped uint32
}

func (q *eventQueue) push(e Event) bool {
	if q.count == queueCap {
		q.dropped++
		return false
	}
	q.buf[(q.head+q.count)%queueCap] = e
	q.count++
	return true
}

func (q *eventQueue) pop() (Event, bool) {
	if q.count == 0 {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.head = (q.head + 1) % queueCap
	q.count--
	return e, true
}

func (q *eventQueue) len() int { return q.count }
