package task

import "fmt"

// queue is a strict-FIFO list of queued tasks. It is not synchronized;
// the Runner guards it with its own mutex.
type queue struct {
	items []*Task
}

// enqueue appends a task and returns its 1-based queue position.
func (q *queue) enqueue(t *Task) int {
	q.items = append(q.items, t)
	return len(q.items)
}

// dequeue pops the head of the queue, or nil when empty.
func (q *queue) dequeue() *Task {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head
}

// remove deletes the task with the given ID, shifting later tasks
// forward one position.
func (q *queue) remove(id string) (*Task, error) {
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %s is not queued", id)
}

// position returns the 1-based queue position of a task, or 0 when the
// task is not queued.
func (q *queue) position(id string) int {
	for i, t := range q.items {
		if t.ID == id {
			return i + 1
		}
	}
	return 0
}

// find returns the queued task with the given ID, or nil.
func (q *queue) find(id string) *Task {
	for _, t := range q.items {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (q *queue) len() int {
	return len(q.items)
}

// snapshot copies the queued tasks in order.
func (q *queue) snapshot() []*Task {
	out := make([]*Task, 0, len(q.items))
	for _, t := range q.items {
		out = append(out, t.Clone())
	}
	return out
}
