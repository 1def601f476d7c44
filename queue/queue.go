// Package queue implements the bounded, lock-free, multi-producer
// multi-consumer task queue the task engine pulls work from. It follows
// Dmitry Vyukov's ring-buffer algorithm exactly as the reference
// implementation's Build_System does: a sequence number per slot
// arbitrates between producers and consumers without a lock, and the
// queue never grows — callers size it once, up front, for the maximum
// possible number of outstanding tasks.
package queue

import (
	"sync/atomic"
)

// TaskType distinguishes a compile task (one source file) from a link
// task (one target, once every file has compiled).
type TaskType uint32

const (
	Uninit TaskType = iota
	Compile
	Link
)

// Task is one unit of work submitted to the queue. Field order matters
// for cache-line packing, mirroring the reference Build_Task layout.
type Task struct {
	Type                TaskType
	DependenciesUpdated bool
	Tracker             interface{} // *tracker.Tracker; kept generic to avoid an import cycle
	File                string
}

const cacheLinePad = 64

type node struct {
	task     Task
	sequence atomic.Int32
	_        [cacheLinePad]byte // keep each slot on its own cache line
}

// Queue is a bounded MPMC ring buffer of Task. Capacity is rounded up to
// the next power of two so slot lookup can use a mask instead of a
// modulo.
type Queue struct {
	slots []node
	mask  uint64

	writeIndex atomic.Uint64
	readIndex  atomic.Uint64
	submitted  atomic.Uint32
	completed  atomic.Uint32
}

// New creates a Queue with capacity for at least size tasks.
func New(size int) *Queue {
	capacity := nextPowerOfTwo(size)
	q := &Queue{
		slots: make([]node, capacity),
		mask:  uint64(capacity - 1),
	}
	for i := range q.slots {
		q.slots[i].sequence.Store(int32(i))
	}
	return q
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Submit publishes task to the queue. It blocks (spinning) only in the
// brief window where another producer has claimed the same slot's write
// turn but not yet finished publishing — the same as the reference
// implementation's CAS loop.
func (q *Queue) Submit(task Task) {
	index := q.writeIndex.Load()
	for {
		slot := &q.slots[index&q.mask]
		sequence := int64(slot.sequence.Load())
		diff := sequence - int64(index)

		if diff == 0 {
			if q.writeIndex.CompareAndSwap(index, index+1) {
				break
			}
		} else {
			index = q.writeIndex.Load()
		}
	}

	slot := &q.slots[index&q.mask]
	slot.task = task
	slot.sequence.Store(int32(index + 1))
	q.submitted.Add(1)
}

// Pull removes and returns the next available task, or ok=false if the
// queue is currently empty. It never blocks.
func (q *Queue) Pull() (task Task, ok bool) {
	index := q.readIndex.Load()
	for {
		slot := &q.slots[index&q.mask]
		sequence := int64(slot.sequence.Load())
		diff := sequence - int64(index+1)

		if diff == 0 {
			if q.readIndex.CompareAndSwap(index, index+1) {
				break
			}
		} else if diff < 0 {
			return Task{}, false
		} else {
			index = q.readIndex.Load()
		}
	}

	slot := &q.slots[index&q.mask]
	task = slot.task
	slot.sequence.Store(int32(index + uint64(len(q.slots))))
	return task, true
}

// MarkCompleted records that a pulled task finished executing.
func (q *Queue) MarkCompleted() {
	q.completed.Add(1)
}

// HasUnfinishedTasks reports whether any submitted task has not yet been
// marked completed.
func (q *Queue) HasUnfinishedTasks() bool {
	return q.submitted.Load() != q.completed.Load()
}
