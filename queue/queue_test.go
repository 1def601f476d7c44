package queue_test

import (
	"fmt"
	"sync"
	"testing"

	"cbuild/queue"
)

func TestSubmitPullRoundTrip(t *testing.T) {
	q := queue.New(4)
	q.Submit(queue.Task{Type: queue.Compile, File: "a.c"})
	q.Submit(queue.Task{Type: queue.Compile, File: "b.c"})

	task, ok := q.Pull()
	if !ok || task.File != "a.c" {
		t.Fatalf("expected a.c first, got %+v ok=%v", task, ok)
	}
	task, ok = q.Pull()
	if !ok || task.File != "b.c" {
		t.Fatalf("expected b.c second, got %+v ok=%v", task, ok)
	}
	if _, ok := q.Pull(); ok {
		t.Fatal("expected empty queue to report no task")
	}
}

func TestHasUnfinishedTasks(t *testing.T) {
	q := queue.New(2)
	if q.HasUnfinishedTasks() {
		t.Fatal("new queue should have no unfinished tasks")
	}
	q.Submit(queue.Task{Type: queue.Compile})
	if !q.HasUnfinishedTasks() {
		t.Fatal("expected an unfinished task after Submit")
	}
	if _, ok := q.Pull(); !ok {
		t.Fatal("expected to pull the submitted task")
	}
	if !q.HasUnfinishedTasks() {
		t.Fatal("a pulled-but-not-completed task should still count as unfinished")
	}
	q.MarkCompleted()
	if q.HasUnfinishedTasks() {
		t.Fatal("expected no unfinished tasks after MarkCompleted")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const producers = 8
	const perProducer = 500
	const total = producers * perProducer

	q := queue.New(total)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Submit(queue.Task{Type: queue.Compile, File: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool, total)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	for c := 0; c < producers; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				task, ok := q.Pull()
				if !ok {
					return
				}
				mu.Lock()
				seen[task.File] = true
				mu.Unlock()
				q.MarkCompleted()
			}
		}()
	}
	consumers.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct tasks consumed exactly once, got %d", total, len(seen))
	}
	if q.HasUnfinishedTasks() {
		t.Fatal("expected no unfinished tasks after all consumers drained the queue")
	}
}
