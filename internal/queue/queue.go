package queue

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one product page waiting to be processed.
type Task struct {
	ID        string
	URL       string
	Article   string
	Priority  int
	Retries   int
	CreatedAt time.Time
}

func NewTask(url, article string) *Task {
	return &Task{
		ID:        article,
		URL:       url,
		Article:   article,
		CreatedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue orders tasks by descending priority, FIFO within a
// priority. Pop blocks until a task arrives, the queue closes or ctx ends.
type InMemoryQueue struct {
	tasks  []*Task
	mu     sync.Mutex
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:  make([]*Task, 0),
		notify: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	// first position whose priority is lower than the new task's
	i := sort.Search(len(q.tasks), func(i int) bool {
		return q.tasks[i].Priority < task.Priority
	})
	q.tasks = slices.Insert(q.tasks, i, task)
	q.wake()

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops further pushes. Queued tasks can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.wake()
	}

	return nil
}

// wake releases every blocked Pop. Callers hold mu.
func (q *InMemoryQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

type BatchQueue struct {
	queue     Queue
	batchSize int
}

func NewBatchQueue(q Queue, batchSize int) *BatchQueue {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchQueue{
		queue:     q,
		batchSize: batchSize,
	}
}

func (b *BatchQueue) PushBatch(tasks []*Task) error {
	for _, task := range tasks {
		if err := b.queue.Push(task); err != nil {
			return err
		}
	}
	return nil
}

// PopBatch takes up to batchSize tasks. Once the underlying queue is closed
// and drained it returns ErrQueueEmpty.
func (b *BatchQueue) PopBatch(ctx context.Context) ([]*Task, error) {
	var tasks []*Task

	for i := 0; i < b.batchSize; i++ {
		task, err := b.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) || errors.Is(err, ErrQueueClosed) {
				break
			}
			return tasks, err
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, ErrQueueEmpty
	}

	return tasks, nil
}

// Batches reports how many PopBatch calls drain n tasks.
func (b *BatchQueue) Batches(n int) int {
	return (n + b.batchSize - 1) / b.batchSize
}
