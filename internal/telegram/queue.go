package telegram

import (
	"sync"

	"github.com/sourcegraph/conc"
)

// userQueue runs jobs one at a time per user, in submission order. Jobs of
// different users run concurrently.
type userQueue struct {
	mu      sync.Mutex
	pending map[int64][]func()
	workers conc.WaitGroup
}

func newUserQueue() *userQueue {
	return &userQueue{pending: map[int64][]func(){}}
}

// push enqueues job behind the user's earlier jobs. It never blocks on a job.
func (q *userQueue) push(userID int64, job func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs, running := q.pending[userID]
	q.pending[userID] = append(jobs, job)
	if !running {
		q.workers.Go(func() { q.drain(userID) })
	}
}

func (q *userQueue) drain(userID int64) {
	for {
		q.mu.Lock()
		jobs := q.pending[userID]
		if len(jobs) == 0 {
			// an entry exists exactly while a worker owns the user
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.pending[userID] = jobs[1:]
		q.mu.Unlock()

		job()
	}
}

// wait blocks until every pushed job has run.
func (q *userQueue) wait() {
	q.workers.Wait()
}
