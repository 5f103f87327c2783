package queue

// SetConcurrency changes how many tasks may run at once and starts waiting
// tasks that now fit. Lowering the limit never stops running tasks; the queue
// simply admits nothing new until the running count drops below n.
func (q *Queue) SetConcurrency(n int) error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	if n < 1 {
		q.mu.Unlock()
		return ErrInvalidConcurrency
	}
	q.concurrency = n
	q.runNextLocked()
	q.mu.Unlock()

	q.flush()
	return nil
}

// Concurrency returns the current limit.
func (q *Queue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.concurrency
}

// Pause stops the queue from starting tasks. Running tasks are unaffected.
func (q *Queue) Pause() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destroyed {
		return ErrDestroyed
	}
	q.paused = true
	return nil
}

// Unpause lets the queue start tasks again, beginning immediately.
func (q *Queue) Unpause() error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrDestroyed
	}
	q.paused = false
	q.runNextLocked()
	q.mu.Unlock()

	q.flush()
	return nil
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// admitsLocked reports whether a new task may start through the normal path.
func (q *Queue) admitsLocked() bool {
	return !q.paused && len(q.running) < q.concurrency
}

// runNextLocked starts waiting tasks in list order while slots are free.
func (q *Queue) runNextLocked() {
	for q.admitsLocked() {
		next := q.firstWaitingLocked()
		if next == nil {
			return
		}
		q.startLocked(next)
	}
}

func (q *Queue) firstWaitingLocked() *Task {
	for _, t := range q.tasks {
		if !t.started.Load() {
			return t
		}
	}
	return nil
}
