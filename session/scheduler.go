package session

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler is the single-threaded cooperative task queue that drives every
// other component (spec.md component H). All session state is touched only
// from inside tasks it runs, so nothing else in this package needs a mutex:
// the same single-goroutine-event-loop shape as the teacher SDK's per-session
// request dispatch, generalized here into an explicit FIFO-plus-timer queue
// since (unlike jsonrpc2) this protocol must also self-drive timeouts and
// retries with no inbound request to piggyback on.
type Scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	fifo     []func()
	timers   timerHeap
	stopped  bool
	seq      int64
}

// NewScheduler creates a Scheduler and starts its run loop on a new
// goroutine. Call Stop to shut it down.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Post enqueues fn to run on the scheduler goroutine, after any
// already-queued work, as soon as possible.
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.fifo = append(s.fifo, fn)
	s.cond.Signal()
}

// CancelFunc cancels a delayed task if it has not yet fired.
type CancelFunc func()

// PostDelayed enqueues fn to run on the scheduler goroutine no earlier than
// d from now. The returned CancelFunc is safe to call more than once and
// after the task has already fired (a no-op in that case).
func (s *Scheduler) PostDelayed(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}
	s.seq++
	t := &timerTask{at: time.Now().Add(d), seq: s.seq, fn: fn}
	heap.Push(&s.timers, t)
	s.cond.Signal()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

// Stop drains pending work without running it and stops the run loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.fifo = nil
	s.timers = nil
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		for {
			if s.stopped {
				s.mu.Unlock()
				return
			}
			if len(s.fifo) > 0 {
				break
			}
			if len(s.timers) > 0 {
				wait := time.Until(s.timers[0].at)
				if wait <= 0 {
					break
				}
				// Wait on cond rather than the timer alone, so a Post or an
				// earlier PostDelayed arriving meanwhile wakes the loop.
				timer := time.AfterFunc(wait, func() {
					s.mu.Lock()
					s.cond.Broadcast()
					s.mu.Unlock()
				})
				s.cond.Wait()
				timer.Stop()
				continue
			}
			s.cond.Wait()
		}

		// Prefer due timers over FIFO work so retries and timeouts are not
		// starved by a backlog of posted continuations.
		var fn func()
		if len(s.timers) > 0 && !s.timers[0].at.After(time.Now()) {
			t := heap.Pop(&s.timers).(*timerTask)
			if !t.cancelled {
				fn = t.fn
			}
		} else if len(s.fifo) > 0 {
			fn = s.fifo[0]
			s.fifo = s.fifo[1:]
		}
		s.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}

type timerTask struct {
	at        time.Time
	seq       int64
	fn        func()
	cancelled bool
}

type timerHeap []*timerTask

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerTask)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
