package scheduler

import "github.com/cuongbtq/zimage-orchestrator/internal/domain"

// jobQueue is the FIFO backlog of jobs not yet submitted
type jobQueue struct {
	jobs []domain.Job
}

func newJobQueue(jobs []domain.Job) *jobQueue {
	backlog := make([]domain.Job, len(jobs))
	copy(backlog, jobs)
	return &jobQueue{jobs: backlog}
}

func (q *jobQueue) Len() int {
	return len(q.jobs)
}

func (q *jobQueue) Pop() domain.Job {
	job := q.jobs[0]
	q.jobs[0] = domain.Job{}
	q.jobs = q.jobs[1:]
	return job
}

// Drain removes and returns every remaining job
func (q *jobQueue) Drain() []domain.Job {
	rest := q.jobs
	q.jobs = nil
	return rest
}

// inFlightSet tracks submitted jobs by prompt id, iterated in admission order
type inFlightSet struct {
	byID  map[string]*domain.SubmissionHandle
	order []string
}

func newInFlightSet(capacity int) *inFlightSet {
	return &inFlightSet{
		byID:  make(map[string]*domain.SubmissionHandle, capacity),
		order: make([]string, 0, capacity),
	}
}

func (s *inFlightSet) Len() int {
	return len(s.byID)
}

func (s *inFlightSet) Contains(promptID string) bool {
	_, ok := s.byID[promptID]
	return ok
}

func (s *inFlightSet) Add(h *domain.SubmissionHandle) {
	s.byID[h.PromptID] = h
	s.order = append(s.order, h.PromptID)
}

func (s *inFlightSet) Remove(promptID string) {
	if _, ok := s.byID[promptID]; !ok {
		return
	}
	delete(s.byID, promptID)
	for i, id := range s.order {
		if id == promptID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Handles returns a snapshot of the entries in admission order
func (s *inFlightSet) Handles() []*domain.SubmissionHandle {
	out := make([]*domain.SubmissionHandle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
