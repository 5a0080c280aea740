package gateway

import (
	"context"

	"IMCore/logger"
)

type fanoutJob struct {
	clients []*Client
	payload []byte
}

// LocalSender is the in-process presence.Sender: a worker pool that fans
// one encoded frame out to per-client send queues. An unresolvable or slow
// connection is skipped, never failing the batch.
type LocalSender struct {
	clients *Clients
	jobs    chan fanoutJob
	done    chan struct{}
}

func NewLocalSender(clients *Clients, workers, queue int) *LocalSender {
	s := &LocalSender{
		clients: clients,
		jobs:    make(chan fanoutJob, queue),
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *LocalSender) worker() {
	for {
		select {
		case <-s.done:
			return
		case job := <-s.jobs:
			for _, c := range job.clients {
				c.Enqueue(job.payload)
			}
		}
	}
}

// Send encodes the event once and enqueues a fanout job for the resolved
// clients. Empty resolutions are a silent no-op.
func (s *LocalSender) Send(_ context.Context, connIDs []string, event string, payload any) error {
	clients := s.clients.Resolve(connIDs)
	if len(clients) == 0 {
		return nil
	}
	frame, err := BuildEventFrame(event, "", payload)
	if err != nil {
		return err
	}
	select {
	case s.jobs <- fanoutJob{clients: clients, payload: frame}:
	default:
		logger.Warnf("[sender] fanout queue full, drop event=%s conns=%d", event, len(clients))
	}
	return nil
}

func (s *LocalSender) Close() {
	close(s.done)
}
