package session

import (
	"context"
	"errors"
	"fmt"
)

var errNoTransport = errors.New("no transport configured")

func (s *Session) setContent(_ context.Context, msg Message) (Reply, error) {
	problems, err := s.repo.SetContent(msg.Text, msg.Dialect)
	return Reply{Problems: problems}, err
}

func (s *Session) editContent(_ context.Context, msg Message) (Reply, error) {
	delta, problems, err := s.repo.EditContent(msg.Text, msg.Dialect)
	return Reply{Delta: delta, Problems: problems}, err
}

func (s *Session) destroy(_ context.Context, msg Message) (Reply, error) {
	delta, err := s.repo.Destroy(msg.ID)
	return Reply{Delta: delta}, err
}

func (s *Session) publishLibraries(context.Context, Message) (Reply, error) {
	return Reply{Delta: s.repo.PublishLibraries()}, nil
}

func (s *Session) publishProject(context.Context, Message) (Reply, error) {
	return Reply{Delta: s.repo.PublishProject()}, nil
}

func (s *Session) unpublishProject(context.Context, Message) (Reply, error) {
	return Reply{Delta: s.repo.UnpublishProject()}, nil
}

func (s *Session) prepareCommit(context.Context, Message) (Reply, error) {
	batch := s.repo.PrepareCommit()
	s.metrics.PendingEntries.Set(float64(len(batch)))
	return Reply{Batch: batch}, nil
}

// commit runs a full round trip: prepare, ship, then acknowledge or fail.
// Edits queued behind it wait, and the batch shipped is a copy, so nothing
// can change it while the store holds it.
func (s *Session) commit(ctx context.Context, _ Message) (Reply, error) {
	batch := s.repo.PrepareCommit()
	s.metrics.PendingEntries.Set(float64(len(batch)))
	if batch == nil {
		s.metrics.CommitsTotal.WithLabelValues("empty").Inc()
		return Reply{}, nil
	}
	if s.transport == nil {
		s.repo.CommitFailed()
		s.metrics.CommitsTotal.WithLabelValues("failed").Inc()
		return Reply{Batch: batch}, errNoTransport
	}

	acks, err := s.transport.Commit(ctx, batch)
	if err != nil {
		s.repo.CommitFailed()
		s.metrics.CommitsTotal.WithLabelValues("failed").Inc()
		return Reply{Batch: batch}, fmt.Errorf("committing %d entries: %w", len(batch), err)
	}

	delta, err := s.repo.CommitAcknowledged(acks)
	if err != nil {
		s.metrics.CommitsTotal.WithLabelValues("failed").Inc()
		return Reply{Batch: batch, Acks: acks}, fmt.Errorf("applying acknowledgments: %w", err)
	}
	s.metrics.CommitsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("commit acknowledged", "entries", len(batch), "acks", len(acks))
	return Reply{Delta: delta, Batch: batch, Acks: acks}, nil
}
