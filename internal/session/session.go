// Package session serializes every operation on a repository through one
// goroutine. Callers send messages and wait for replies; the repository
// itself is never shared.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phobologic/declsync/internal/diag"
	"github.com/phobologic/declsync/internal/model"
	"github.com/phobologic/declsync/internal/repository"
)

var (
	// ErrUnsupportedKind is returned for message kinds with no handler.
	ErrUnsupportedKind = errors.New("unsupported message kind")

	// ErrClosed is returned by Send after the session stopped.
	ErrClosed = errors.New("session closed")
)

// Kind tags a message.
type Kind int

const (
	SetContent Kind = iota + 1
	EditContent
	Destroy
	PublishLibraries
	PublishProject
	UnpublishProject
	PrepareCommit
	Commit
)

var kindNames = map[Kind]string{
	SetContent:       "set_content",
	EditContent:      "edit_content",
	Destroy:          "destroy",
	PublishLibraries: "publish_libraries",
	PublishProject:   "publish_project",
	UnpublishProject: "unpublish_project",
	PrepareCommit:    "prepare_commit",
	Commit:           "commit",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is a request to the session.
type Message struct {
	Kind    Kind
	Text    string
	Dialect string
	// ID names the declaration for Destroy.
	ID string
}

// Reply carries the outcome of a message. Delta is nil when the catalog did
// not change; Batch is nil when there was nothing to commit.
type Reply struct {
	Delta    *model.CatalogDelta
	Problems diag.List
	Batch    []model.EditedEntry
	Acks     []model.Ack
}

// Transport ships a commit batch to the backing store and returns one
// acknowledgment per accepted entry.
type Transport interface {
	Commit(ctx context.Context, batch []model.EditedEntry) ([]model.Ack, error)
}

// Config holds optional Session settings.
type Config struct {
	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Registerer receives the session metrics. Defaults to a private registry.
	Registerer prometheus.Registerer

	// QueueSize bounds the number of messages waiting to be handled.
	QueueSize int
}

type handler func(ctx context.Context, msg Message) (Reply, error)

type request struct {
	ctx   context.Context
	msg   Message
	reply chan result
}

type result struct {
	reply Reply
	err   error
}

// Session owns a repository and handles messages one at a time.
type Session struct {
	repo      *repository.Repository
	transport Transport
	logger    *slog.Logger
	metrics   *Metrics
	handlers  map[Kind]handler

	requests chan request
	quit     chan struct{}
	done     chan struct{}
	start    sync.Once
	stop     sync.Once
}

// New returns a Session around repo. transport may be nil, in which case
// Commit fails.
func New(repo *repository.Repository, transport Transport, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 16
	}
	s := &Session{
		repo:      repo,
		transport: transport,
		logger:    logger,
		metrics:   NewMetrics(cfg.Registerer),
		requests:  make(chan request, queue),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.handlers = map[Kind]handler{
		SetContent:       s.setContent,
		EditContent:      s.editContent,
		Destroy:          s.destroy,
		PublishLibraries: s.publishLibraries,
		PublishProject:   s.publishProject,
		UnpublishProject: s.unpublishProject,
		PrepareCommit:    s.prepareCommit,
		Commit:           s.commit,
	}
	return s
}

// Metrics returns the session's metrics.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// Start launches the goroutine that handles messages. It runs until ctx is
// cancelled or Close is called. Calling Start more than once has no effect.
func (s *Session) Start(ctx context.Context) {
	s.start.Do(func() {
		go s.loop(ctx)
	})
}

// Close stops the session and waits for the message in progress to finish.
func (s *Session) Close() {
	s.stop.Do(func() { close(s.quit) })
	s.start.Do(func() { close(s.done) })
	<-s.done
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case req := <-s.requests:
			reply, err := s.handle(req.ctx, req.msg)
			req.reply <- result{reply: reply, err: err}
		}
	}
}

// Send queues msg and waits for its reply.
func (s *Session) Send(ctx context.Context, msg Message) (Reply, error) {
	req := request{ctx: ctx, msg: msg, reply: make(chan result, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.done:
		return Reply{}, ErrClosed
	}
	select {
	case res := <-req.reply:
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.done:
		return Reply{}, ErrClosed
	}
}

func (s *Session) handle(ctx context.Context, msg Message) (Reply, error) {
	h, ok := s.handlers[msg.Kind]
	if !ok {
		s.metrics.MessagesTotal.WithLabelValues(msg.Kind.String(), "unsupported").Inc()
		return Reply{}, fmt.Errorf("%w: %v", ErrUnsupportedKind, msg.Kind)
	}
	if err := ctx.Err(); err != nil {
		s.metrics.MessagesTotal.WithLabelValues(msg.Kind.String(), "cancelled").Inc()
		return Reply{}, err
	}

	started := time.Now()
	reply, err := h(ctx, msg)
	s.metrics.HandleSeconds.WithLabelValues(msg.Kind.String()).Observe(time.Since(started).Seconds())

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		s.logger.Error("message failed", "kind", msg.Kind, "error", err)
	case reply.Problems.HasErrors():
		outcome = "rejected"
	}
	s.metrics.MessagesTotal.WithLabelValues(msg.Kind.String(), outcome).Inc()
	return reply, err
}
