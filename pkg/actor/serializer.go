// Package actor runs payment status updates through a single protoactor
// mailbox so that updates issued by one process never interleave.
package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Executor runs fn and returns its error.
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Inline runs fn on the caller's goroutine.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

const DefaultTimeout = 30 * time.Second

// replyGrace is how much longer the caller waits for a reply than the job is
// allowed to run, so a job that stops at its deadline still reports back.
const replyGrace = time.Second

// Messages
type runJob struct {
	ctx context.Context
	fn  func(context.Context) error
}

type jobDone struct {
	err error
}

type serialActor struct {
	logger *zap.Logger
}

func (a *serialActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *runJob:
		ctx.Respond(&jobDone{err: msg.run()})

	case *actor.Started:
		a.logger.Info("Serializer actor started")

	case *actor.Stopping:
		a.logger.Info("Serializer actor stopping")
	}
}

func (j *runJob) run() (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serialized job panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// Serializer executes jobs one at a time in submission order.
type Serializer struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
}

func NewSerializer(name string, timeout time.Duration, logger *zap.Logger) (*Serializer, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &serialActor{logger: logger.Named(name)}
	})
	pid, err := system.Root.SpawnNamed(props, name)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s actor: %w", name, err)
	}

	return &Serializer{system: system, pid: pid, timeout: timeout}, nil
}

// Do queues fn behind any job already submitted and waits for its result.
// fn runs under ctx bounded by the serializer timeout; once Do returns that
// ctx is cancelled, so a transaction fn opened on it rolls back instead of
// committing after the caller was told it failed. A job still queued when its
// ctx is done is skipped.
func (s *Serializer) Do(ctx context.Context, fn func(context.Context) error) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	future := s.system.Root.RequestFuture(s.pid, &runJob{ctx: jobCtx, fn: fn}, s.timeout+replyGrace)
	result, err := future.Result()
	if err != nil {
		return fmt.Errorf("failed to run serialized job: %w", err)
	}
	done, ok := result.(*jobDone)
	if !ok {
		return fmt.Errorf("unexpected serializer response %T", result)
	}
	return done.err
}

func (s *Serializer) Stop() error {
	return s.system.Root.StopFuture(s.pid).Wait()
}
