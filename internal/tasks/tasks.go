package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const TypeResetDay = "jukebox:reset-day"

// Resetter starts a fresh day: empty queue, empty vote ledger.
type Resetter interface {
	ResetForNewDay(ctx context.Context) error
}

func NewResetDayTask() *asynq.Task {
	return asynq.NewTask(TypeResetDay, nil, asynq.MaxRetry(3), asynq.Timeout(time.Minute))
}

type Handlers struct {
	resetter Resetter
}

func NewHandlers(resetter Resetter) *Handlers {
	return &Handlers{resetter: resetter}
}

func (h *Handlers) HandleResetDay(ctx context.Context, t *asynq.Task) error {
	if err := h.resetter.ResetForNewDay(ctx); err != nil {
		return fmt.Errorf("failed to reset day: %w", err)
	}
	log.Info().Str("task", t.Type()).Msg("scheduled day reset done")
	return nil
}

// Worker runs the cron scheduler and the task server against the same Redis.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

func NewWorker(redisOpt asynq.RedisClientOpt, cronspec string, handlers *Handlers) (*Worker, error) {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeResetDay, handlers.HandleResetDay)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.Local})
	if _, err := scheduler.Register(cronspec, NewResetDayTask()); err != nil {
		return nil, fmt.Errorf("failed to schedule day reset %q: %w", cronspec, err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})

	return &Worker{server: server, scheduler: scheduler, mux: mux}, nil
}

func (w *Worker) Start() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := w.server.Start(w.mux); err != nil {
		w.scheduler.Shutdown()
		return fmt.Errorf("failed to start task server: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}
