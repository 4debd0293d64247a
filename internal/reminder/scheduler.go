package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-agenda/internal/integration"
)

// NewScheduler registers job on a seconds-resolution cron spec. Overlapping
// runs are skipped rather than queued.
func NewScheduler(ctx context.Context, spec string, job *Job, runTimeout time.Duration) (*cron.Cron, error) {
	logger := zerolog.Ctx(ctx)
	cl := cronLogger{logger: logger}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(spec, func() {
		RunOnce(ctx, job, runTimeout)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_CRON %q: %w", spec, err)
	}
	return c, nil
}

// RunOnce runs the job with a deadline and logs the outcome.
func RunOnce(ctx context.Context, job *Job, timeout time.Duration) {
	logger := zerolog.Ctx(ctx)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := job.Run(runCtx)
	switch {
	case errors.Is(err, integration.ErrIntegrationUnavailable):
		logger.Info().Msg("whatsapp integration unavailable, reminders skipped")
	case err != nil:
		logger.Error().Err(err).Msg("reminder run failed")
	default:
		logger.Info().
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Dur("took", time.Since(start)).
			Msg("reminder run complete")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
