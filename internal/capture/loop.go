package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"platewatch/internal/clock"
	"platewatch/internal/logging"
	"platewatch/internal/lpr"
)

// Source yields decoded frames.
type Source interface {
	ReadFrame(ctx context.Context) (lpr.Frame, error)
	Reconnect(ctx context.Context) error
}

// Submitter accepts frames without blocking.
type Submitter interface {
	Submit(frame lpr.Frame) bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// LoopOptions configures a Loop.
type LoopOptions struct {
	PollInterval    time.Duration
	ReconnectDelay  time.Duration
	ReconnectSettle time.Duration
	Clock           clock.Clock
	Sleep           Sleeper
	Logger          *slog.Logger
}

// LoopStats reports capture counters.
type LoopStats struct {
	FramesRead   uint64 `json:"frames_read"`
	Submitted    uint64 `json:"submitted"`
	Skipped      uint64 `json:"skipped"`
	ReadErrors   uint64 `json:"read_errors"`
	Reconnects   uint64 `json:"reconnects"`
	LastFrameSeq uint64 `json:"last_frame_seq"`
}

// Loop reads frames from a Source and hands them to a Submitter.
type Loop struct {
	source    Source
	submitter Submitter
	opts      LoopOptions
	clock     clock.Clock
	sleep     Sleeper
	logger    *slog.Logger

	seq        atomic.Uint64
	framesRead atomic.Uint64
	submitted  atomic.Uint64
	skipped    atomic.Uint64
	readErrors atomic.Uint64
	reconnects atomic.Uint64
}

// NewLoop constructs a capture loop.
func NewLoop(source Source, submitter Submitter, opts LoopOptions) *Loop {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Loop{
		source:    source,
		submitter: submitter,
		opts:      opts,
		clock:     clock.Or(opts.Clock),
		sleep:     sleep,
		logger:    logging.NewComponentLogger(opts.Logger, "capture"),
	}
}

// Run reads until ctx is cancelled. Source failures never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	var lastSubmit time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.readErrors.Add(1)
			if !l.recover(ctx, err) {
				return nil
			}
			continue
		}
		l.framesRead.Add(1)

		now := l.clock.Now()
		if !lastSubmit.IsZero() && now.Sub(lastSubmit) < l.opts.PollInterval {
			l.skipped.Add(1)
			continue
		}
		lastSubmit = now

		frame.Seq = l.seq.Add(1)
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = now
		}
		l.submitted.Add(1)
		if !l.submitter.Submit(frame) {
			l.logger.Debug("pending frame replaced",
				logging.FrameSeq(frame.Seq),
			)
		}
	}
}

// recover waits, reconnects and lets the source settle. It returns false
// when ctx was cancelled while waiting.
func (l *Loop) recover(ctx context.Context, readErr error) bool {
	logging.WarnWithContext(l.logger, "frame read failed; reconnecting", "source_read_failed",
		logging.Error(readErr),
		logging.Duration("delay", l.opts.ReconnectDelay),
		logging.String(logging.FieldErrorHint, "check camera reachability and the source url"),
		logging.String(logging.FieldImpact, "frames are missed until the source reconnects"),
	)
	if err := l.sleep(ctx, l.opts.ReconnectDelay); err != nil {
		return false
	}
	l.reconnects.Add(1)
	if err := l.source.Reconnect(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		logging.WarnWithContext(l.logger, "source reconnect failed", "source_reconnect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg availability and camera credentials"),
			logging.String(logging.FieldImpact, "capture retries after the reconnect delay"),
		)
	}
	if err := l.sleep(ctx, l.opts.ReconnectSettle); err != nil {
		return false
	}
	return true
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		FramesRead:   l.framesRead.Load(),
		Submitted:    l.submitted.Load(),
		Skipped:      l.skipped.Load(),
		ReadErrors:   l.readErrors.Load(),
		Reconnects:   l.reconnects.Load(),
		LastFrameSeq: l.seq.Load(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
