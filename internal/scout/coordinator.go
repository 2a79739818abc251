package scout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// MaxQueryAttempts bounds the retries for a single scout query.
// Exhausting the retries is an infrastructure failure, not a
// verification failure.
const MaxQueryAttempts = 3

// ErrScoutUnavailable is returned when a scout query cannot complete
// after bounded retries. Callers surface this as an infra condition.
var ErrScoutUnavailable = errors.New("scout unavailable after retries")

// Bundle is the combined result of the pre-implementation queries.
type Bundle struct {
	Context  *ContextReport
	Commands *CommandReport
}

// Coordinator fans the independent scout queries out in parallel and
// retries transient failures with exponential backoff.
type Coordinator struct {
	scout   Scout
	timeout time.Duration
	log     *zap.Logger
}

// NewCoordinator wires a coordinator around a scout. timeout bounds
// each individual query attempt; zero means no per-attempt bound.
func NewCoordinator(s Scout, timeout time.Duration, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{scout: s, timeout: timeout, log: log}
}

// Gather runs both queries concurrently and waits for both. A failure
// of either query after retries fails the whole gather.
func (c *Coordinator) Gather(ctx context.Context, taskDescription string) (*Bundle, error) {
	type contextResult struct {
		report *ContextReport
		err    error
	}
	type commandResult struct {
		report *CommandReport
		err    error
	}

	contextCh := make(chan contextResult, 1)
	commandCh := make(chan commandResult, 1)

	go func() {
		report, err := retryQuery(ctx, c.log.Named("context"), func(qctx context.Context) (*ContextReport, error) {
			return c.scout.QueryContext(qctx, taskDescription)
		}, c.timeout)
		contextCh <- contextResult{report, err}
	}()
	go func() {
		report, err := retryQuery(ctx, c.log.Named("commands"), func(qctx context.Context) (*CommandReport, error) {
			return c.scout.QueryCommands(qctx)
		}, c.timeout)
		commandCh <- commandResult{report, err}
	}()

	ctxRes := <-contextCh
	cmdRes := <-commandCh

	if ctxRes.err != nil {
		return nil, fmt.Errorf("context query: %w", ctxRes.err)
	}
	if cmdRes.err != nil {
		return nil, fmt.Errorf("command query: %w", cmdRes.err)
	}
	return &Bundle{Context: ctxRes.report, Commands: cmdRes.report}, nil
}

// validator lets retryQuery check either report type.
type validator interface {
	Validate() error
}

func retryQuery[T validator](ctx context.Context, log *zap.Logger, query func(context.Context) (T, error), timeout time.Duration) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		qctx := ctx
		cancel := func() {}
		if timeout > 0 {
			qctx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		report, err := query(qctx)
		if err != nil {
			log.Warn("scout query failed", zap.Int("attempt", attempt), zap.Error(err))
			return report, err
		}
		// A malformed report will not improve on retry.
		if verr := report.Validate(); verr != nil {
			return report, backoff.Permanent(verr)
		}
		return report, nil
	}

	report, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(MaxQueryAttempts))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || ctx.Err() != nil {
			return report, err
		}
		return report, fmt.Errorf("%w: %v", ErrScoutUnavailable, err)
	}
	return report, nil
}
