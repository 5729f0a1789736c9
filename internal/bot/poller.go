package bot

import (
	"context"
	"sync"
	"time"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/telegram"

	"go.uber.org/zap"
)

// UpdateSource is the inbound side of the chat provider: a blocking long
// poll returning zero or more updates strictly ordered by update id.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]telegram.Update, error)
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd *telegram.Update)
}

// Poller drives the long-poll loop. It tracks the highest update id seen and
// asks only for strictly newer updates on the next call; delivery is
// therefore at-least-once and handlers must tolerate redelivery.
type Poller struct {
	source     UpdateSource
	handler    UpdateHandler
	timeout    int
	retryDelay time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

func NewPoller(source UpdateSource, handler UpdateHandler, timeoutSec int, retryDelay time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		source:     source,
		handler:    handler,
		timeout:    timeoutSec,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled. Transport errors pause the loop for the
// fixed retry delay and never terminate it. Each update is handled in its own
// goroutine so a slow or panicking handler cannot stall polling or take down
// other updates from the same batch.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64

	for {
		if ctx.Err() != nil {
			p.wg.Wait()
			return ctx.Err()
		}

		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.wg.Wait()
				return ctx.Err()
			}
			p.logger.Warn("Polling failed, will retry",
				zap.Error(err),
				zap.Duration("delay", p.retryDelay),
			)
			select {
			case <-ctx.Done():
				p.wg.Wait()
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for i := range updates {
			upd := updates[i]
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}

			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						p.logger.Error("Handler panicked",
							zap.Int64("update_id", upd.UpdateID),
							zap.Any("panic", r),
						)
					}
				}()
				p.handler.HandleUpdate(ctx, &upd)
			}()
		}
	}
}
