// Package sweeper 周期性回收过期的库存预占。
package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/zookeeper"
)

// ExpiredSweeper 是 reservation.Manager 中被清扫器使用的部分。
type ExpiredSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
	Now() time.Time
}

// ReleasedFunc 在一批预占组被释放后调用，例如把对应的结账会话标记为过期。
type ReleasedFunc func(ctx context.Context, groupIDs []string) error

// Sweeper 在每个周期抢占分布式锁，保证同一时刻只有一个副本在清扫。
type Sweeper struct {
	manager    ExpiredSweeper
	locker     zookeeper.Locker
	interval   time.Duration
	onReleased ReleasedFunc
}

func New(manager ExpiredSweeper, locker zookeeper.Locker, interval time.Duration, onReleased ReleasedFunc) *Sweeper {
	if locker == nil {
		locker = &zookeeper.LocalLock{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{manager: manager, locker: locker, interval: interval, onReleased: onReleased}
}

// Run 阻塞运行直到 ctx 取消；单次清扫失败只记录日志。
func (s *Sweeper) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ reservation sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 reservation sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce 执行一次清扫，返回被释放的预占组；锁被其他副本持有时直接跳过。
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if err := s.locker.Lock(lockCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Ctx(ctx).Debug().Msg("sweep lock held elsewhere, skipping")
			return nil, nil
		}
		return nil, errors.Wrap(err, "acquire sweep lock")
	}
	defer func() {
		if err := s.locker.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("release sweep lock")
		}
	}()

	groupIDs, err := s.manager.SweepExpired(ctx, s.manager.Now())
	if len(groupIDs) > 0 {
		metrics.SweeperReleased.Add(float64(len(groupIDs)))
		if s.onReleased != nil {
			if cbErr := s.onReleased(ctx, groupIDs); cbErr != nil {
				logger.Ctx(ctx).Error().Err(cbErr).Strs("groups", groupIDs).Msg("post-sweep callback failed")
			}
		}
	}
	return groupIDs, err
}
