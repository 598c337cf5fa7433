package scheduler

import (
	"context"
	"time"

	"premia/internal/logger"
	"premia/internal/market"
)

// AlignedScheduler 按分钟边界对齐触发任务，且只在交易时段内执行。
// 盘外按较长步长休眠，等待下一个开盘。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool
	MarketHoursFn  func(time.Time) bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval:      interval,
		Offset:        offset,
		MarketHoursFn: market.IsMarketHours,
		ctx:           ctx,
		nowFn:         time.Now,
	}
}

const offHoursWait = time.Minute

// Start 进入调度循环，ctx 取消时返回。task 串行执行，不会重叠。
func (s *AlignedScheduler) Start(task func()) {
	if s == nil || task == nil {
		logger.Warnf("scheduler: 任务为空，退出")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: 非法周期 %s，退出", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.MarketHoursFn == nil {
		s.MarketHoursFn = market.IsMarketHours
	}

	logger.Infof("scheduler: 启动 interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately && s.MarketHoursFn(s.nowFn()) {
		task()
	}

	for {
		now := s.nowFn()
		if !s.MarketHoursFn(now) {
			if !s.sleep(offHoursWait) {
				return
			}
			continue
		}

		wait := s.untilNextTick(now)
		if wait > 0 {
			if !s.sleep(wait) {
				return
			}
		}
		if !s.MarketHoursFn(s.nowFn()) {
			continue
		}
		task()
	}
}

// untilNextTick 计算到下一个对齐触发点的等待时长。
func (s *AlignedScheduler) untilNextTick(now time.Time) time.Duration {
	next := now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
	if !next.After(now) {
		next = next.Add(s.Interval)
	}
	return next.Sub(now)
}

func (s *AlignedScheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		logger.Infof("scheduler: 收到取消，退出调度循环")
		return false
	case <-timer.C:
		return true
	}
}
