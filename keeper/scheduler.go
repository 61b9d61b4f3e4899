package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler 用 gocron 周期执行 Keeper.RunOnce
type Scheduler struct {
	scheduler gocron.Scheduler
	keeper    *Keeper
	ctx       context.Context
}

// NewScheduler 创建调度器，ctx 取消后正在进行的一轮会尽快结束
func NewScheduler(ctx context.Context, k *Keeper) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, keeper: k, ctx: ctx}, nil
}

// Schedule 注册周期任务，同一时间最多只有一轮在跑
func (s *Scheduler) Schedule(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run),
		gocron.WithName("keeper-scan"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule keeper: %w", err)
	}
	return nil
}

func (s *Scheduler) run() {
	if _, err := s.keeper.RunOnce(s.ctx); err != nil {
		s.keeper.Logger.Error("[keeper] run failed: %v", err)
	}
}

func (s *Scheduler) Start() {
	s.keeper.Logger.Info("[keeper] scheduler started")
	s.scheduler.Start()
}

func (s *Scheduler) Stop() error {
	s.keeper.Logger.Info("[keeper] scheduler stopping")
	return s.scheduler.Shutdown()
}
