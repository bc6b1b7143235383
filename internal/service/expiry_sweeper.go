package service

import (
	"context"
	"examhub_backend/pkg/logger"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// ExpirySweeper 周期性结算已超时的考试记录，与交互时的惰性检查使用同一结算逻辑
type ExpirySweeper struct {
	Attempts *AttemptService
	cron     *cron.Cron
}

func NewExpirySweeper(attempts *AttemptService) *ExpirySweeper {
	return &ExpirySweeper{Attempts: attempts}
}

// Start schedule 为空时不启动
func (w *ExpirySweeper) Start(schedule string) error {
	if schedule == "" {
		logger.Log.Info("Expiry sweep disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, w.RunOnce); err != nil {
		return err
	}
	w.cron = c
	c.Start()

	logger.Log.Info("Expiry sweep started", zap.String("schedule", schedule))
	return nil
}

func (w *ExpirySweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := w.Attempts.FinalizeExpired(ctx)
	if err != nil {
		logger.Log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("Expired attempts finalized", zap.Int("count", n))
	}
}

// Stop 等待正在执行的任务结束
func (w *ExpirySweeper) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}
