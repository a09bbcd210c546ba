package service

import (
	"context"

	"go.uber.org/zap"

	pkgerrors "dorm-track/backend/pkg/errors"
)

// allocationStep 补偿模式下的一个写入步骤
// compensate 为 nil 表示该步骤无需回滚
type allocationStep struct {
	name       string
	execute    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSteps 顺序执行步骤；某一步失败时逆序补偿已完成的步骤后返回该步骤的错误
// 补偿在重试后仍失败时返回 *pkgerrors.CompensationError
func (s *roomAllocationService) runSteps(ctx context.Context, steps []allocationStep, fields []zap.Field) error {
	done := make([]allocationStep, 0, len(steps))

	for _, step := range steps {
		err := step.execute(ctx)
		if err == nil {
			done = append(done, step)
			continue
		}

		failed, compErr := s.compensate(ctx, done, fields)
		if compErr != nil {
			s.logger.Error("补偿失败，数据可能不一致",
				append(fields,
					zap.String("step", step.name),
					zap.NamedError("cause", err),
					zap.Strings("failed_compensations", failed),
					zap.Error(compErr),
					zap.Bool("needs_reconciliation", true),
				)...)
			return &pkgerrors.CompensationError{Step: step.name, Cause: err, Failed: failed, Err: compErr}
		}

		if len(done) > 0 {
			s.logger.Warn("分配步骤失败，已补偿回滚",
				append(fields, zap.String("step", step.name), zap.Int("compensated", len(done)), zap.Error(err))...)
		}
		return err
	}
	return nil
}

// compensate 逆序执行补偿；单个补偿失败不影响其余补偿继续执行
func (s *roomAllocationService) compensate(ctx context.Context, done []allocationStep, fields []zap.Field) ([]string, error) {
	var (
		failed  []string
		lastErr error
	)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		if err := s.retry(ctx, step.compensate); err != nil {
			s.metrics.ObserveCompensationFailure(step.name)
			s.logger.Error("补偿步骤失败",
				append(fields, zap.String("compensation", step.name), zap.Error(err))...)
			failed = append(failed, step.name)
			lastErr = err
		}
	}
	return failed, lastErr
}

// retry 补偿均为幂等操作，按指数退避重试
func (s *roomAllocationService) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.cfg.CompensationBackoff
	var err error
	for attempt := 0; attempt <= s.cfg.CompensationRetries; attempt++ {
		if attempt > 0 && backoff > 0 {
			s.sleep(backoff)
			backoff *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
