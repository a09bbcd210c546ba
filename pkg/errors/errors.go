package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConditionNotMet 条件更新未命中：行不存在，或守卫条件（容量、状态）已不成立
var ErrConditionNotMet = errors.New("条件更新未命中任何记录")

// ErrDuplicate 唯一约束冲突
var ErrDuplicate = errors.New("记录已存在")

// PostgreSQL SQLSTATE
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// IsUniqueViolation 判断错误是否为唯一约束冲突
// 同时兼容 gorm TranslateError 翻译后的 ErrDuplicatedKey 与原始 pgconn 错误
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsCheckViolation 判断错误是否为 CHECK 约束冲突
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation
}

// ErrReconciliationRequired 补偿失败，三条记录可能处于不一致状态，需要人工核对
var ErrReconciliationRequired = errors.New("补偿失败，需要人工核对数据")

// CompensationError 正向步骤失败后补偿也失败
// Step 为失败的正向步骤，Cause 为正向失败原因，Failed 为未能执行成功的补偿步骤，Err 为补偿的最后一次错误
type CompensationError struct {
	Step   string
	Cause  error
	Failed []string
	Err    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("步骤 %s 失败 (%v)，补偿 %v 失败: %v", e.Step, e.Cause, e.Failed, e.Err)
}

// Unwrap 同时暴露 ErrReconciliationRequired 与正向失败原因，便于 errors.Is 判断
func (e *CompensationError) Unwrap() []error {
	return []error{ErrReconciliationRequired, e.Cause}
}
