package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionFailed 执行回调失败，订单已置为 failed
	ErrExecutionFailed = errors.New("execution failed")
	// ErrInvalidTick 资产为空或价格 <= 0
	ErrInvalidTick = errors.New("invalid tick")
	// ErrNoExecutor 未配置执行回调
	ErrNoExecutor = errors.New("executor is required")
)

// ExecutionError 携带失败订单与底层原因。
type ExecutionError struct {
	OrderID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("order %s: %v: %v", e.OrderID, ErrExecutionFailed, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionFailed }
