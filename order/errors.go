package order

import "errors"

var (
	// ErrInvalidOrderConfig 创建/修改参数不合法，不会产生任何状态。
	ErrInvalidOrderConfig = errors.New("invalid order config")
	// ErrNotFound 订单不存在或不属于该用户。
	ErrNotFound = errors.New("order not found")
	// ErrNotPending 订单已离开 pending，不能再修改。
	ErrNotPending = errors.New("order is not pending")
	// ErrStaleOrder 状态 CAS 失败：订单已被并发撤销/过期/成交。
	ErrStaleOrder = errors.New("stale order")
	// ErrIllegalTransition 状态机拒绝的迁移。
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrDuplicateOrder 重复写入相同 ID。
	ErrDuplicateOrder = errors.New("duplicate order id")
)
