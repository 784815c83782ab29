package order

import (
	"fmt"
	"slices"
)

// lifecycle 每个状态可以进入的下一状态。终态没有出边，相同状态也不算迁移：
// 重复的终态迁移意味着竞争失败。
var lifecycle = map[Status][]Status{
	StatusPending: {StatusFilled, StatusCancelled, StatusExpired, StatusFailed},
}

// StateMachine 条件单状态机：pending 只能单向进入某个终态。构造后只读。
type StateMachine struct {
	edges map[Status][]Status
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	edges := make(map[Status][]Status, len(lifecycle))
	for from, to := range lifecycle {
		edges[from] = slices.Clone(to)
	}
	return &StateMachine{edges: edges}
}

// Next 返回 from 可以进入的状态，终态返回空。
func (sm *StateMachine) Next(from Status) []Status {
	return slices.Clone(sm.edges[from])
}

// Allows from -> to 是否是合法迁移
func (sm *StateMachine) Allows(from, to Status) bool {
	return slices.Contains(sm.edges[from], to)
}

// ValidateTransition 非法迁移返回 ErrIllegalTransition，并带上 from 允许的目标。
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if sm.Allows(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s (allowed: %v)", ErrIllegalTransition, from, to, sm.Next(from))
}

// Describe 面向用户的状态说明
func (s Status) Describe() string {
	switch s {
	case StatusPending:
		return "等待触发"
	case StatusFilled:
		return "已成交"
	case StatusCancelled:
		return "已撤销"
	case StatusExpired:
		return "已过期"
	case StatusFailed:
		return "执行失败"
	}
	return "未知状态"
}
