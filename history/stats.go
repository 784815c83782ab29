package history

import (
	"fmt"

	"conditional-orders-go/order"
)

// NotAvailable 总数为 0 时成交率的展示值。
const NotAvailable = "N/A"

// Statistics 终态统计
type Statistics struct {
	Total     int
	Filled    int
	Cancelled int
	Expired   int
	Failed    int
}

// Compute 按终态计数。
func Compute(entries []Entry) Statistics {
	var s Statistics
	for _, e := range entries {
		switch e.Order.Status {
		case order.StatusFilled:
			s.Filled++
		case order.StatusCancelled:
			s.Cancelled++
		case order.StatusExpired:
			s.Expired++
		case order.StatusFailed:
			s.Failed++
		default:
			continue
		}
		s.Total++
	}
	return s
}

// FillRate 成交率 filled/total；total 为 0 时 ok=false。
func (s Statistics) FillRate() (float64, bool) {
	if s.Total == 0 {
		return 0, false
	}
	return float64(s.Filled) / float64(s.Total), true
}

// FillRateString 百分比字符串，total 为 0 时为 "N/A"。
func (s Statistics) FillRateString() string {
	rate, ok := s.FillRate()
	if !ok {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
