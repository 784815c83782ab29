package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"conditional-orders-go/infrastructure/logger"
)

// 回放条件单脚本，使用 paper 执行器，输出每个订单的终态与成交统计。
// 用法：
//
//	go run ./cmd/replay -scenario configs/scenario.yaml -log debug
func main() {
	path := flag.String("scenario", "configs/scenario.yaml", "回放脚本路径")
	level := flag.String("log", "warn", "日志级别")
	flag.Parse()

	sc, err := loadScenario(*path)
	if err != nil {
		log.Fatalf("加载脚本失败: %v", err)
	}
	lg, err := logger.New(logger.Config{Level: *level, Format: "console"})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	rep, err := run(context.Background(), sc, lg)
	if err != nil {
		log.Fatalf("回放失败: %v", err)
	}

	fmt.Printf("%-16s %-10s %-10s %-12s %-12s %s\n", "REF", "OWNER", "STATUS", "FILLED", "TRIGGER", "DETAIL")
	for _, o := range rep.Orders {
		filled, trigger := "-", "-"
		if !o.Price.IsZero() {
			filled = o.Price.String()
		}
		if o.Trigger.Valid {
			trigger = o.Trigger.Decimal.String()
		}
		fmt.Printf("%-16s %-10s %-10s %-12s %-12s %s\n", o.Ref, o.Owner, o.Status, filled, trigger, o.Detail)
	}
	fmt.Println()
	for _, owner := range sortedOwners(rep.Stats) {
		s := rep.Stats[owner]
		fmt.Printf("[%s] total=%d filled=%d cancelled=%d expired=%d failed=%d fillRate=%s\n",
			owner, s.Total, s.Filled, s.Cancelled, s.Expired, s.Failed, s.FillRateString())
	}
	fmt.Printf("fills=%d\n", len(rep.Fills))
	for _, e := range rep.Errors {
		fmt.Fprintln(os.Stderr, e)
	}
}
