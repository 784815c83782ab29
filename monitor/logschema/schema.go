package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"order_created": {
		Event:    "order_created",
		Required: []string{"owner", "asset", "kind", "side", "amount"},
	},
	"order_updated": {
		Event:    "order_updated",
		Required: []string{"owner", "asset"},
	},
	"order_filled": {
		Event:    "order_filled",
		Required: []string{"owner", "asset", "status", "filledPrice", "txId"},
	},
	"order_cancelled": {
		Event:    "order_cancelled",
		Required: []string{"owner", "asset", "status"},
	},
	"order_expired": {
		Event:    "order_expired",
		Required: []string{"owner", "asset", "status"},
	},
	"order_failed": {
		Event:    "order_failed",
		Required: []string{"owner", "asset", "status", "reason"},
	},
	"tick_evaluated": {
		Event:    "tick_evaluated",
		Required: []string{"price", "fired"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查日志字段是否包含 schema 中要求的 key。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}
