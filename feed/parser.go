package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNoPrice 消息中没有可用的价格字段
var ErrNoPrice = errors.New("no price in message")

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// TickerUpdate 兼容 miniTicker（c=最新价）与 trade/aggTrade（p=成交价）。
type TickerUpdate struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Price  string `json:"p"`
}

// ParseTick 解析 combined stream 消息，返回资产与最新价。
// 也接受未包装的单流消息。
func ParseTick(raw []byte) (symbol string, price decimal.Decimal, err error) {
	var msg CombinedMessage
	if err = json.Unmarshal(raw, &msg); err != nil {
		return "", decimal.Zero, fmt.Errorf("decode frame: %w", err)
	}
	payload := []byte(msg.Data)
	if len(payload) == 0 {
		payload = raw
	}
	var upd TickerUpdate
	if err = json.Unmarshal(payload, &upd); err != nil {
		return "", decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	field := upd.Close
	if field == "" {
		field = upd.Price
	}
	if upd.Symbol == "" || field == "" {
		return "", decimal.Zero, ErrNoPrice
	}
	price, err = decimal.NewFromString(field)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("parse price %q: %w", field, err)
	}
	return upd.Symbol, price, nil
}
