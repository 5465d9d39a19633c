package queue

import (
	"encoding/json"
	"fmt"
)

// OrderMessage 是准入成功后交给后台 worker 落库的订单。
type OrderMessage struct {
	OrderID   int64 `json:"orderId"`
	UserID    int64 `json:"userId"`
	VoucherID int64 `json:"voucherId"`
	CreatedAt int64 `json:"createdAt"` // unix 毫秒
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderID <= 0 {
		return fmt.Errorf("orderId is required")
	}
	if m.UserID <= 0 {
		return fmt.Errorf("userId is required")
	}
	if m.VoucherID <= 0 {
		return fmt.Errorf("voucherId is required")
	}
	return nil
}

func decodeJSON(b []byte) (OrderMessage, error) {
	var m OrderMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return OrderMessage{}, err
	}
	if err := m.Validate(); err != nil {
		return OrderMessage{}, err
	}
	return m, nil
}
