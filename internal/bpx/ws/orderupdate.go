package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const OrderUpdateStream = "account.orderUpdate"

// OrderUpdate is one event from the private order-update stream.
type OrderUpdate struct {
	Event          string
	Symbol         string
	OrderID        string
	Status         string
	FillQuantity   float64
	FilledQuantity float64
	Price          float64
}

// ParseOrderUpdate extracts an order update from a raw stream message. The
// second return is false for messages from other streams or ping replies.
func ParseOrderUpdate(raw json.RawMessage) (OrderUpdate, bool) {
	var msg struct {
		Stream string         `json:"stream"`
		Data   map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return OrderUpdate{}, false
	}
	if msg.Stream != OrderUpdateStream || msg.Data == nil {
		return OrderUpdate{}, false
	}
	update := OrderUpdate{
		Event:          asString(msg.Data["e"]),
		Symbol:         asString(msg.Data["s"]),
		OrderID:        asString(msg.Data["i"]),
		Status:         asString(msg.Data["X"]),
		FillQuantity:   asFloat(msg.Data["l"]),
		FilledQuantity: asFloat(msg.Data["z"]),
		Price:          asFloat(msg.Data["L"]),
	}
	if update.Event == "" && update.OrderID == "" {
		return OrderUpdate{}, false
	}
	return update, true
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	case json.Number:
		f, _ := val.Float64()
		return f
	default:
		return 0
	}
}
