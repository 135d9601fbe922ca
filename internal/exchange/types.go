package exchange

import (
	"math"
	"strings"
)

type Side string

const (
	SideBid Side = "Bid"
	SideAsk Side = "Ask"
)

type Level struct {
	Price float64
	Size  float64
}

type Book struct {
	Bids []Level
	Asks []Level
}

// BestAsk returns the lowest ask, or 0 when the book is empty.
func (b Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Position is one account's exchange-reported state for a symbol. Fetched
// fresh on every query; a zero NetQuantity means flat.
type Position struct {
	Symbol           string
	NetQuantity      float64
	EntryPrice       float64
	MarkPrice        float64
	LiquidationPrice float64
	UnrealizedPnL    float64
	InitialMargin    float64
}

func (p Position) Flat() bool {
	return p.NetQuantity == 0
}

func (p Position) Size() float64 {
	return math.Abs(p.NetQuantity)
}

type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Price      float64
	Quantity   float64
	ReduceOnly bool
}

type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusOpen
	StatusFilled
	StatusNotFound
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// CanonicalSymbol is the single place symbol formatting variants are
// reconciled: upper case with "_" separators.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "-", "_"))
}

func SameSymbol(a, b string) bool {
	return CanonicalSymbol(a) == CanonicalSymbol(b)
}
