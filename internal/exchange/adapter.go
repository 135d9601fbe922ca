package exchange

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	collateralAsset = "USDC"
	withdrawalChain = "Solana"

	defaultQuantityStep = 0.01
	marginAttempts      = 5
	marginBackoff       = time.Second
	positionRetryDelay  = time.Second
)

// Transport sends one signed (or public, when instruction is empty) request.
// Satisfied by rest.Client.
type Transport interface {
	Do(ctx context.Context, method, path, instruction string, params map[string]string, out any) error
}

// Adapter wraps one account's Backpack API access into the typed operations
// the hedge engine consumes, normalizing errors and payload quirks so upper
// layers never see raw exchange responses.
type Adapter struct {
	name      string
	transport Transport
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	steps map[string]float64
}

func New(name string, transport Transport, log *zap.Logger) *Adapter {
	return &Adapter{
		name:      name,
		transport: transport,
		log:       log,
		sleep:     sleepCtx,
		steps:     make(map[string]float64),
	}
}

func (a *Adapter) Name() string {
	return a.name
}

// OrderBook returns the current book, or an empty book on any failure.
// Callers treat an empty book as a retry signal, never as success.
func (a *Adapter) OrderBook(ctx context.Context, symbol string) Book {
	var payload any
	err := a.transport.Do(ctx, http.MethodGet, "/api/v1/depth", "", map[string]string{"symbol": symbol}, &payload)
	if err != nil {
		a.log.Warn("order book fetch failed", zap.String("account", a.name), zap.String("symbol", symbol), zap.Error(normalizeError(err)))
		return Book{}
	}
	m, ok := toMap(unwrapData(payload))
	if !ok {
		a.log.Warn("order book payload malformed", zap.String("account", a.name), zap.String("symbol", symbol))
		return Book{}
	}
	return Book{
		Bids: levelsFromAny(m["bids"]),
		Asks: levelsFromAny(m["asks"]),
	}
}

// QuantityStep returns the symbol's minimum quantity increment from market
// metadata. Steps are immutable per market and cached after the first fetch.
func (a *Adapter) QuantityStep(ctx context.Context, symbol string) (float64, error) {
	a.mu.Lock()
	if step, ok := a.steps[CanonicalSymbol(symbol)]; ok {
		a.mu.Unlock()
		return step, nil
	}
	a.mu.Unlock()

	var payload any
	if err := a.transport.Do(ctx, http.MethodGet, "/api/v1/markets", "", nil, &payload); err != nil {
		return 0, normalizeError(err)
	}
	markets, ok := listFromPayload(payload)
	if !ok {
		return 0, &Error{Kind: KindMalformed, Message: "markets payload is not a list"}
	}
	step := defaultQuantityStep
	for _, entry := range markets {
		m, ok := toMap(entry)
		if !ok {
			continue
		}
		if !SameSymbol(stringFromMap(m, "symbol"), symbol) {
			continue
		}
		if v := floatFromMap(m, "baseIncrement", "stepSize"); v > 0 {
			step = v
		}
		break
	}
	a.mu.Lock()
	a.steps[CanonicalSymbol(symbol)] = step
	a.mu.Unlock()
	return step, nil
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side Side, price, quantity float64, reduceOnly bool) (Order, error) {
	step, err := a.QuantityStep(ctx, symbol)
	if err != nil {
		return Order{}, err
	}
	params := map[string]string{
		"symbol":              symbol,
		"side":                string(side),
		"orderType":           "Limit",
		"price":               FormatPrice(price),
		"quantity":            FormatQuantity(quantity, step),
		"timeInForce":         "GTC",
		"autoBorrow":          "true",
		"autoBorrowRepay":     "true",
		"autoLend":            "true",
		"autoLendRedeem":      "true",
		"selfTradePrevention": "RejectTaker",
	}
	if reduceOnly {
		params["reduceOnly"] = "true"
	}
	a.log.Info("placing limit order",
		zap.String("account", a.name),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("price", params["price"]),
		zap.String("quantity", params["quantity"]),
		zap.Bool("reduce_only", reduceOnly),
	)
	var payload any
	if err := a.transport.Do(ctx, http.MethodPost, "/api/v1/order", "orderExecute", params, &payload); err != nil {
		return Order{}, normalizeError(err)
	}
	id := orderIDFromPayload(payload)
	if id == "" {
		return Order{}, &Error{Kind: KindMalformed, Message: "order response missing order id"}
	}
	return Order{ID: id, Symbol: symbol, Side: side, Price: price, Quantity: quantity, ReduceOnly: reduceOnly}, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quoteNotional float64) (Order, error) {
	params := map[string]string{
		"symbol":              symbol,
		"side":                string(side),
		"orderType":           "Market",
		"quoteQuantity":       FormatFixed(quoteNotional, 3),
		"autoBorrow":          "true",
		"autoBorrowRepay":     "true",
		"autoLend":            "true",
		"autoLendRedeem":      "true",
		"selfTradePrevention": "RejectTaker",
	}
	a.log.Info("placing market order",
		zap.String("account", a.name),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("quote_quantity", params["quoteQuantity"]),
	)
	var payload any
	if err := a.transport.Do(ctx, http.MethodPost, "/api/v1/order", "orderExecute", params, &payload); err != nil {
		return Order{}, normalizeError(err)
	}
	return Order{ID: orderIDFromPayload(payload), Symbol: symbol, Side: side}, nil
}

// CancelOrder is idempotent: cancelling an order that already filled or was
// already cancelled reports success.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{"symbol": symbol, "orderId": orderID}
	err := a.transport.Do(ctx, http.MethodDelete, "/api/v1/order", "orderCancel", params, nil)
	if err == nil {
		return nil
	}
	err = normalizeError(err)
	if IsNotFound(err) {
		a.log.Debug("cancel target already gone", zap.String("account", a.name), zap.String("order_id", orderID))
		return nil
	}
	return err
}

// OrderStatus resolves the tri-state order status. A not-found response is
// ambiguous (filled-and-purged or never existed), so it is disambiguated
// against the live position here and nowhere else.
func (a *Adapter) OrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	params := map[string]string{"symbol": symbol, "orderId": orderID}
	var payload any
	err := a.transport.Do(ctx, http.MethodGet, "/api/v1/order", "orderQuery", params, &payload)
	if err != nil {
		err = normalizeError(err)
		if IsNotFound(err) {
			if pos, ok := a.Position(ctx, symbol); ok && !pos.Flat() {
				a.log.Info("order not found but position exists, treating as filled",
					zap.String("account", a.name), zap.String("order_id", orderID))
				return StatusFilled, nil
			}
			return StatusNotFound, nil
		}
		return StatusUnknown, err
	}
	m, _ := toMap(unwrapData(payload))
	switch stringFromMap(m, "status") {
	case "Filled":
		return StatusFilled, nil
	case "New", "PartiallyFilled", "TriggerPending":
		return StatusOpen, nil
	case "Cancelled", "Expired":
		return StatusNotFound, nil
	default:
		return StatusUnknown, nil
	}
}

// Position fetches the account's position for the symbol. A transient empty
// or malformed response gets exactly one retry before reporting flat.
func (a *Adapter) Position(ctx context.Context, symbol string) (Position, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		var payload any
		err := a.transport.Do(ctx, http.MethodGet, "/api/v1/position", "positionQuery", nil, &payload)
		if err == nil {
			if positions, ok := listFromPayload(payload); ok {
				for _, entry := range positions {
					m, ok := toMap(entry)
					if !ok {
						continue
					}
					if SameSymbol(stringFromMap(m, "symbol"), symbol) {
						return positionFromMap(m, symbol), true
					}
				}
				return Position{}, false
			}
		} else {
			a.log.Debug("position fetch failed", zap.String("account", a.name), zap.Error(normalizeError(err)))
		}
		if attempt == 0 {
			if err := a.sleep(ctx, positionRetryDelay); err != nil {
				return Position{}, false
			}
		}
	}
	return Position{}, false
}

// AvailableMargin retries up to a bounded attempt count before reporting 0.
// A reported 0 is a valid terminal signal, not necessarily an error.
func (a *Adapter) AvailableMargin(ctx context.Context) float64 {
	for attempt := 1; attempt <= marginAttempts; attempt++ {
		var payload any
		err := a.transport.Do(ctx, http.MethodGet, "/api/v1/capital/collateral", "collateralQuery", nil, &payload)
		if err == nil {
			if items, ok := collateralItems(payload); ok {
				for _, entry := range items {
					m, ok := toMap(entry)
					if !ok {
						continue
					}
					if stringFromMap(m, "symbol") != collateralAsset {
						continue
					}
					margin := floatFromMap(m, "availableQuantity")
					a.log.Info("available margin",
						zap.String("account", a.name),
						zap.Float64("margin", margin),
						zap.Int("attempt", attempt),
					)
					return margin
				}
				return 0
			}
			a.log.Warn("collateral payload malformed", zap.String("account", a.name), zap.Int("attempt", attempt))
		} else {
			a.log.Warn("margin fetch failed", zap.String("account", a.name), zap.Int("attempt", attempt), zap.Error(normalizeError(err)))
		}
		if attempt < marginAttempts {
			if err := a.sleep(ctx, marginBackoff); err != nil {
				return 0
			}
		}
	}
	a.log.Error("margin unavailable after all attempts", zap.String("account", a.name))
	return 0
}

// RequestWithdrawal submits a withdrawal of the collateral asset, with the
// amount formatted to 6 decimal places.
func (a *Adapter) RequestWithdrawal(ctx context.Context, address string, quantity float64) error {
	params := map[string]string{
		"address":    address,
		"blockchain": withdrawalChain,
		"quantity":   FormatFixed(quantity, 6),
		"symbol":     collateralAsset,
	}
	var payload any
	if err := a.transport.Do(ctx, http.MethodPost, "/api/v1/capital/withdrawals", "withdraw", params, &payload); err != nil {
		return normalizeError(err)
	}
	m, _ := toMap(unwrapData(payload))
	a.log.Info("withdrawal submitted",
		zap.String("account", a.name),
		zap.String("address", address),
		zap.String("quantity", params["quantity"]),
		zap.String("withdrawal_id", stringFromMap(m, "id")),
		zap.String("status", stringFromMap(m, "status")),
	)
	return nil
}

func collateralItems(payload any) ([]any, bool) {
	data := unwrapData(payload)
	if m, ok := toMap(data); ok {
		if inner, ok := m["collateral"]; ok {
			data = inner
		}
	}
	return toSlice(data)
}

func positionFromMap(m map[string]any, symbol string) Position {
	return Position{
		Symbol:           CanonicalSymbol(symbol),
		NetQuantity:      floatFromMap(m, "netQuantity"),
		EntryPrice:       floatFromMap(m, "entryPrice"),
		MarkPrice:        floatFromMap(m, "markPrice"),
		LiquidationPrice: floatFromMap(m, "estLiquidationPrice"),
		UnrealizedPnL:    floatFromMap(m, "pnlUnrealized", "unrealizedPnl"),
		InitialMargin:    floatFromMap(m, "initialMargin", "imf"),
	}
}

func orderIDFromPayload(payload any) string {
	m, ok := toMap(unwrapData(payload))
	if !ok {
		return ""
	}
	return stringFromMap(m, "id", "orderId")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
