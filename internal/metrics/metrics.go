package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesStarted     Counter
	CyclesCompleted   Counter
	CyclesFailed      Counter
	OrdersPlaced      Counter
	OrdersFailed      Counter
	ShortUnwinds      Counter
	SweepsSubmitted   Counter
	DepositsSubmitted Counter
	OrderUpdates      Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesStarted:     n,
		CyclesCompleted:   n,
		CyclesFailed:      n,
		OrdersPlaced:      n,
		OrdersFailed:      n,
		ShortUnwinds:      n,
		SweepsSubmitted:   n,
		DepositsSubmitted: n,
		OrderUpdates:      n,
	}
}
