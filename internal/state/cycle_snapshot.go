package state

import (
	"context"
	"encoding/json"
	"strings"
)

// CycleSnapshot is the durable summary of one finished hedge cycle, kept
// per pair so the last outcome survives restarts.
type CycleSnapshot struct {
	Pair           string  `json:"pair"`
	ShortOutcome   string  `json:"short_outcome"`
	LongOutcome    string  `json:"long_outcome"`
	MonitorOutcome string  `json:"monitor_outcome"`
	TargetSize     float64 `json:"target_size"`
	FilledSize     float64 `json:"filled_size"`
	EntryPrice     float64 `json:"entry_price"`
	TakeProfits    int     `json:"take_profits"`
	Swept          int     `json:"swept"`
	Failed         bool    `json:"failed"`
	Error          string  `json:"error,omitempty"`
	StartedAtMS    int64   `json:"started_at_ms"`
	FinishedAtMS   int64   `json:"finished_at_ms"`
}

func CycleSnapshotKey(pair string) string {
	return "cycle:last:" + pair
}

func LoadCycleSnapshot(ctx context.Context, store Store, pair string) (CycleSnapshot, bool, error) {
	if store == nil {
		return CycleSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, CycleSnapshotKey(pair))
	if err != nil {
		return CycleSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return CycleSnapshot{}, false, nil
	}
	var snapshot CycleSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return CycleSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveCycleSnapshot(ctx context.Context, store Store, snapshot CycleSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, CycleSnapshotKey(snapshot.Pair), string(payload))
}
