package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecmd/internal/config"
	"tradecmd/internal/intent"
	"tradecmd/internal/metrics"
	"tradecmd/internal/store"
)

// 内存库下多连接会各自持有独立数据库，必须压到单连接。
func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func buyApple(shares float64) intent.Intent {
	return intent.Intent{
		Kind: intent.KindStock,
		Stock: &intent.StockIntent{
			Action:     intent.ActionBuy,
			Symbol:     "AAPL",
			AmountType: intent.AmountShares,
			Amount:     shares,
			OrderType:  intent.OrderMarket,
		},
	}
}

func TestListWarmSamples_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordResolution(ctx, "buy some apple stock", metrics.TierExternal, buyApple(10), 0.9, 120*time.Millisecond)
	svc.RecordResolution(ctx, "sell $250 of tesla", metrics.TierExternal, intent.Intent{
		Kind: intent.KindStock,
		Stock: &intent.StockIntent{
			Action:     intent.ActionSell,
			Symbol:     "TSLA",
			AmountType: intent.AmountDollars,
			Amount:     250,
			OrderType:  intent.OrderMarket,
		},
	}, 0.9, 340*time.Millisecond)

	samples, err := svc.ListWarmSamples(ctx, 10)
	if err != nil {
		t.Fatalf("ListWarmSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(samples))
	}

	// 最新写入排在最前。
	if samples[0].Text != "sell $250 of tesla" {
		t.Errorf("samples[0].Text = %q, want most recent first", samples[0].Text)
	}
	if s := samples[0].Intent.Stock; s == nil || s.Symbol != "TSLA" || s.Amount != 250 {
		t.Errorf("unexpected intent payload: %+v", samples[0].Intent)
	}
	if err := samples[0].Intent.Validate(); err != nil {
		t.Errorf("restored intent failed validation: %v", err)
	}
}

func TestListWarmSamples_KeepsLatestPerText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordResolution(ctx, "buy some apple stock", metrics.TierExternal, buyApple(10), 0.9, time.Millisecond)
	svc.RecordResolution(ctx, "buy some apple stock", metrics.TierExternal, buyApple(25), 0.9, time.Millisecond)

	samples, err := svc.ListWarmSamples(ctx, 10)
	if err != nil {
		t.Fatalf("ListWarmSamples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1 deduplicated text", len(samples))
	}
	if samples[0].Intent.Stock.Amount != 25 {
		t.Errorf("amount = %f, want latest event (25)", samples[0].Intent.Stock.Amount)
	}
}

func TestListWarmSamples_FiltersNonExternalAndErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordResolution(ctx, "buy 100 shares of aapl", metrics.TierDeterministic, buyApple(100), 0.95, time.Millisecond)
	svc.RecordResolution(ctx, "buy some apple stock", metrics.TierExactCache, buyApple(10), 1.0, time.Millisecond)
	svc.RecordError(ctx, "do something vague", metrics.TierExternal, "指令解析失败", errors.New("ambiguous"))

	samples, err := svc.ListWarmSamples(ctx, 10)
	if err != nil {
		t.Fatalf("ListWarmSamples: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples = %d, want 0 (only external resolutions qualify)", len(samples))
	}
}

func TestListWarmSamples_SkipsInvalidStoredIntent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordResolution(ctx, "broken sample", metrics.TierExternal, intent.Intent{}, 0.9, time.Millisecond)
	svc.RecordResolution(ctx, "buy some apple stock", metrics.TierExternal, buyApple(10), 0.9, time.Millisecond)

	samples, err := svc.ListWarmSamples(ctx, 10)
	if err != nil {
		t.Fatalf("ListWarmSamples: %v", err)
	}
	if len(samples) != 1 || samples[0].Text != "buy some apple stock" {
		t.Errorf("samples = %+v, want only the valid one", samples)
	}
}

func TestRecord_ErrorEventPersisted(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordError(ctx, "do something vague", metrics.TierExternal, "指令解析失败", errors.New("upstream timeout"))

	var count int
	err := svc.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resolution_events WHERE event_type = ?`, string(EventError),
	).Scan(&count)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("error events = %d, want 1", count)
	}
}
