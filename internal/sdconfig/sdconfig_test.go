package sdconfig

import "testing"

const sampleYAML = `
default:
  stable_threshold: 0.7
timeframe:
  m1:
    f1_weight: 0.1
symbol:
  btcusdt:
    f2_weight: 0.2
symbol_timeframe:
  "*.h1":
    f3_weight: 0.3
  "btcusdt.*":
    f4_weight: 0.4
  "btcusdt.m1":
    f5_weight: 0.5
`

func TestResolveForCascadesMostSpecificLast(t *testing.T) {
	p, err := ParseYAML("test.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	cfg := p.ResolveFor("BTCUSDT", "m1")
	if cfg.F1Weight != 0.1 {
		t.Fatalf("expected timeframe override to apply, got %v", cfg.F1Weight)
	}
	if cfg.F2Weight != 0.2 {
		t.Fatalf("expected symbol override to apply, got %v", cfg.F2Weight)
	}
	if cfg.F4Weight != 0.4 {
		t.Fatalf("expected symbol-wildcard override to apply, got %v", cfg.F4Weight)
	}
	if cfg.F5Weight != 0.5 {
		t.Fatalf("expected exact symbol.timeframe override to apply last, got %v", cfg.F5Weight)
	}
	if cfg.F3Weight == 0.3 {
		t.Fatalf("expected *.h1 to not apply to an m1 lookup")
	}
}

func TestResolveForIsCaseInsensitive(t *testing.T) {
	p, err := ParseYAML("test.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	cfg := p.ResolveFor("btcusdt", "M1")
	if cfg.F5Weight != 0.5 {
		t.Fatalf("expected case-insensitive symbol.timeframe match, got %v", cfg.F5Weight)
	}
}
