// Package sdconfig loads the cascading YAML profile that resolves a final
// sd.Config for one symbol/timeframe pair: default -> timeframe -> symbol ->
// "*.<tf>" -> "<sym>.*" -> "<sym>.<tf>", each layer overlaid in that order so
// the most specific key wins. Grounded on
// original_source/struxis/src/sd.rs: SupplyDemandProfileConfig and
// resolve_for, ported from serde_yaml to gopkg.in/yaml.v3 since the Rust
// crate has no analog import here.
package sdconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/ligl/struxis/internal/structerr"
	"github.com/ligl/struxis/internal/structural/sd"
	"gopkg.in/yaml.v3"
)

// Profile is the raw YAML document: a default patch plus three cascading
// override maps keyed by timeframe name, symbol, and "symbol.timeframe" (or
// wildcard) combinations.
type Profile struct {
	Default        sd.Patch            `yaml:"default"`
	Timeframe      map[string]sd.Patch `yaml:"timeframe"`
	Symbol         map[string]sd.Patch `yaml:"symbol"`
	SymbolTimeframe map[string]sd.Patch `yaml:"symbol_timeframe"`
}

// LoadFile reads and parses a profile from path.
func LoadFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &structerr.IOError{Op: "sdconfig.LoadFile", Cause: err}
	}
	return ParseYAML(path, raw)
}

// ParseYAML parses a profile document already read into memory. path is only
// used to annotate a parse error.
func ParseYAML(path string, raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, &structerr.YAMLError{Path: path, Cause: err}
	}
	return &p, nil
}

// ResolveFor computes the final sd.Config for one symbol and timeframe by
// overlaying every matching cascade layer onto the package default, in
// increasing specificity: default, timeframe, symbol, "*.<tf>", "<sym>.*",
// "<sym>.<tf>". Every map key comparison is case-insensitive.
func (p *Profile) ResolveFor(symbol string, tfName string) sd.Config {
	symbolNorm := normalizeKey(symbol)
	tfNorm := normalizeKey(tfName)
	symbolTF := fmt.Sprintf("%s.%s", symbolNorm, tfNorm)
	symbolWild := fmt.Sprintf("%s.*", symbolNorm)
	tfWild := fmt.Sprintf("*.%s", tfNorm)

	cfg := sd.DefaultConfig().ApplyPatch(p.Default)

	if patch, ok := findPatch(p.Timeframe, tfNorm); ok {
		cfg = cfg.ApplyPatch(patch)
	}
	if patch, ok := findPatch(p.Symbol, symbolNorm); ok {
		cfg = cfg.ApplyPatch(patch)
	}
	if patch, ok := findPatch(p.SymbolTimeframe, tfWild); ok {
		cfg = cfg.ApplyPatch(patch)
	}
	if patch, ok := findPatch(p.SymbolTimeframe, symbolWild); ok {
		cfg = cfg.ApplyPatch(patch)
	}
	if patch, ok := findPatch(p.SymbolTimeframe, symbolTF); ok {
		cfg = cfg.ApplyPatch(patch)
	}

	return cfg
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func findPatch(m map[string]sd.Patch, key string) (sd.Patch, bool) {
	keyNorm := normalizeKey(key)
	for k, v := range m {
		if normalizeKey(k) == keyNorm {
			return v, true
		}
	}
	return sd.Patch{}, false
}
