// Package sd implements the stateless Supply/Demand scorer: a trailing
// window of SBars plus a key-zone bias scalar folds into nine weighted
// factors across three layers, and nine derived "atoms" roll up into
// dominance/efficiency/sustainability aggregates. Grounded on
// original_source/struxis/src/sd.rs: SupplyDemandConfig, SupplyDemand, and
// evaluate_window_with_bias.
package sd

import (
	"math"

	"github.com/ligl/struxis/internal/model"
)

// Config holds the resolved factor weights and stage thresholds for one
// symbol/timeframe combination.
type Config struct {
	Layer1Weight float64
	Layer2Weight float64
	Layer3Weight float64

	F1Weight float64
	F2Weight float64
	F3Weight float64
	F4Weight float64
	F5Weight float64
	F6Weight float64
	F7Weight float64
	F8Weight float64
	F9Weight float64

	StableThreshold    float64
	WeakeningThreshold float64
	CriticalThreshold  float64

	KeyZoneBiasScale float64
}

// DefaultConfig returns the baseline weights before any YAML patch is applied.
func DefaultConfig() Config {
	return Config{
		Layer1Weight: 0.45,
		Layer2Weight: 0.30,
		Layer3Weight: 0.25,

		F1Weight: 0.40,
		F2Weight: 0.40,
		F3Weight: 0.20,
		F4Weight: 0.40,
		F5Weight: 0.20,
		F6Weight: 0.40,
		F7Weight: 0.50,
		F8Weight: 0.25,
		F9Weight: 0.25,

		StableThreshold:    0.70,
		WeakeningThreshold: 0.45,
		CriticalThreshold:  0.25,

		KeyZoneBiasScale: 0.35,
	}
}

// Patch holds optional overrides; a nil field leaves the base config
// untouched. Mirrors the *float64-per-field YAML shape used by sdconfig.
type Patch struct {
	Layer1Weight *float64 `yaml:"layer1_weight"`
	Layer2Weight *float64 `yaml:"layer2_weight"`
	Layer3Weight *float64 `yaml:"layer3_weight"`

	F1Weight *float64 `yaml:"f1_weight"`
	F2Weight *float64 `yaml:"f2_weight"`
	F3Weight *float64 `yaml:"f3_weight"`
	F4Weight *float64 `yaml:"f4_weight"`
	F5Weight *float64 `yaml:"f5_weight"`
	F6Weight *float64 `yaml:"f6_weight"`
	F7Weight *float64 `yaml:"f7_weight"`
	F8Weight *float64 `yaml:"f8_weight"`
	F9Weight *float64 `yaml:"f9_weight"`

	StableThreshold    *float64 `yaml:"stable_threshold"`
	WeakeningThreshold *float64 `yaml:"weakening_threshold"`
	CriticalThreshold  *float64 `yaml:"critical_threshold"`

	KeyZoneBiasScale *float64 `yaml:"keyzone_bias_scale"`
}

// ApplyPatch returns a copy of c with every non-nil field in p overlaid.
func (c Config) ApplyPatch(p Patch) Config {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Layer1Weight, p.Layer1Weight)
	set(&c.Layer2Weight, p.Layer2Weight)
	set(&c.Layer3Weight, p.Layer3Weight)

	set(&c.F1Weight, p.F1Weight)
	set(&c.F2Weight, p.F2Weight)
	set(&c.F3Weight, p.F3Weight)
	set(&c.F4Weight, p.F4Weight)
	set(&c.F5Weight, p.F5Weight)
	set(&c.F6Weight, p.F6Weight)
	set(&c.F7Weight, p.F7Weight)
	set(&c.F8Weight, p.F8Weight)
	set(&c.F9Weight, p.F9Weight)

	set(&c.StableThreshold, p.StableThreshold)
	set(&c.WeakeningThreshold, p.WeakeningThreshold)
	set(&c.CriticalThreshold, p.CriticalThreshold)

	set(&c.KeyZoneBiasScale, p.KeyZoneBiasScale)
	return c
}

// Evaluator scores a trailing bar window against a resolved Config. Stateless:
// callers reuse one Evaluator across symbols by swapping the window, or build
// one per symbol/timeframe from its own resolved Config.
type Evaluator struct {
	Config Config
}

func NewEvaluator(cfg Config) Evaluator {
	return Evaluator{Config: cfg}
}

// EvaluateWindow scores bars with no key-zone bias.
func (e Evaluator) EvaluateWindow(bars []model.SBar) model.SDResult {
	return e.EvaluateWindowWithBias(bars, 0)
}

// EvaluateWindowWithBias folds a key-zone signal's signed strength into the
// f8 keyzone-reaction factor before scoring. bars is expected capped at 50
// entries by the caller (the trailing-window bound); this function does not
// enforce it.
func (e Evaluator) EvaluateWindowWithBias(bars []model.SBar, keyzoneBias float64) model.SDResult {
	if len(bars) == 0 {
		return model.SDResult{Stage: model.SDFailed}
	}

	cfg := e.Config
	first := bars[0]
	last := bars[len(bars)-1]

	displacement := last.Close - first.Open
	var totalRange float64
	for _, b := range bars {
		totalRange += b.TotalRange()
	}
	priceDirection := signF(displacement)
	directionalEfficiency := 0.0
	if absF(totalRange) >= math.SmallestNonzeroFloat64 {
		directionalEfficiency = clamp(displacement/totalRange, -1, 1)
	}

	var upCount, downCount float64
	for _, b := range bars {
		if b.Close > b.Open {
			upCount++
		} else if b.Close < b.Open {
			downCount++
		}
	}
	signedCount := 0.0
	if upCount+downCount > math.SmallestNonzeroFloat64 {
		signedCount = (upCount - downCount) / (upCount + downCount)
	}

	var wickSum, bodyRatioSum float64
	var directionFlip int
	var prevBarDir float64
	for _, b := range bars {
		rng := b.TotalRange()
		body := b.Body()
		wick := maxF(b.UpperShadow(), 0) + maxF(b.LowerShadow(), 0)
		wickSum += wick
		if absF(rng) >= math.SmallestNonzeroFloat64 {
			bodyRatioSum += clamp(body/rng, 0, 1)
		}
		barDir := signF(b.Close - b.Open)
		if absF(prevBarDir) > math.SmallestNonzeroFloat64 && absF(barDir) > math.SmallestNonzeroFloat64 && absF(prevBarDir-barDir) > math.SmallestNonzeroFloat64 {
			directionFlip++
		}
		if absF(barDir) > math.SmallestNonzeroFloat64 {
			prevBarDir = barDir
		}
	}
	avgBodyRatio := bodyRatioSum / float64(len(bars))

	var volumeSum float64
	for _, b := range bars {
		volumeSum += b.Volume
	}
	volumeMean := volumeSum / float64(len(bars))
	volumeConfirmation := 0.0
	if absF(volumeMean) >= math.SmallestNonzeroFloat64 {
		volumeConfirmation = clamp(last.Volume/volumeMean-1, -1, 1)
	}

	oiDelta := last.OpenInterest - first.OpenInterest
	oiNature := 0.0
	if absF(oiDelta) >= math.SmallestNonzeroFloat64 {
		oiNature = signF(oiDelta) * priceDirection
	}

	volOIAlignment := clamp(volumeConfirmation*oiNature, -1, 1)
	swingRelativeStrength := directionalEfficiency
	keyzoneReaction := clamp(clamp(avgBodyRatio-0.5, -1, 1)*priceDirection+clamp(keyzoneBias, -1, 1)*cfg.KeyZoneBiasScale, -1, 1)
	mtfAlignment := signF(signedCount) * priceDirection

	rejectionAcceptance := clamp(avgBodyRatio-(wickSum/(totalRange+1e-9)), -1, 1)
	advancementEfficiency := directionalEfficiency
	momentumConsistency := clamp(1-(float64(directionFlip)/float64(maxInt(len(bars), 1))), 0, 1) * priceDirection

	aInitiative := clamp(absF(advancementEfficiency)*absF(volumeConfirmation), 0, 1) * priceDirection
	bDirectionConsistency := momentumConsistency
	cPullbackRole := clamp(avgBodyRatio-0.4, -1, 1) * priceDirection
	dTimeEfficiency := advancementEfficiency
	eBodyWickEfficiency := rejectionAcceptance
	fVolOICostEffectiveness := volOIAlignment
	gMarginalDeterioration := clamp(-absF(advancementEfficiency)+0.5, -1, 1)
	hKeyBehaviorMismatch := -1.0
	if keyzoneReaction*priceDirection < 0 {
		hKeyBehaviorMismatch = 1.0
	}
	iOpponentResponseQuality := clamp(-momentumConsistency, -1, 1)

	layer1 := cfg.F1Weight*rejectionAcceptance + cfg.F2Weight*advancementEfficiency + cfg.F3Weight*momentumConsistency
	layer2 := cfg.F4Weight*volumeConfirmation + cfg.F5Weight*oiNature + cfg.F6Weight*volOIAlignment
	layer3 := cfg.F7Weight*swingRelativeStrength + cfg.F8Weight*keyzoneReaction + cfg.F9Weight*mtfAlignment

	score := clamp(cfg.Layer1Weight*layer1+cfg.Layer2Weight*layer2+cfg.Layer3Weight*layer3, -1, 1)

	dominance := clamp((aInitiative+bDirectionConsistency+cPullbackRole)/3, -1, 1)
	efficiency := clamp((dTimeEfficiency+eBodyWickEfficiency+fVolOICostEffectiveness)/3, -1, 1)
	sustainability := clamp(1-((maxF(gMarginalDeterioration, 0)+maxF(hKeyBehaviorMismatch, 0)+maxF(iOpponentResponseQuality, 0))/3), 0, 1)

	var stage model.SDStage
	switch {
	case absF(score) >= cfg.StableThreshold:
		stage = model.SDStable
	case absF(score) >= cfg.WeakeningThreshold:
		stage = model.SDWeakening
	case absF(score) >= cfg.CriticalThreshold:
		stage = model.SDCritical
	default:
		stage = model.SDFailed
	}

	return model.SDResult{
		Score: score,
		Stage: stage,
		Factors: [9]float64{
			rejectionAcceptance, advancementEfficiency, momentumConsistency,
			volumeConfirmation, oiNature, volOIAlignment,
			swingRelativeStrength, keyzoneReaction, mtfAlignment,
		},
		Atoms: [9]float64{
			aInitiative, bDirectionConsistency, cPullbackRole,
			dTimeEfficiency, eBodyWickEfficiency, fVolOICostEffectiveness,
			gMarginalDeterioration, hKeyBehaviorMismatch, iOpponentResponseQuality,
		},
		Dominance:      dominance,
		Efficiency:     efficiency,
		Sustainability: sustainability,
	}
}

func signF(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
