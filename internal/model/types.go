// Package model holds the value objects shared across the ingestion,
// fan-out, and structural-pipeline packages. Cross-entity references are by
// ID; nothing here holds a pointer to another entity.
package model

import "time"

// Timeframe names a registered resampling interval. Values are the interval
// in seconds except where a symbolic name is clearer in logs.
type Timeframe int

const (
	TFM1  Timeframe = 60
	TFM5  Timeframe = 300
	TFM15 Timeframe = 900
	TFH1  Timeframe = 3600
	TFD1  Timeframe = 86400
)

func (tf Timeframe) String() string {
	switch tf {
	case TFM1:
		return "M1"
	case TFM5:
		return "M5"
	case TFM15:
		return "M15"
	case TFH1:
		return "H1"
	case TFD1:
		return "D1"
	default:
		return "TF" + itoa(int(tf))
	}
}

// Direction is the orientation of a swing or trend.
type Direction int

const (
	DirUp Direction = iota
	DirDown
)

func (d Direction) Opposite() Direction {
	if d == DirUp {
		return DirDown
	}
	return DirUp
}

func (d Direction) String() string {
	if d == DirUp {
		return "up"
	}
	return "down"
}

// FractalType labels a CBar's three-bar local extremum verdict.
type FractalType int

const (
	FractalNone FractalType = iota
	FractalTop
	FractalBottom
)

func (f FractalType) String() string {
	switch f {
	case FractalTop:
		return "top"
	case FractalBottom:
		return "bottom"
	default:
		return "none"
	}
}

// SwingState is the lifecycle stage of a Swing.
type SwingState int

const (
	SwingForming SwingState = iota
	SwingPendingReverse
	SwingConfirmed
)

func (s SwingState) String() string {
	switch s {
	case SwingForming:
		return "forming"
	case SwingPendingReverse:
		return "pending_reverse"
	case SwingConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// SBar is the raw ingested candle at its native timeframe. Immutable once ID
// is assigned.
type SBar struct {
	ID           uint64
	Symbol       string
	Venue        string
	Timeframe    Timeframe
	Datetime     time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
	Turnover     float64
}

func (b *SBar) Body() float64 {
	return absF(b.Close - b.Open)
}

func (b *SBar) UpperShadow() float64 {
	return b.High - maxF(b.Close, b.Open)
}

func (b *SBar) LowerShadow() float64 {
	return minF(b.Close, b.Open) - b.Low
}

func (b *SBar) TotalRange() float64 {
	return b.High - b.Low
}

// CBar is a merged, non-inclusive bar spanning a contiguous range of SBar ids.
type CBar struct {
	ID          uint64
	SBarStartID uint64
	SBarEndID   uint64
	High        float64
	Low         float64
	Fractal     FractalType
	CreatedAt   time.Time
}

// IsInclusive reports whether one of c, other's ranges contains the other.
func (c *CBar) IsInclusive(other *CBar) bool {
	return (c.High >= other.High && c.Low <= other.Low) ||
		(c.High <= other.High && c.Low >= other.Low)
}

// VerifyFractal returns the fractal verdict for the (left, middle, right) triple.
func VerifyFractal(left, middle, right *CBar) FractalType {
	isTop := middle.High >= left.High && middle.High >= right.High &&
		middle.Low >= left.Low && middle.Low >= right.Low
	if isTop {
		return FractalTop
	}
	isBottom := middle.High <= left.High && middle.High <= right.High &&
		middle.Low <= left.Low && middle.Low <= right.Low
	if isBottom {
		return FractalBottom
	}
	return FractalNone
}

// Swing is a directional move between opposite-kind fractals.
type Swing struct {
	ID          uint64
	Direction   Direction
	CBarStartID uint64
	CBarEndID   uint64
	SBarStartID uint64
	SBarEndID   uint64
	High        float64
	Low         float64
	Span        int
	Volume      float64
	StartOI     float64
	EndOI       float64
	State       SwingState
	CreatedAt   time.Time
}

// Trend is a chain of consecutive same-direction swings.
type Trend struct {
	ID           uint64
	Direction    Direction
	SwingStartID uint64
	SwingEndID   uint64
	SBarStartID  uint64
	SBarEndID    uint64
	High         float64
	Low          float64
	Span         int
	Volume       float64
	StartOI      float64
	EndOI        float64
	IsCompleted  bool
	CreatedAt    time.Time
}

// KeyZoneOrigin names the structural source a zone was derived from.
type KeyZoneOrigin int

const (
	OriginSwing KeyZoneOrigin = iota
	OriginTrend
	OriginChannel
)

// KeyZoneOrientation is the side of price action the zone is expected to act on.
type KeyZoneOrientation int

const (
	OrientationSupport KeyZoneOrientation = iota
	OrientationResistance
)

// ZoneBehavior classifies a bar's reaction against a KeyZone.
type ZoneBehavior int

const (
	BehaviorNone ZoneBehavior = iota
	BehaviorBreakoutFailure
	BehaviorSecondPush
	BehaviorStrongAccept
	BehaviorWeakAccept
	BehaviorStrongReject
	BehaviorWeakReject
)

func (b ZoneBehavior) String() string {
	switch b {
	case BehaviorBreakoutFailure:
		return "breakout_failure"
	case BehaviorSecondPush:
		return "second_push"
	case BehaviorStrongAccept:
		return "strong_accept"
	case BehaviorWeakAccept:
		return "weak_accept"
	case BehaviorStrongReject:
		return "strong_reject"
	case BehaviorWeakReject:
		return "weak_reject"
	default:
		return "none"
	}
}

// SignedSign returns 1 for accept-side behaviors (SecondPush, StrongAccept,
// WeakAccept), -1 for reject-side ones (BreakoutFailure, StrongReject,
// WeakReject), and 0 for BehaviorNone.
func (b ZoneBehavior) SignedSign() float64 {
	switch b {
	case BehaviorSecondPush, BehaviorStrongAccept, BehaviorWeakAccept:
		return 1
	case BehaviorBreakoutFailure, BehaviorStrongReject, BehaviorWeakReject:
		return -1
	default:
		return 0
	}
}

// KeyZoneSignal is the classified reaction of one bar against one zone.
type KeyZoneSignal struct {
	ZoneID    uint64
	Behavior  ZoneBehavior
	Direction Direction
	Strength  float64
	SBarID    uint64
}

// SignedStrength returns direction_sign * behavior_sign * strength, clamped to [-1, 1].
func (s *KeyZoneSignal) SignedStrength() float64 {
	dirSign := 1.0
	if s.Direction == DirDown {
		dirSign = -1.0
	}
	return clamp(dirSign*s.Behavior.SignedSign()*s.Strength, -1, 1)
}

// KeyZone is a refined horizontal price band.
type KeyZone struct {
	ID            uint64
	Timeframe     Timeframe
	Origin        KeyZoneOrigin
	Orientation   KeyZoneOrientation
	Upper         float64
	Lower         float64
	TouchCount    int
	LastTouchID   uint64
	DirectionHint Direction
	SBarStartID   uint64
	SBarEndID     uint64
	Reactions     []KeyZoneSignal
}

// SDStage is the stability classification of a Supply/Demand score.
type SDStage int

const (
	SDStable SDStage = iota
	SDWeakening
	SDCritical
	SDFailed
)

func (s SDStage) String() string {
	switch s {
	case SDStable:
		return "stable"
	case SDWeakening:
		return "weakening"
	case SDCritical:
		return "critical"
	default:
		return "failed"
	}
}

// SDResult is the output of the Supply/Demand scorer.
type SDResult struct {
	Score   float64
	Stage   SDStage
	Factors [9]float64 // f1..f9
	Atoms   [9]float64 // a..i

	Dominance     float64
	Efficiency    float64
	Sustainability float64
}

// Tick is a single trade/quote event from an exchange feed.
type Tick struct {
	Symbol       string
	Venue        string
	Price        float64
	Qty          float64
	CumVolume    float64
	CumTurnover  float64
	OpenInterest float64
	EventTS      time.Time
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

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
