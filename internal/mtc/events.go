// Package mtc composes the per-timeframe structural pipeline (SBar -> CBar ->
// Swing -> Trend -> KeyZone -> SD) behind a single-writer API and fans the
// result out as six ordered events per append. Grounded on
// original_source/struxis/src/{mtc,timeframe_manager,events}.rs.
package mtc

import "github.com/ligl/struxis/internal/model"

// EventType names one of the six ordered notifications fired per append.
type EventType int

const (
	EventSBarCreated EventType = iota
	EventCBarChanged
	EventSwingChanged
	EventTrendChanged
	EventTimeframeEnd
	EventNewBar
)

func (e EventType) String() string {
	switch e {
	case EventSBarCreated:
		return "sbar_created"
	case EventCBarChanged:
		return "cbar_changed"
	case EventSwingChanged:
		return "swing_changed"
	case EventTrendChanged:
		return "trend_changed"
	case EventTimeframeEnd:
		return "timeframe_end"
	case EventNewBar:
		return "new_bar"
	default:
		return "unknown"
	}
}

// EventPayload carries the optional backtrack id an observer should use to
// invalidate any cache built off the corresponding chain.
type EventPayload struct {
	BacktrackID uint64
	HasBacktrack bool
	Note        string
}

// Subscriber receives one notification. Observable.Notify calls every
// matching subscriber synchronously and in registration order, so a
// subscriber that blocks holds up the whole append — callers that need
// async fan-out should hand the payload to their own channel.
type Subscriber func(tf model.Timeframe, event EventType, payload EventPayload)

// Observable is a typed pub/sub dispatcher: a subscriber can register for
// one EventType or for every event.
type Observable struct {
	subscribers    map[EventType][]Subscriber
	allSubscribers []Subscriber
}

// Subscribe registers sub for eventType, or for every event type if
// eventType is nil.
func (o *Observable) Subscribe(eventType *EventType, sub Subscriber) {
	if eventType == nil {
		o.allSubscribers = append(o.allSubscribers, sub)
		return
	}
	if o.subscribers == nil {
		o.subscribers = make(map[EventType][]Subscriber)
	}
	o.subscribers[*eventType] = append(o.subscribers[*eventType], sub)
}

func (o *Observable) Notify(tf model.Timeframe, eventType EventType, payload EventPayload) {
	for _, sub := range o.subscribers[eventType] {
		sub(tf, eventType, payload)
	}
	for _, sub := range o.allSubscribers {
		sub(tf, eventType, payload)
	}
}
