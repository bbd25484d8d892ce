package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventOrderPlaced       EventType = "ORDER_PLACED"
	EventPositionOpened    EventType = "POSITION_OPENED"
	EventPositionClosed    EventType = "POSITION_CLOSED"
	EventDCATriggered      EventType = "DCA_TRIGGERED"
	EventTrailingStopHit   EventType = "TRAILING_STOP_HIT"
	EventTrainingStarted   EventType = "TRAINING_STARTED"
	EventTrainingCompleted EventType = "TRAINING_COMPLETED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer never blocks the publishing loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, signalType string, longStrength, shortStrength int, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":         symbol,
			"signal_type":    signalType,
			"long_strength":  longStrength,
			"short_strength": shortStrength,
			"confidence":     confidence,
		},
	})
}

// PublishOrder publishes an order placed event
func (eb *EventBus) PublishOrder(symbol, side, tag string, notional float64) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"symbol":   symbol,
			"side":     side,
			"tag":      tag,
			"notional": notional,
		},
	})
}

// PublishTraining publishes a training lifecycle event
func (eb *EventBus) PublishTraining(eventType EventType, coin, timeframe string, patternsLearned int) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"coin":             coin,
			"timeframe":        timeframe,
			"patterns_learned": patternsLearned,
		},
	})
}
