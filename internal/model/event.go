package model

// EventType selects which intraday event stream a bar query covers.
type EventType string

// Supported intraday event types.
const (
	EventTrade   EventType = "TRADE"
	EventBid     EventType = "BID"
	EventAsk     EventType = "ASK"
	EventBidBest EventType = "BID_BEST"
	EventAskBest EventType = "ASK_BEST"
	EventBestBid EventType = "BEST_BID"
	EventBestAsk EventType = "BEST_ASK"
)

var validEvents = map[EventType]bool{
	EventTrade:   true,
	EventBid:     true,
	EventAsk:     true,
	EventBidBest: true,
	EventAskBest: true,
	EventBestBid: true,
	EventBestAsk: true,
}

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool { return validEvents[t] }
