package broker

// Topic keys used across the pipeline. A topic identifies one symbol's or
// pair's live updates.

// TickTopic returns the raw tick topic for a symbol.
func TickTopic(symbol string) string { return "ticks." + symbol }

// CandleTopic returns the closed-candle topic for a symbol.
func CandleTopic(symbol string) string { return "candles." + symbol }

// AnalyticsTopic returns the snapshot topic for a pair id.
func AnalyticsTopic(pairID string) string { return "analytics." + pairID }
