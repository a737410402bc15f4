package models

// Requests for the live/history HTTP endpoints. Defined in domain for consistency and reuse.

type LatestRequest struct {
	Topic string `query:"topic" json:"topic" validate:"required"`
}

type LiveStreamRequest struct {
	Topics string `query:"topics" json:"topics" validate:"required"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	N      int    `query:"n" json:"n" default:"500" validate:"gte=1,lte=10000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
}
