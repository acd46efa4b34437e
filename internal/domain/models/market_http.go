package models

// SubscribeRequest is the body for subscribing a symbol to the quote stream.
type SubscribeRequest struct {
	Symbol   string `json:"symbol" validate:"required,min=1,max=32"`
	Exchange string `json:"exchange" validate:"required,min=1,max=32"`
}

// UnsubscribeRequest is the body for removing a subscription.
type UnsubscribeRequest struct {
	Symbol   string `json:"symbol" validate:"required,min=1,max=32"`
	Exchange string `json:"exchange" validate:"required,min=1,max=32"`
}

// BarsHistoryRequest is the body for querying stored bars.
type BarsHistoryRequest struct {
	Symbol   string `json:"symbol" validate:"required,min=1,max=32"`
	Exchange string `json:"exchange" validate:"required,min=1,max=32"`
	Interval string `json:"interval" validate:"required" default:"1m"`
	From     string `json:"from" validate:"required"`
	To       string `json:"to,omitempty"`
	Limit    int    `json:"limit,omitempty" validate:"omitempty,gte=1,lte=10000" default:"1000"`
}
