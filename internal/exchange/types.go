package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Filter is one venue trading rule; only LOT_SIZE fields are decoded.
type Filter struct {
	FilterType string          `json:"filterType"`
	MinQty     decimal.Decimal `json:"minQty"`
	StepSize   decimal.Decimal `json:"stepSize"`
}

type SymbolRules struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// LotSize is the quantity constraint of a symbol.
type LotSize struct {
	MinQuantity decimal.Decimal
	StepSize    decimal.Decimal
}

// LotSize extracts the LOT_SIZE filter.
func (r SymbolRules) LotSize() (LotSize, bool) {
	for _, f := range r.Filters {
		if f.FilterType == "LOT_SIZE" {
			return LotSize{MinQuantity: f.MinQty, StepSize: f.StepSize}, true
		}
	}
	return LotSize{}, false
}

type exchangeInfo struct {
	Symbols []SymbolRules `json:"symbols"`
}

// OrderParams is a normalized venue order. Price and TimeInForce are set for LIMIT only.
// ClientOrderID, when set, is sent as newClientOrderId.
type OrderParams struct {
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TimeInForce   string
}

// OrderRef identifies a placed order, by venue id when known and by client id otherwise.
type OrderRef struct {
	VenueOrderID  int64
	ClientOrderID string
}

type OrderResult struct {
	VenueOrderID     int64
	Status           string
	Price            decimal.Decimal
	CumulativeQuote  decimal.Decimal
	ExecutedQuantity decimal.Decimal
	TransactTime     time.Time
}

type orderResponse struct {
	OrderID             int64           `json:"orderId"`
	Status              string          `json:"status"`
	Price               decimal.Decimal `json:"price"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	TransactTime        int64           `json:"transactTime"`
	UpdateTime          int64           `json:"updateTime"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Venue error codes that identify an unknown symbol.
const (
	codeInvalidSymbol = -1121
	codeBadSymbol     = -1100
)

// codeFilterFailure means the order broke a symbol filter, so cached rules may be stale.
const codeFilterFailure = -1013
