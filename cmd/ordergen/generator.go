package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/example/order-pipeline/internal/models"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

var (
	symbols    = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}
	symbolBase = map[string]float64{"BTCUSDT": 60000, "ETHUSDT": 3200, "SOLUSDT": 150, "BNBUSDT": 580, "XRPUSDT": 0.6}
	// notional per order in quote currency, kept small for testnet balances
	notional = []float64{15, 25, 50}

	sides = []string{"BUY", "SELL"}
	types = []string{"MARKET", "MARKET", "LIMIT"}
)

func round(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}

func pick[T any](xs []T) T { return xs[rng.Intn(len(xs))] }

// genOrder returns a random order request. Quantities are deliberately not
// step-aligned so the executor's quantization gets exercised.
func genOrder() models.SubmitOrderRequest {
	sym := pick(symbols)
	base := symbolBase[sym]
	px := base * (1 + (rng.Float64()-0.5)*0.02) // ±1%

	req := models.SubmitOrderRequest{
		Symbol:   sym,
		Side:     pick(sides),
		Type:     pick(types),
		Quantity: round(pick(notional)/px, 6),
	}
	if req.Type == "LIMIT" {
		price := round(px, 2)
		req.Price = &price
	}
	return req
}
