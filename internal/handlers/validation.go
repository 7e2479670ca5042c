package handlers

import (
	"errors"

	"soko/internal/money"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = errors.New("invalid amount")
var errInvalidFeePercent = errors.New("invalid fee percent")

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

func parseFeePercent(raw string) (decimal.Decimal, error) {
	percent, err := decimal.NewFromString(raw)
	if err != nil || percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, errInvalidFeePercent
	}
	return percent, nil
}
