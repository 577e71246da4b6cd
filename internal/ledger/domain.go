// Package ledger はユーザー間の貸し借り (debt) を記録します。
package ledger

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
)

// MaxDescriptionGraphemes は説明文の最大長 (書記素クラスタ数) です。
const MaxDescriptionGraphemes = 256

// ErrInvalidDebt は入力値が不正なときに返ります。
var ErrInvalidDebt = errors.New("invalid debt")

// Amount は 0 以上の金額です。
type Amount float64

// ParseAmount は負数・NaN・無限大を拒否します。
func ParseAmount(v float64) (Amount, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: %v is not a non-negative number", ErrInvalidDebt, v)
	}
	return Amount(v), nil
}

// Currency は対応している ISO 4217 通貨コードです。
type Currency string

var supportedCurrencies = map[Currency]struct{}{
	"AUD": {}, "CAD": {}, "CHF": {}, "CNY": {}, "EUR": {}, "GBP": {}, "HKD": {},
	"JPY": {}, "KRW": {}, "NZD": {}, "SEK": {}, "SGD": {}, "USD": {},
}

// ParseCurrency は大文字小文字を区別せずに通貨コードを解釈します。
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := supportedCurrencies[c]; !ok {
		return "", fmt.Errorf("%w: %q is not a supported currency", ErrInvalidDebt, s)
	}
	return c, nil
}

// Description は説明文です。
type Description string

// ParseDescription は MaxDescriptionGraphemes を超える説明文を拒否します。
func ParseDescription(s string) (Description, error) {
	if n := uniseg.GraphemeClusterCount(s); n > MaxDescriptionGraphemes {
		return "", fmt.Errorf("%w: description has %d graphemes, max %d", ErrInvalidDebt, n, MaxDescriptionGraphemes)
	}
	return Description(s), nil
}

// ParseUserID は UUID 形式のユーザーIDを解釈します。
func ParseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q is not a valid user id", ErrInvalidDebt, s)
	}
	return id, nil
}

// Status は返済状況です。
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusUnpaid  Status = "unpaid"
)

// NewDebt は検証済みの新規 debt です。
type NewDebt struct {
	CreditorID  uuid.UUID
	DebtorID    uuid.UUID
	Amount      Amount
	Currency    Currency
	Description Description
	Status      Status
}

// DebtInput は未検証の入力です。
type DebtInput struct {
	DebtorID    string  `json:"debtor_id"`
	CreditorID  string  `json:"creditor_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

// Parse は入力を検証して NewDebt にします。状態は常に pending で始まります。
func (in DebtInput) Parse() (NewDebt, error) {
	debtor, err := ParseUserID(in.DebtorID)
	if err != nil {
		return NewDebt{}, err
	}
	creditor, err := ParseUserID(in.CreditorID)
	if err != nil {
		return NewDebt{}, err
	}
	if debtor == creditor {
		return NewDebt{}, fmt.Errorf("%w: creditor and debtor must differ", ErrInvalidDebt)
	}
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return NewDebt{}, err
	}
	currency, err := ParseCurrency(in.Currency)
	if err != nil {
		return NewDebt{}, err
	}
	description, err := ParseDescription(in.Description)
	if err != nil {
		return NewDebt{}, err
	}
	return NewDebt{
		CreditorID:  creditor,
		DebtorID:    debtor,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		Status:      StatusPending,
	}, nil
}

// Involves は userID が貸し手か借り手であるかを返します。
func (d NewDebt) Involves(userID uuid.UUID) bool {
	return d.CreditorID == userID || d.DebtorID == userID
}
