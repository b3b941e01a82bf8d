package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Network is the blockchain a payment settles on
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkTron     Network = "tron"
)

// Valid reports whether n is a supported network
func (n Network) Valid() bool {
	return n == NetworkEthereum || n == NetworkTron
}

// NormalizeAddress lower-cases Ethereum addresses; Tron addresses are case-sensitive
func (n Network) NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if n == NetworkEthereum {
		return strings.ToLower(addr)
	}
	return addr
}

// PaymentType represents what a payment is for
type PaymentType string

const (
	PaymentTypeSubscription    PaymentType = "subscription"
	PaymentTypeJob             PaymentType = "job"
	PaymentTypeModelPurchase   PaymentType = "model_purchase"
	PaymentTypeAPISubscription PaymentType = "api_subscription"
	PaymentTypeAPIUsage        PaymentType = "api_usage"
)

// Valid reports whether t is a known payment type
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeSubscription, PaymentTypeJob, PaymentTypeModelPurchase,
		PaymentTypeAPISubscription, PaymentTypeAPIUsage:
		return true
	}
	return false
}

// IsAPI reports whether the payment is API revenue
func (t PaymentType) IsAPI() bool {
	return t == PaymentTypeAPISubscription || t == PaymentTypeAPIUsage
}

// PaymentStatus represents the confirmation state of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusConfirming PaymentStatus = "confirming"
	PaymentStatusConfirmed  PaymentStatus = "confirmed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// IsTerminal reports whether the payment can no longer change
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransition reports whether the payment state machine allows from -> to.
// Status only moves forward; confirming -> confirming is a confirmation update.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return to == PaymentStatusConfirming || to == PaymentStatusConfirmed ||
			to == PaymentStatusFailed || to == PaymentStatusCancelled
	case PaymentStatusConfirming:
		return to == PaymentStatusConfirming || to == PaymentStatusConfirmed ||
			to == PaymentStatusFailed || to == PaymentStatusCancelled
	}
	return false
}

// LinkKind tags the business object a payment pays for
type LinkKind string

const (
	LinkNone            LinkKind = ""
	LinkSubscription    LinkKind = "subscription"
	LinkJob             LinkKind = "job"
	LinkModel           LinkKind = "model"
	LinkAPISubscription LinkKind = "api_subscription"
)

// LinkedEntity references at most one business object. The zero value links nothing.
type LinkedEntity struct {
	Kind LinkKind `json:"kind,omitempty"`
	ID   int64    `json:"id,omitempty"`
}

func LinkToSubscription(id int64) LinkedEntity    { return LinkedEntity{Kind: LinkSubscription, ID: id} }
func LinkToJob(id int64) LinkedEntity             { return LinkedEntity{Kind: LinkJob, ID: id} }
func LinkToModel(id int64) LinkedEntity           { return LinkedEntity{Kind: LinkModel, ID: id} }
func LinkToAPISubscription(id int64) LinkedEntity { return LinkedEntity{Kind: LinkAPISubscription, ID: id} }

// IsNone reports whether nothing is linked
func (l LinkedEntity) IsNone() bool { return l.Kind == LinkNone }

// Valid reports whether the link is either empty or a known kind with an id
func (l LinkedEntity) Valid() bool {
	switch l.Kind {
	case LinkNone:
		return l.ID == 0
	case LinkSubscription, LinkJob, LinkModel, LinkAPISubscription:
		return l.ID > 0
	}
	return false
}

// Payment is an on-chain transfer tracked through the confirmation state machine
type Payment struct {
	ID                    int64                  `json:"id"`
	Type                  PaymentType            `json:"payment_type"`
	Status                PaymentStatus          `json:"status"`
	Amount                decimal.Decimal        `json:"amount"`
	Currency              string                 `json:"currency"`
	Network               Network                `json:"network"`
	PlatformFeePercent    decimal.Decimal        `json:"platform_fee_percent"`
	PlatformFeeAmount     decimal.Decimal        `json:"platform_fee_amount"`
	NetAmount             decimal.Decimal        `json:"net_amount"`
	FromWalletID          int64                  `json:"from_wallet_id"`
	FromAddress           string                 `json:"from_address"`
	ToAddress             string                 `json:"to_address"`
	TxHash                string                 `json:"tx_hash,omitempty"`
	BlockNumber           *int64                 `json:"block_number,omitempty"`
	BlockHash             string                 `json:"block_hash,omitempty"`
	Confirmations         int                    `json:"confirmations"`
	RequiredConfirmations int                    `json:"required_confirmations"`
	Linked                LinkedEntity           `json:"linked"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	ConfirmedAt           *time.Time             `json:"confirmed_at,omitempty"`
	UpdatedAt             time.Time              `json:"updated_at"`
}
