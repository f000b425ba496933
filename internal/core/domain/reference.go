package domain

import (
	"strings"
	"time"
)

type User struct {
	ID                   string    `json:"id" db:"id"`
	Email                string    `json:"email" db:"email"`
	EncryptedName        string    `json:"-" db:"encrypted_name"`
	KYCStatus            string    `json:"kycStatus" db:"kyc_status"`
	DefaultWalletAddress string    `json:"defaultWalletAddress,omitempty" db:"default_wallet_address"`
	CreatedAt            time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time `json:"updatedAt" db:"updated_at"`
}

type Merchant struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	PaypalMerchantID   string    `json:"paypalMerchantId,omitempty" db:"paypal_merchant_id"`
	SettlementCurrency string    `json:"settlementCurrency" db:"settlement_currency"`
	AcceptPYUSD        bool      `json:"acceptPYUSD" db:"accept_pyusd"`
	AcceptNFTs         bool      `json:"acceptNFTs" db:"accept_nfts"`
	TelegramChatID     *int64    `json:"telegramChatId,omitempty" db:"telegram_chat_id"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultMerchant is the profile assumed for merchants without reference data.
func DefaultMerchant(id string) *Merchant {
	return &Merchant{
		ID:                 id,
		SettlementCurrency: DefaultCurrency,
		AcceptPYUSD:        true,
	}
}

func (m *Merchant) SettlesIn(currencies ...string) bool {
	for _, c := range currencies {
		if strings.EqualFold(m.SettlementCurrency, c) {
			return true
		}
	}
	return false
}

type Service struct {
	ID           string    `json:"id" db:"id"`
	MerchantID   string    `json:"merchantId" db:"merchant_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	BasePriceUSD float64   `json:"basePriceUsd" db:"base_price_usd"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
