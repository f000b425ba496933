package domain

import "strings"

type Provider string

const (
	ProviderPayPal      Provider = "paypal"
	ProviderNOWPayments Provider = "nowpayments"
	ProviderOmise       Provider = "omise"
)

var providerAliases = map[string]Provider{
	"paypal":      ProviderPayPal,
	"nowpayments": ProviderNOWPayments,
	"crypto":      ProviderNOWPayments,
	"omise":       ProviderOmise,
	"card":        ProviderOmise,
}

// ParseProvider normalises a provider identifier coming from a client or a
// webhook route. Unknown names are returned as-is so the registry can reject them.
func ParseProvider(name string) Provider {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := providerAliases[key]; ok {
		return p
	}
	return Provider(key)
}

type PaymentOption struct {
	Provider   Provider `json:"provider"`
	Label      string   `json:"label"`
	NFTReceipt bool     `json:"nftReceipt"`
}
