package domain

import "time"

type NFT struct {
	ID          string     `json:"id" db:"id"`
	BookingID   string     `json:"bookingId" db:"booking_id"`
	TokenID     string     `json:"tokenId" db:"token_id"`
	TokenURI    string     `json:"tokenUri" db:"token_uri"`
	Chain       string     `json:"chain" db:"chain"`
	MintTx      string     `json:"mintTx" db:"mint_tx"`
	MetadataCID string     `json:"metadataCid" db:"metadata_cid"`
	Burned      bool       `json:"burned" db:"burned"`
	BurnedAt    *time.Time `json:"burnedAt,omitempty" db:"burned_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

type NFTAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type NFTMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	Attributes  []NFTAttribute `json:"attributes"`
}

// TokenRef is what the minting collaborator returns for a successful mint.
type TokenRef struct {
	TokenID     string
	TokenURI    string
	Chain       string
	MintTx      string
	MetadataCID string
}
