// Package nft pins receipt metadata to IPFS and mints the receipt token.
package nft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/adapter/gateway"
	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/platform/crypto"
)

type Config struct {
	StorageURL      string
	StorageKey      string
	Chain           string
	ContractAddress string
	ImageURI        string
}

type Minter struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
	now    func() time.Time
}

func NewMinter(cfg Config, client *http.Client, log *zap.Logger) *Minter {
	if client == nil {
		client = gateway.NewHTTPClient()
	}
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")
	return &Minter{cfg: cfg, client: client, log: log, now: time.Now}
}

func (m *Minter) Mint(ctx context.Context, bookingID, recipient string, metadata domain.NFTMetadata) (*domain.TokenRef, error) {
	if metadata.Image == "" {
		metadata.Image = m.cfg.ImageURI
	}

	cid, err := m.upload(ctx, metadata)
	if err != nil {
		return nil, err
	}

	tokenID, mintTx, err := m.mintOnChain(bookingID, recipient, cid)
	if err != nil {
		return nil, err
	}

	return &domain.TokenRef{
		TokenID:     tokenID,
		TokenURI:    "ipfs://" + cid,
		Chain:       m.cfg.Chain,
		MintTx:      mintTx,
		MetadataCID: cid,
	}, nil
}

type uploadResponse struct {
	OK    bool `json:"ok"`
	Value struct {
		CID string `json:"cid"`
	} `json:"value"`
}

func (m *Minter) upload(ctx context.Context, metadata domain.NFTMetadata) (string, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.StorageURL+"/upload", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.StorageKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs upload: %w", err)
	}
	defer res.Body.Close()

	raw, err := gateway.ReadBody(res)
	if err != nil {
		return "", fmt.Errorf("ipfs upload: read body: %w", err)
	}
	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("ipfs upload returned %d", res.StatusCode)
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("ipfs upload: decode: %w", err)
	}
	if out.Value.CID == "" {
		return "", fmt.Errorf("ipfs upload: response has no cid")
	}
	return out.Value.CID, nil
}

// mintOnChain stands in for the contract call until a chain client is wired.
// It produces a token id and transaction hash shaped like the real ones.
func (m *Minter) mintOnChain(bookingID, recipient, cid string) (string, string, error) {
	hash, err := crypto.RandomToken(32)
	if err != nil {
		return "", "", fmt.Errorf("mint tx: %w", err)
	}
	tokenID := strconv.FormatInt(m.now().UnixNano(), 10)

	m.log.Info("nft mint submitted",
		zap.String("booking_id", bookingID),
		zap.String("recipient", recipient),
		zap.String("chain", m.cfg.Chain),
		zap.String("contract", m.cfg.ContractAddress),
		zap.String("metadata_cid", cid),
	)
	return tokenID, "0x" + hash, nil
}
