package arena

import (
	"fmt"
	"time"

	"github.com/aarika/x402-arena/evm"
	"github.com/ethereum/go-ethereum/common"
)

// Defaults for the Avalanche Fuji deployment.
const (
	DefaultChainID uint64 = 43113
	DefaultAsset          = "0x5425890298aed601595a70AB815c96711a31Bc65" // USDC on Fuji

	DefaultSettleDelay          = 500 * time.Millisecond
	DefaultDeliveryPollAttempts = 10
	DefaultDeliveryPollInterval = 1500 * time.Millisecond
)

// Config holds the orchestrator tunables.
type Config struct {
	// DefaultChainID and DefaultAsset are used only when a challenge omits
	// or garbles its network or asset.
	DefaultChainID uint64
	DefaultAsset   string

	// TokenName and TokenVersion are the EIP-712 domain used when the
	// challenge carries no extra info. Default "USD Coin" / "2".
	TokenName    string
	TokenVersion string

	// SettleDelay is waited after a competition is created, before
	// OnCreated fires, so the first read sees the indexed write.
	SettleDelay time.Duration

	// DeliveryPollAttempts and DeliveryPollInterval bound delivery-status
	// polling after a winner is selected.
	DeliveryPollAttempts int
	DeliveryPollInterval time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.DefaultChainID == 0 {
		c.DefaultChainID = DefaultChainID
	}
	if c.DefaultAsset == "" {
		c.DefaultAsset = DefaultAsset
	}
	if !common.IsHexAddress(c.DefaultAsset) {
		return fmt.Errorf("default asset %q is not an address", c.DefaultAsset)
	}
	if c.TokenName == "" {
		c.TokenName = evm.DefaultTokenName
	}
	if c.TokenVersion == "" {
		c.TokenVersion = evm.DefaultTokenVersion
	}

	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative")
	}

	if c.DeliveryPollAttempts == 0 {
		c.DeliveryPollAttempts = DefaultDeliveryPollAttempts
	}
	if c.DeliveryPollAttempts < 0 {
		return fmt.Errorf("delivery poll attempts must not be negative")
	}
	if c.DeliveryPollInterval == 0 {
		c.DeliveryPollInterval = DefaultDeliveryPollInterval
	}
	if c.DeliveryPollInterval < 0 {
		return fmt.Errorf("delivery poll interval must not be negative")
	}

	return nil
}

func (c *Config) domainDefaults() evm.DomainDefaults {
	return evm.DomainDefaults{
		ChainID:      c.DefaultChainID,
		Asset:        c.DefaultAsset,
		TokenName:    c.TokenName,
		TokenVersion: c.TokenVersion,
	}
}
