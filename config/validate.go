package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate rejects configurations that cannot produce a working daemon.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.FeeRecipient != "" && !common.IsHexAddress(c.FeeRecipient) {
		return fmt.Errorf("config: FeeRecipient %q is not a hex address", c.FeeRecipient)
	}
	if c.ProtocolFeeBps > 0 && c.FeeRecipient == "" {
		return fmt.Errorf("config: ProtocolFeeBps requires a FeeRecipient")
	}
	for _, admin := range c.AdminAddresses {
		if !common.IsHexAddress(admin) {
			return fmt.Errorf("config: admin address %q is not a hex address", admin)
		}
	}
	return nil
}
