package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SailFish fee tiers in hundredths of a bip.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// LayerZero v1 endpoint id for Arbitrum One.
const LayerZeroArbitrumEID uint16 = 110

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Contracts holds the deployment addresses used by the swap and bridge planners.
// Addresses come from configuration; empty means the feature is unavailable.
type Contracts struct {
	SailfishFactory  string `yaml:"sailfish_factory" json:"sailfish_factory,omitempty"`
	SailfishQuoter   string `yaml:"sailfish_quoter" json:"sailfish_quoter,omitempty"`
	SailfishRouter   string `yaml:"sailfish_router" json:"sailfish_router,omitempty"`
	BSCEDUToken      string `yaml:"bsc_edu_token" json:"bsc_edu_token,omitempty"`
	BSCOFTAdapter    string `yaml:"bsc_oft_adapter" json:"bsc_oft_adapter,omitempty"`
	ArbitrumEDUToken string `yaml:"arbitrum_edu_token" json:"arbitrum_edu_token,omitempty"`
	ArbitrumInbox    string `yaml:"arbitrum_inbox" json:"arbitrum_inbox,omitempty"`
}

// Swap returns the SailFish factory, quoter and router or an error naming the first missing one.
func (c Contracts) Swap() (factory, quoter, router common.Address, err error) {
	if factory, err = requireAddress("sailfish_factory", c.SailfishFactory); err != nil {
		return
	}
	if quoter, err = requireAddress("sailfish_quoter", c.SailfishQuoter); err != nil {
		return
	}
	router, err = requireAddress("sailfish_router", c.SailfishRouter)
	return
}

// BSCBridge returns the EDU token and OFT adapter on BSC.
func (c Contracts) BSCBridge() (token, adapter common.Address, err error) {
	if token, err = requireAddress("bsc_edu_token", c.BSCEDUToken); err != nil {
		return
	}
	adapter, err = requireAddress("bsc_oft_adapter", c.BSCOFTAdapter)
	return
}

// ArbitrumBridge returns the EDU token and Orbit inbox on Arbitrum.
func (c Contracts) ArbitrumBridge() (token, inbox common.Address, err error) {
	if token, err = requireAddress("arbitrum_edu_token", c.ArbitrumEDUToken); err != nil {
		return
	}
	inbox, err = requireAddress("arbitrum_inbox", c.ArbitrumInbox)
	return
}

// IsSailfishRouter reports whether target is the configured router.
func (c Contracts) IsSailfishRouter(target string) bool {
	return c.SailfishRouter != "" && strings.EqualFold(strings.TrimSpace(target), strings.TrimSpace(c.SailfishRouter))
}

func requireAddress(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("contract %s is not configured", name)
	}
	if !addressPattern.MatchString(value) {
		return common.Address{}, fmt.Errorf("contract %s has invalid address %q", name, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("contract %s must not be the zero address", name)
	}
	return addr, nil
}
