package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Market and chain data sources.
	GeckoTerminalBaseURL = "https://api.geckoterminal.com/api/v2"
	GeckoTerminalNetwork = "educhain"
	BlockscoutBaseURL    = "https://educhain.blockscout.com"

	// Bridge settlement trackers. The Orbit inbox has no public status API.
	LayerZeroSettlementURL = "https://scan.layerzero-api.com/v1/messages/tx"
)

var explorerTxBaseByChainID = map[int64]string{
	41923: BlockscoutBaseURL + "/tx/",
	56:    "https://bscscan.com/tx/",
	42161: "https://arbiscan.io/tx/",
}

// ExplorerTxURL links a transaction hash to the block explorer of its chain.
func ExplorerTxURL(chainID int64, txHash string) string {
	base, ok := explorerTxBaseByChainID[chainID]
	if !ok || strings.TrimSpace(txHash) == "" {
		return ""
	}
	return base + strings.TrimSpace(txHash)
}

func BridgeSettlementURL(provider string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "layerzero":
		return LayerZeroSettlementURL, true
	default:
		return "", false
	}
}

func IsAllowedBridgeSettlementURL(provider, endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	if isLoopbackHost(parsed.Hostname()) {
		scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
		return scheme == "" || scheme == "http" || scheme == "https"
	}
	if !strings.EqualFold(strings.TrimSpace(parsed.Scheme), "https") {
		return false
	}
	allowedRaw, ok := BridgeSettlementURL(provider)
	if !ok {
		return false
	}
	allowed, err := url.Parse(allowedRaw)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Scheme, allowed.Scheme) {
		return false
	}
	if !strings.EqualFold(parsed.Hostname(), allowed.Hostname()) {
		return false
	}
	if normalizedURLPort(parsed) != normalizedURLPort(allowed) {
		return false
	}
	return normalizedURLPath(parsed.Path) == normalizedURLPath(allowed.Path)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if parsed == nil {
		return ""
	}
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func normalizedURLPath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
