package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestContractsRequireConfiguration(t *testing.T) {
	var empty Contracts
	if _, _, _, err := empty.Swap(); err == nil || !strings.Contains(err.Error(), "sailfish_factory") {
		t.Fatalf("expected missing factory error, got %v", err)
	}

	c := Contracts{
		SailfishFactory: "0x00000000000000000000000000000000000000f1",
		SailfishQuoter:  "0x00000000000000000000000000000000000000f2",
		SailfishRouter:  "0x00000000000000000000000000000000000000F3",
	}
	_, _, router, err := c.Swap()
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if !c.IsSailfishRouter(strings.ToLower(router.Hex())) {
		t.Fatal("expected router match to be case-insensitive")
	}

	bad := Contracts{BSCEDUToken: "0x1234", BSCOFTAdapter: "0x00000000000000000000000000000000000000aa"}
	if _, _, err := bad.BSCBridge(); err == nil {
		t.Fatal("expected invalid address error")
	}
	zero := Contracts{ArbitrumEDUToken: "0x0000000000000000000000000000000000000000", ArbitrumInbox: "0x00000000000000000000000000000000000000aa"}
	if _, _, err := zero.ArbitrumBridge(); err == nil {
		t.Fatal("expected zero address error")
	}
}

func TestExecutionABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20MinimalABI,
		UniswapV3FactoryABI,
		UniswapV3PoolABI,
		UniswapV3QuoterV2ABI,
		UniswapV3RouterABI,
		LayerZeroProxyOFTABI,
		OrbitERC20InboxABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestDefaultRPCURL(t *testing.T) {
	for _, chainID := range []int64{41923, 56, 42161} {
		if rpc, ok := DefaultRPCURL(chainID); !ok || rpc == "" {
			t.Fatalf("expected rpc default for %d, got ok=%v rpc=%q", chainID, ok, rpc)
		}
	}
	if _, err := ResolveRPCURL("", 1); err == nil {
		t.Fatal("expected error for chain without default rpc")
	}
	if rpc, err := ResolveRPCURL(" http://127.0.0.1:8545 ", 1); err != nil || rpc != "http://127.0.0.1:8545" {
		t.Fatalf("expected override to win, got %q err=%v", rpc, err)
	}
}

func TestExplorerTxURL(t *testing.T) {
	if got := ExplorerTxURL(41923, "0xabc"); got != "https://educhain.blockscout.com/tx/0xabc" {
		t.Fatalf("unexpected edu explorer url: %s", got)
	}
	if got := ExplorerTxURL(56, "0xabc"); got != "https://bscscan.com/tx/0xabc" {
		t.Fatalf("unexpected bsc explorer url: %s", got)
	}
	if got := ExplorerTxURL(1, "0xabc"); got != "" {
		t.Fatalf("expected empty url for unknown chain, got %s", got)
	}
}

func TestBridgeSettlementURLAllowlist(t *testing.T) {
	if !IsAllowedBridgeSettlementURL("layerzero", LayerZeroSettlementURL) {
		t.Fatal("expected canonical layerzero url to be allowed")
	}
	if IsAllowedBridgeSettlementURL("layerzero", "https://evil.example/v1/messages/tx") {
		t.Fatal("expected foreign host to be rejected")
	}
	if !IsAllowedBridgeSettlementURL("layerzero", "http://127.0.0.1:9000/status") {
		t.Fatal("expected loopback override to be allowed")
	}
	if IsAllowedBridgeSettlementURL("orbit", "https://bridge.arbitrum.io") {
		t.Fatal("orbit has no settlement tracker")
	}
}
