package signer

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ggonzalez94/edufi-cli/internal/registry"
)

type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Swaps and transfers settle on EDU Chain; bridge deposits start on Arbitrum
// One or BNB Chain. Nothing else is ever signed.
var signingChains = map[int64]string{
	41923: "EDU Chain",
	42161: "Arbitrum One",
	56:    "BNB Chain",
}

// CheckChain rejects chains outside signingChains and typed transactions whose
// embedded chain id disagrees with the signing chain.
func CheckChain(chainID *big.Int, tx *types.Transaction) error {
	if chainID == nil || !chainID.IsInt64() {
		return errors.New("missing chain id")
	}
	if _, ok := signingChains[chainID.Int64()]; !ok {
		return fmt.Errorf("refusing to sign for chain %s: edufi signs for %s", chainID, chainList())
	}
	if tx != nil && tx.Type() != types.LegacyTxType && tx.ChainId().Cmp(chainID) != 0 {
		return fmt.Errorf("transaction chain id %s does not match signing chain %s", tx.ChainId(), chainID)
	}
	return nil
}

func chainList() string {
	ids := make([]int64, 0, len(signingChains))
	for id := range signingChains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s (%d)", signingChains[id], id))
	}
	return strings.Join(parts, ", ")
}

// AddressURL links the signer's account page on EDU Chain Blockscout.
func AddressURL(addr common.Address) string {
	return registry.BlockscoutBaseURL + "/address/" + addr.Hex()
}
