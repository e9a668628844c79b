package planner

import (
	"bytes"
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeReader struct {
	allowance *big.Int
	balances  map[common.Address]*big.Int
	native    *big.Int
	calls     int
}

func (f *fakeReader) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	switch {
	case bytes.HasPrefix(msg.Data, plannerERC20ABI.Methods["allowance"].ID):
		return plannerERC20ABI.Methods["allowance"].Outputs.Pack(orZero(f.allowance))
	case bytes.HasPrefix(msg.Data, plannerERC20ABI.Methods["balanceOf"].ID):
		return plannerERC20ABI.Methods["balanceOf"].Outputs.Pack(orZero(f.balances[*msg.To]))
	}
	return nil, ethereum.NotFound
}

func (f *fakeReader) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return orZero(f.native), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
