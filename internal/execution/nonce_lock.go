package execution

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
)

var (
	nonceLocksMu sync.Mutex
	nonceLocks   = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock serialises nonce reads and broadcasts for one signer on
// one chain, within the process and across concurrent CLI invocations.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s-%s", chainID.String(), strings.ToLower(addr.Hex()))

	nonceLocksMu.Lock()
	mu, ok := nonceLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		nonceLocks[key] = mu
	}
	nonceLocksMu.Unlock()
	mu.Lock()

	fileLock := flock.New(filepath.Join(os.TempDir(), "edufi-nonce-"+key+".lock"))
	if err := fileLock.Lock(); err != nil {
		log.Debug().Err(err).Str("signer", addr.Hex()).Msg("nonce file lock unavailable, using process lock only")
		return mu.Unlock
	}
	return func() {
		_ = fileLock.Unlock()
		mu.Unlock()
	}
}
