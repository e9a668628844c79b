package execution

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

// Error(string) selector.
var errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// dataError matches go-ethereum's rpc.DataError without importing the rpc package.
type dataError interface {
	error
	ErrorData() interface{}
}

func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	if bytes.Equal(data[:4], errorStringSelector) {
		reason, err := abi.UnpackRevert(data)
		if err == nil {
			return reason
		}
		return "malformed revert reason"
	}
	return fmt.Sprintf("custom error 0x%x", data[:4])
}

func decodeRevertFromError(err error) string {
	var de dataError
	if !errors.As(err, &de) {
		return ""
	}
	switch v := de.ErrorData().(type) {
	case string:
		return decodeRevertData(common.FromHex(strings.TrimSpace(v)))
	case []byte:
		return decodeRevertData(v)
	default:
		return ""
	}
}

// wrapEVMExecutionError adds the decoded revert reason, when present, to the message.
func wrapEVMExecutionError(code clierr.Code, msg string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: reverted: %s", msg, reason), err)
	}
	return clierr.Wrap(code, msg, err)
}
