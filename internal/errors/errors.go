package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess       Code = 0
	CodeInternal      Code = 1
	CodeUsage         Code = 2
	CodeAuth          Code = 10
	CodeRateLimited   Code = 11
	CodeUnavailable   Code = 12
	CodeUnsupported   Code = 13
	CodeStale         Code = 14
	CodePartialStrict Code = 15
	CodeBlocked       Code = 16
	CodeSigner        Code = 17
	CodeActionPlan    Code = 18
	CodeActionSim     Code = 19

	// Routing and execution outcomes.
	CodeInvalidToken        Code = 20
	CodeNoRoute             Code = 21
	CodeNoLiquidity         Code = 22
	CodeInsufficientBalance Code = 23
	CodeApprovalFailed      Code = 24
	CodeTxReverted          Code = 25
	CodeConfirmationTimeout Code = 26

	// CodeActionTimeout is kept as an alias used by receipt polling.
	CodeActionTimeout = CodeConfirmationTimeout
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	typed, ok := As(err)
	return ok && typed.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// Kind maps a code to the stable string surfaced in error envelopes.
func Kind(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeStale:
		return "stale_data"
	case CodePartialStrict:
		return "partial_results"
	case CodeBlocked:
		return "command_blocked"
	case CodeSigner:
		return "signer_error"
	case CodeActionPlan:
		return "action_plan_error"
	case CodeActionSim:
		return "simulation_failed"
	case CodeInvalidToken:
		return "invalid_token"
	case CodeNoRoute:
		return "no_route"
	case CodeNoLiquidity:
		return "no_liquidity"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeApprovalFailed:
		return "approval_failed"
	case CodeTxReverted:
		return "transaction_reverted"
	case CodeConfirmationTimeout:
		return "confirmation_timeout"
	default:
		return "internal_error"
	}
}

// KindOf returns the envelope kind for any error.
func KindOf(err error) string {
	if typed, ok := As(err); ok {
		return Kind(typed.Code)
	}
	return Kind(CodeInternal)
}
