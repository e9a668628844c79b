package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeFollowsWrappedCode(t *testing.T) {
	err := fmt.Errorf("plan swap: %w", New(CodeNoRoute, "no route for USDC -> WISER"))
	if got := ExitCode(err); got != int(CodeNoRoute) {
		t.Fatalf("expected exit %d, got %d", CodeNoRoute, got)
	}
	if got := KindOf(err); got != "no_route" {
		t.Fatalf("unexpected kind %q", got)
	}
}

func TestTimeoutAndRevertAreDistinct(t *testing.T) {
	if Kind(CodeConfirmationTimeout) == Kind(CodeTxReverted) {
		t.Fatal("timeout and revert must map to different kinds")
	}
	if CodeActionTimeout != CodeConfirmationTimeout {
		t.Fatal("receipt timeout alias must point at confirmation timeout")
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := Wrap(CodeInsufficientBalance, "insufficient USDC balance", fmt.Errorf("have 0"))
	if !Is(err, CodeInsufficientBalance) {
		t.Fatal("expected code match")
	}
	if Is(err, CodeUsage) {
		t.Fatal("unexpected code match")
	}
	if ExitCode(fmt.Errorf("plain")) != int(CodeInternal) {
		t.Fatal("untyped errors must map to internal")
	}
}
