package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	assert.NoError(t, CheckCommandAllowed(nil, "swap run"))
	assert.NoError(t, CheckCommandAllowed([]string{"quote"}, "quote"))
	assert.NoError(t, CheckCommandAllowed([]string{"Swap  Plan"}, "swap plan"))

	err := CheckCommandAllowed([]string{"quote"}, "swap run")
	assert.True(t, clierr.Is(err, clierr.CodeBlocked))
}

func TestGroupEntryAllowsSubcommands(t *testing.T) {
	allow := []string{"swap", "network"}
	assert.NoError(t, CheckCommandAllowed(allow, "swap plan"))
	assert.NoError(t, CheckCommandAllowed(allow, "network status"))
	assert.Error(t, CheckCommandAllowed(allow, "swapper"))
	assert.Error(t, CheckCommandAllowed(allow, "bridge run"))
}

func TestIntrospectionAlwaysAllowed(t *testing.T) {
	allow := []string{"quote"}
	assert.NoError(t, CheckCommandAllowed(allow, "version"))
	assert.NoError(t, CheckCommandAllowed(allow, "schema swap run"))
}
