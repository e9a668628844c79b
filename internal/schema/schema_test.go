package schema

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "edufi"}
	swap := &cobra.Command{Use: "swap", Short: "SailFish swaps"}
	plan := &cobra.Command{Use: "plan", Short: "plan a swap", RunE: func(*cobra.Command, []string) error { return nil }}
	plan.Flags().String("from", "", "input token")
	plan.Flags().Int64("slippage-bps", 50, "max slippage")
	_ = plan.MarkFlagRequired("from")
	run := &cobra.Command{
		Use:         "run",
		Short:       "plan and execute a swap",
		Annotations: map[string]string{AnnotationMutates: "true"},
		RunE:        func(*cobra.Command, []string) error { return nil },
	}
	swap.AddCommand(plan, run)
	root.AddCommand(swap)
	return root
}

func TestBuildSubcommand(t *testing.T) {
	s, err := Build(testTree(), "swap plan")
	require.NoError(t, err)
	assert.Equal(t, "edufi swap plan", s.Path)
	require.Len(t, s.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range s.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["from"].Required)
	assert.False(t, byName["slippage-bps"].Required)
	assert.Equal(t, "50", byName["slippage-bps"].Default)
}

func TestBuildMarksMutatingCommands(t *testing.T) {
	s, err := Build(testTree(), "swap")
	require.NoError(t, err)
	require.Len(t, s.Subcommands, 2)
	assert.False(t, s.Subcommands[0].Mutates)
	assert.True(t, s.Subcommands[1].Mutates)
}

func TestBuildUnknownPath(t *testing.T) {
	_, err := Build(testTree(), "swap teleport")
	assert.True(t, clierr.Is(err, clierr.CodeUsage))
}
