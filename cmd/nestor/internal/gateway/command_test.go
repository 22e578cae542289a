package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "gateway", cmd.Use)
	assert.True(t, cmd.HasAlias("g"))

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	require.True(t, cmd.HasSubCommands())
	subcommandUses := make([]string, 0)
	for _, sub := range cmd.Commands() {
		subcommandUses = append(subcommandUses, sub.Use)
	}

	assert.Contains(t, subcommandUses, "start")
	assert.Contains(t, subcommandUses, "stop")
	assert.Contains(t, subcommandUses, "restart")
	assert.Contains(t, subcommandUses, "status")

	assert.True(t, cmd.HasFlags())
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}
