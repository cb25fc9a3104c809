package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/academykb/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the embedded template decoded over a zero config
	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(ProjectConfigTemplate), &got))

	// Then: every documented value equals the built-in default
	assert.Equal(t, *config.NewConfig(), got)
}
