package cmd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"movement-analysis/config"
)

func TestRootCommands(t *testing.T) {
	root := Root(&config.Config{Server: config.Server{HttpPort: "8000"}})

	names := make([]string, 0, 2)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"server", "analyze"}, names)
}

func TestServerFlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{Server: config.Server{HttpPort: "8000"}, Storage: config.Storage{UploadDir: "uploads"}}
	cmd := server(cfg)

	require.NoError(t, cmd.ParseFlags([]string{"--port", "9000", "--upload-dir", "/tmp/videos"}))
	assert.Equal(t, "9000", cfg.Server.HttpPort)
	assert.Equal(t, "/tmp/videos", cfg.Storage.UploadDir)
}

func TestAnalyzeRequiresVideo(t *testing.T) {
	root := Root(&config.Config{})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"analyze"})

	err := root.Execute()
	assert.ErrorContains(t, err, "requires at least 1 arg")
}
