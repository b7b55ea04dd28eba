package server

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestSynopsisAndHelp(t *testing.T) {
	cmd := New(context.Background(), cli.NewMockUi(), io.Discard)
	require.NotEmpty(t, cmd.Synopsis())
	require.Contains(t, cmd.Help(), "syrah server")
}

func TestRunFailsOnUnparsableFlags(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := New(context.Background(), ui, io.Discard)
	require.Equal(t, exitGeneric, cmd.Run([]string{"-unknown-flag"}))
}

func TestRunFailsWhenBridgeAddressAlreadyBound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dir := t.TempDir()
	ui := cli.NewMockUi()
	cmd := New(context.Background(), ui, io.Discard)
	code := cmd.Run([]string{
		"-listen-addr", "127.0.0.1:0",
		"-bridge-addr", ln.Addr().String(),
		"-ca-dir", dir,
		"-rules-file", filepath.Join(dir, "rules.json"),
	})
	require.Equal(t, exitBindFail, code)
}
