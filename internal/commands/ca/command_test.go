package ca

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestInitCommandCreatesCA(t *testing.T) {
	dir := t.TempDir()
	ui := cli.NewMockUi()
	cmd := NewInitCommand(context.Background(), ui, io.Discard)
	require.Equal(t, 0, cmd.Run([]string{"-ca-dir", dir}))
	require.FileExists(t, filepath.Join(dir, "syrah-ca.key"))
	require.FileExists(t, filepath.Join(dir, "syrah-ca-cert.pem"))
}

func TestInitCommandIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ui := cli.NewMockUi()
	cmd := NewInitCommand(context.Background(), ui, io.Discard)
	require.Equal(t, 0, cmd.Run([]string{"-ca-dir", dir}))

	before, err := os.ReadFile(filepath.Join(dir, "syrah-ca-cert.pem"))
	require.NoError(t, err)

	require.Equal(t, 0, cmd.Run([]string{"-ca-dir", dir}))
	after, err := os.ReadFile(filepath.Join(dir, "syrah-ca-cert.pem"))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestExportCommandRequiresOut(t *testing.T) {
	dir := t.TempDir()
	ui := cli.NewMockUi()
	cmd := NewExportCommand(context.Background(), ui, io.Discard)
	require.Equal(t, 1, cmd.Run([]string{"-ca-dir", dir}))
}

func TestExportCommandRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	ui := cli.NewMockUi()
	cmd := NewExportCommand(context.Background(), ui, io.Discard)
	out := filepath.Join(dir, "ca.out")
	require.Equal(t, 1, cmd.Run([]string{"-ca-dir", dir, "-format", "bogus", "-out", out}))
}

func TestExportCommandWritesPEM(t *testing.T) {
	dir := t.TempDir()
	ui := cli.NewMockUi()
	init := NewInitCommand(context.Background(), ui, io.Discard)
	require.Equal(t, 0, init.Run([]string{"-ca-dir", dir}))

	out := filepath.Join(dir, "exported.pem")
	export := NewExportCommand(context.Background(), ui, io.Discard)
	require.Equal(t, 0, export.Run([]string{"-ca-dir", dir, "-format", "pem", "-out", out}))
	require.FileExists(t, out)
}

func TestGroupCommandReturnsHelp(t *testing.T) {
	cmd := &groupCommand{}
	require.Equal(t, cli.RunResultHelp, cmd.Run(nil))
	require.NotEmpty(t, cmd.Synopsis())
	require.NotEmpty(t, cmd.Help())
}
