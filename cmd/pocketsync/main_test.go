package main

import (
	"bytes"
	"context"
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/config"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/store/inmemory"
)

func newTestCLI(input string) (*cli, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &cli{
		cfg:    config.Default(),
		log:    logger.NewWithWriter(nil),
		in:     strings.NewReader(input),
		out:    out,
		errOut: errOut,
		store:  inmemory.NewStore(),
	}, out, errOut
}

func TestTerminal_Confirm(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer
	ok, err := newTerminal(strings.NewReader("maybe\ny\n"), &out).Confirm(ctx, "Proceed?", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "? Proceed? (y/N) ")
	assert.Contains(t, out.String(), "Please answer yes or no.")

	ok, err = newTerminal(strings.NewReader("\n"), &out).Confirm(ctx, "Resume?", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newTerminal(strings.NewReader(""), &out).Confirm(ctx, "Proceed?", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminal_Select(t *testing.T) {
	var out bytes.Buffer
	i, err := newTerminal(strings.NewReader("0\nx\n2\n"), &out).Select(context.Background(), "Pick:", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Contains(t, out.String(), "  2) b")
	assert.Contains(t, out.String(), `"0" is not a valid choice.`)

	_, err = newTerminal(strings.NewReader(""), &out).Select(context.Background(), "Pick:", []string{"a"})
	assert.Error(t, err)
}

func TestTerminal_Input(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("\n  custom  \nlast"), &out)

	v, err := term.Input(context.Background(), "Name:", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	v, err = term.Input(context.Background(), "Name:", "default")
	require.NoError(t, err)
	assert.Equal(t, "custom", v)

	v, err = term.Input(context.Background(), "Name:", "")
	require.NoError(t, err)
	assert.Equal(t, "last", v)
}

func TestParseArgs(t *testing.T) {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	dry := fs.Bool("dry-run", false, "")
	all := fs.Bool("run-all", false, "")

	pos, err := parseArgs(fs, []string{"-run-all", "daily", "-dry-run"})
	require.NoError(t, err)
	assert.Equal(t, []string{"daily"}, pos)
	assert.True(t, *dry)
	assert.True(t, *all)
}

func TestCLI_Config(t *testing.T) {
	ctx := context.Background()
	c, out, _ := newTestCLI("prompted\n")

	require.NoError(t, c.run(ctx, []string{"config", "PocketSmith", "-set", "apiKey=abc", "-set", "userId="}))
	assert.Contains(t, out.String(), "Config options saved")

	out.Reset()
	require.NoError(t, c.run(ctx, []string{"config", "PocketSmith"}))
	assert.Contains(t, out.String(), `"apiKey": "abc"`)
	assert.Contains(t, out.String(), `"userId": "prompted"`)

	require.NoError(t, c.run(ctx, []string{"config", "PocketSmith", "-replace", "-set", "apiKey=new"}))
	out.Reset()
	require.NoError(t, c.run(ctx, []string{"config", "PocketSmith"}))
	assert.Contains(t, out.String(), `"apiKey": "new"`)
	assert.NotContains(t, out.String(), "userId")

	err := c.run(ctx, []string{"config", "Nope"})
	assert.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)
}

func TestCLI_SyncWithoutProfiles(t *testing.T) {
	ctx := context.Background()
	c, out, errOut := newTestCLI("")

	require.NoError(t, c.run(ctx, []string{"sync", "-list"}))
	assert.Contains(t, out.String(), "No sync profiles available")

	err := c.run(ctx, []string{"sync", "-unattended"})
	require.True(t, apperr.Is(err, apperr.KindConfig), "got %v", err)
	assert.Equal(t, 1, c.exit(err))
	assert.Equal(t, "No sync profiles available. Run `pocketsync create-sync` to create a new one\n", errOut.String())
}

func TestCLI_Providers(t *testing.T) {
	c, out, _ := newTestCLI("")
	require.NoError(t, c.run(context.Background(), []string{"providers"}))
	assert.Contains(t, out.String(), "- FreeAgent (source, target)")
	assert.Contains(t, out.String(), "- Notion (target)")
	assert.Contains(t, out.String(), "- RevolutBusiness (source)")
}

func TestCLI_CapabilityErrors(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCLI("")

	err := c.run(ctx, []string{"categories", "RevolutBusiness"})
	assert.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)

	err = c.run(ctx, []string{"auth", "PocketSmith"})
	assert.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)

	err = c.run(ctx, []string{"create-sync", "Notion"})
	require.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)
	assert.Contains(t, err.Error(), "Source provider Notion does not exist")

	err = c.run(ctx, []string{"map-category", "a", "b"})
	assert.True(t, apperr.Is(err, apperr.KindParam), "got %v", err)
}

func TestCLI_UnknownCommand(t *testing.T) {
	c, _, errOut := newTestCLI("")
	err := c.run(context.Background(), []string{"frobnicate"})
	assert.Equal(t, 2, c.exit(err))
	assert.Contains(t, errOut.String(), "Unknown command: frobnicate")
}
