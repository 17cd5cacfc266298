package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var (
	testStringFlag = StringFlag{Name: "datadir", DefValue: "./"}
	testBoolFlag   = BoolFlag{Name: "http", DefValue: true}
	testIntFlag    = IntFlag{Name: "http.port", DefValue: 20551}
	testUint32Flag = Uint32Flag{Name: "http.maxconn", DefValue: 100}
	testHiddenFlag = StringFlag{Name: "legacy", Hidden: true}
)

func newTestCmd(t *testing.T) *cobra.Command {
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	require.NoError(t, RegisterFlags(cmd, []Flag{
		testStringFlag, testBoolFlag, testIntFlag, testUint32Flag, testHiddenFlag,
	}))
	return cmd
}

func TestFlags_Defaults(t *testing.T) {
	cmd := newTestCmd(t)
	require.NoError(t, cmd.ParseFlags(nil))

	require.Equal(t, "./", GetStringFlagValue(cmd, testStringFlag))
	require.True(t, GetBoolFlagValue(cmd, testBoolFlag))
	require.Equal(t, 20551, GetIntFlagValue(cmd, testIntFlag))
	require.Equal(t, uint32(100), GetUint32FlagValue(cmd, testUint32Flag))
	require.False(t, HasFlagsChanged(cmd, []Flag{testStringFlag, testIntFlag}))
	require.True(t, cmd.Flags().Lookup(testHiddenFlag.Name).Hidden)
}

func TestFlags_Parse(t *testing.T) {
	cmd := newTestCmd(t)
	require.NoError(t, cmd.ParseFlags([]string{
		"--datadir", "/tmp/node", "--http=false", "--http.port", "8080", "--http.maxconn", "5",
	}))

	require.Equal(t, "/tmp/node", GetStringFlagValue(cmd, testStringFlag))
	require.False(t, GetBoolFlagValue(cmd, testBoolFlag))
	require.Equal(t, 8080, GetIntFlagValue(cmd, testIntFlag))
	require.Equal(t, uint32(5), GetUint32FlagValue(cmd, testUint32Flag))
	require.True(t, IsFlagChanged(cmd, testIntFlag))
	require.True(t, HasFlagsChanged(cmd, []Flag{testHiddenFlag, testBoolFlag}))
	require.False(t, IsFlagChanged(cmd, testHiddenFlag))
}

func TestParseErrorHandle(t *testing.T) {
	var got error
	SetParseErrorHandle(func(err error) { got = err })
	defer SetParseErrorHandle(nil)

	cmd := newTestCmd(t)
	require.NoError(t, cmd.ParseFlags(nil))
	require.Equal(t, 0, GetIntFlagValue(cmd, IntFlag{Name: "unknown"}))
	require.Error(t, got)
}
