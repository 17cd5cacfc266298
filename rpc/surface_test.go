package rpc

import (
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type testServiceA struct{}

func (testServiceA) Foo() string { return "foo" }

func (testServiceA) Bar() (string, error) { return "bar", nil }

// not callable
func (testServiceA) Tuple() (int, int) { return 1, 2 }

func (testServiceA) Triple() (int, int, error) { return 1, 2, nil }

type testServiceB struct{}

func (testServiceB) Baz() int { return 3 }

type testServiceC struct{}

func (testServiceC) Foo() string { return "another foo" }

func testAPI(namespace string, service interface{}) rpc.API {
	return rpc.API{Namespace: namespace, Version: APIVersion, Service: service, Public: true}
}

func TestNewMethodSurface(t *testing.T) {
	s, err := NewMethodSurface(testAPI("test", testServiceA{}))
	require.NoError(t, err)
	require.Equal(t, []string{"test_bar", "test_foo"}, s.Names())
	require.True(t, s.Has("test_foo"))
	require.False(t, s.Has("test_tuple"))
	require.False(t, s.Has("test_triple"))
	require.Equal(t, 2, s.Len())
}

func TestNewMethodSurface_NoMethods(t *testing.T) {
	_, err := NewMethodSurface(testAPI("empty", struct{}{}))
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		apis   []rpc.API
		names  []string
		expDup string
	}{
		{
			apis:  []rpc.API{testAPI("test", testServiceA{}), testAPI("test", testServiceB{})},
			names: []string{"test_bar", "test_baz", "test_foo"},
		},
		{
			apis:  []rpc.API{testAPI("a", testServiceA{}), testAPI("c", testServiceC{})},
			names: []string{"a_bar", "a_foo", "c_foo"},
		},
		{
			apis:   []rpc.API{testAPI("test", testServiceA{}), testAPI("test", testServiceC{})},
			expDup: "test_foo",
		},
		{
			apis:   []rpc.API{testAPI("test", testServiceB{}), testAPI("test", testServiceB{})},
			expDup: "test_baz",
		},
	}
	for i, test := range tests {
		var surfaces []*MethodSurface
		for _, api := range test.apis {
			s, err := NewMethodSurface(api)
			require.NoError(t, err)
			surfaces = append(surfaces, s)
		}
		merged, err := Merge(surfaces...)
		if test.expDup != "" {
			require.True(t, errors.Is(err, ErrDuplicateMethodName), "test %d: %v", i, err)
			var dupErr *DuplicateMethodNameError
			require.True(t, errors.As(err, &dupErr), "test %d", i)
			require.Equal(t, test.expDup, dupErr.Name, "test %d", i)
			require.Nil(t, merged)
			continue
		}
		require.NoError(t, err, "test %d", i)
		require.Equal(t, test.names, merged.Names(), "test %d", i)
		require.Len(t, merged.APIs(), len(test.apis), "test %d", i)
	}
}

func TestMerge_InputsUntouched(t *testing.T) {
	a, err := NewMethodSurface(testAPI("test", testServiceA{}))
	require.NoError(t, err)
	b, err := NewMethodSurface(testAPI("test", testServiceB{}))
	require.NoError(t, err)

	_, err = Merge(a, b)
	require.NoError(t, err)
	require.Equal(t, 2, a.Len())
	require.Equal(t, 1, b.Len())
}

func TestMergeAPIs_Namespaces(t *testing.T) {
	b := newTestBackend(t)

	s, err := MergeAPIs(JSONRPCAPIs(b)...)
	require.NoError(t, err)
	for _, name := range []string{
		"eth_chainId", "eth_blockNumber", "eth_getBlockByNumber", "eth_syncing",
		"debug_setLogVerbosity", "debug_logVerbosity",
		"net_version", "net_listening", "net_peerCount",
		"web3_clientVersion", "web3_sha3",
	} {
		require.True(t, s.Has(name), name)
	}

	ws, err := MergeAPIs(SubscriptionAPIs(b)...)
	require.NoError(t, err)
	require.Equal(t, []string{"eth_subscribe(newHeads)"}, ws.Names())

	// the json-rpc eth namespace and the pub/sub one can be served together
	_, err = Merge(s, ws)
	require.NoError(t, err)

	// the same namespace twice cannot
	_, err = MergeAPIs(NewPublicNetAPI(b), NewPublicNetAPI(b))
	require.True(t, errors.Is(err, ErrDuplicateMethodName))
}
