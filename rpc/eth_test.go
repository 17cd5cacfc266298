package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/harmony-one/metachain/evm"
)

func newTestBackend(t *testing.T) *evm.Service {
	s, err := evm.New("", 1133)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func appendHeader(t *testing.T, s *evm.Service) *evm.Header {
	head := s.CurrentHeader()
	h := &evm.Header{Number: head.Number + 1, ParentHash: head.Hash, Timestamp: uint64(time.Now().Unix())}
	require.NoError(t, s.InsertHeader(h))
	return h
}

func dialInProc(t *testing.T, apis []rpc.API) *rpc.Client {
	surface, err := MergeAPIs(apis...)
	require.NoError(t, err)
	server, err := surface.NewServer()
	require.NoError(t, err)
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func TestJSONRPCNamespaces(t *testing.T) {
	b := newTestBackend(t)
	h1 := appendHeader(t, b)
	client := dialInProc(t, JSONRPCAPIs(b))

	var chainID hexutil.Big
	require.NoError(t, client.Call(&chainID, "eth_chainId"))
	require.Equal(t, uint64(1133), chainID.ToInt().Uint64())

	var number hexutil.Uint64
	require.NoError(t, client.Call(&number, "eth_blockNumber"))
	require.Equal(t, hexutil.Uint64(1), number)

	var header *RPCHeader
	require.NoError(t, client.Call(&header, "eth_getBlockByNumber", "latest", false))
	require.NotNil(t, header)
	require.Equal(t, h1.Hash, header.Hash)

	require.NoError(t, client.Call(&header, "eth_getBlockByNumber", "0x0", false))
	require.Equal(t, hexutil.Uint64(0), header.Number)

	header = nil
	require.NoError(t, client.Call(&header, "eth_getBlockByNumber", "0x64", false))
	require.Nil(t, header)

	var version string
	require.NoError(t, client.Call(&version, "net_version"))
	require.Equal(t, "1133", version)

	var clientVersion string
	require.NoError(t, client.Call(&clientVersion, "web3_clientVersion"))
	require.Equal(t, b.ClientVersion(), clientVersion)

	var hash hexutil.Bytes
	require.NoError(t, client.Call(&hash, "web3_sha3", hexutil.Bytes("metachain")))
	require.Equal(t, crypto.Keccak256([]byte("metachain")), []byte(hash))

	var syncing bool
	require.NoError(t, client.Call(&syncing, "eth_syncing"))
	require.False(t, syncing)
}

func TestDebugLogVerbosity(t *testing.T) {
	b := newTestBackend(t)
	client := dialInProc(t, JSONRPCAPIs(b))

	var prev int
	require.NoError(t, client.Call(&prev, "debug_logVerbosity"))
	defer client.Call(nil, "debug_setLogVerbosity", prev)

	var res map[string]interface{}
	require.NoError(t, client.Call(&res, "debug_setLogVerbosity", 5))
	require.Equal(t, "trce", res["verbosity"])

	err := client.Call(&res, "debug_setLogVerbosity", 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), ErrInvalidLogLevel.Error())
}

func TestPubSubNewHeads(t *testing.T) {
	b := newTestBackend(t)
	client := dialInProc(t, SubscriptionAPIs(b))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	heads := make(chan *RPCHeader, 4)
	sub, err := client.EthSubscribe(ctx, heads, "newHeads")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// the subscription goroutine registers on the feed asynchronously
	var h *evm.Header
	require.Eventually(t, func() bool {
		h = appendHeader(t, b)
		select {
		case got := <-heads:
			return got.Number >= hexutil.Uint64(1)
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	require.NotNil(t, h)
}
