package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/harmony-one/metachain/evm"
)

const (
	// APIVersion of the namespaces served by this package
	APIVersion = "1.0"
	// LogTag is the tag found in the log for all RPC logs
	LogTag = "[RPC]"

	ethNamespace   = "eth"
	debugNamespace = "debug"
	netNamespace   = "net"
	web3Namespace  = "web3"
)

// Backend is the domain service the namespaces read from. It is shared by every
// handler of every server.
type Backend interface {
	ChainID() *big.Int
	BlockNumber() uint64
	CurrentHeader() *evm.Header
	HeaderByNumber(number uint64) (*evm.Header, error)
	SubscribeNewHeads(ch chan<- *evm.Header) event.Subscription
	ClientVersion() string
}

// JSONRPCAPIs returns the namespaces of the JSON-RPC server.
func JSONRPCAPIs(b Backend) []rpc.API {
	return []rpc.API{
		NewPublicEthAPI(b),
		NewPrivateDebugAPI(b),
		NewPublicNetAPI(b),
		NewPublicWeb3API(b),
	}
}

// SubscriptionAPIs returns the namespaces of the websocket subscription server.
func SubscriptionAPIs(b Backend) []rpc.API {
	return []rpc.API{
		NewPublicPubSubAPI(b),
	}
}
