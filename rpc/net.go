package rpc

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// PublicNetService offers network related RPC methods
type PublicNetService struct {
	b Backend
}

// NewPublicNetAPI creates a new net API instance.
func NewPublicNetAPI(b Backend) rpc.API {
	return rpc.API{
		Namespace: netNamespace,
		Version:   APIVersion,
		Service:   &PublicNetService{b},
		Public:    true,
	}
}

// Version returns the network version, i.e. the chain id identifying which network we are using
func (s *PublicNetService) Version() string {
	timer := DoMetricRPCRequest(NetVersion)
	defer DoRPCRequestDuration(NetVersion, timer)

	return s.b.ChainID().String()
}

// Listening returns an indication if the node is listening for network connections.
func (s *PublicNetService) Listening() bool {
	return true // always listening
}

// PeerCount returns the number of connected peers. The EVM layer has no peers of its own.
func (s *PublicNetService) PeerCount() hexutil.Uint {
	timer := DoMetricRPCRequest(PeerCount)
	defer DoRPCRequestDuration(PeerCount, timer)

	return 0
}
