package rpc

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// PublicWeb3Service offers the web3 namespace
type PublicWeb3Service struct {
	b Backend
}

// NewPublicWeb3API creates a new web3 API instance.
func NewPublicWeb3API(b Backend) rpc.API {
	return rpc.API{
		Namespace: web3Namespace,
		Version:   APIVersion,
		Service:   &PublicWeb3Service{b},
		Public:    true,
	}
}

// ClientVersion returns the node client version
func (s *PublicWeb3Service) ClientVersion() string {
	timer := DoMetricRPCRequest(ClientVersion)
	defer DoRPCRequestDuration(ClientVersion, timer)

	return s.b.ClientVersion()
}

// Sha3 applies the keccak256 hash on the input
func (s *PublicWeb3Service) Sha3(input hexutil.Bytes) hexutil.Bytes {
	return crypto.Keccak256(input)
}
