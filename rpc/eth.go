package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/harmony-one/metachain/evm"
)

// RPCHeader is the json form of a header
type RPCHeader struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

// NewRPCHeader ..
func NewRPCHeader(h *evm.Header) *RPCHeader {
	return &RPCHeader{
		Number:     hexutil.Uint64(h.Number),
		Hash:       h.Hash,
		ParentHash: h.ParentHash,
		Timestamp:  hexutil.Uint64(h.Timestamp),
	}
}

// PublicEthService provides an API to access the EVM head state.
// It offers only methods that operate on public data that is freely available to anyone.
type PublicEthService struct {
	b Backend
}

// NewPublicEthAPI creates a new API for the RPC interface
func NewPublicEthAPI(b Backend) rpc.API {
	return rpc.API{
		Namespace: ethNamespace,
		Version:   APIVersion,
		Service:   &PublicEthService{b},
		Public:    true,
	}
}

// ChainId returns the EVM chain id.
func (s *PublicEthService) ChainId() (*hexutil.Big, error) {
	timer := DoMetricRPCRequest(ChainID)
	defer DoRPCRequestDuration(ChainID, timer)

	return (*hexutil.Big)(s.b.ChainID()), nil
}

// BlockNumber returns the block number of the chain head.
func (s *PublicEthService) BlockNumber() hexutil.Uint64 {
	timer := DoMetricRPCRequest(BlockNumber)
	defer DoRPCRequestDuration(BlockNumber, timer)

	return hexutil.Uint64(s.b.BlockNumber())
}

// GetBlockByNumber returns the requested header. A missing block yields null.
// Transactions are not tracked, fullTx is accepted for compatibility.
func (s *PublicEthService) GetBlockByNumber(
	ctx context.Context, blockNum rpc.BlockNumber, fullTx bool,
) (*RPCHeader, error) {
	timer := DoMetricRPCRequest(GetBlockByNumber)
	defer DoRPCRequestDuration(GetBlockByNumber, timer)

	var number uint64
	switch blockNum {
	case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		number = s.b.BlockNumber()
	default:
		if blockNum < 0 {
			DoMetricRPCQueryInfo(GetBlockByNumber, FailedNumber)
			return nil, errors.Errorf("invalid block number %d", blockNum)
		}
		number = uint64(blockNum.Int64())
	}
	h, err := s.b.HeaderByNumber(number)
	if errors.Is(err, evm.ErrHeaderNotFound) {
		return nil, nil
	}
	if err != nil {
		DoMetricRPCQueryInfo(GetBlockByNumber, FailedNumber)
		return nil, err
	}
	return NewRPCHeader(h), nil
}

// Syncing returns false, the head state is fed by the host and never syncs on its own.
func (s *PublicEthService) Syncing(ctx context.Context) (interface{}, error) {
	return false, nil
}
