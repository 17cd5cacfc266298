package ocean

import (
	"context"
	"fmt"

	"github.com/coinbase/rosetta-sdk-go/server"
	"github.com/coinbase/rosetta-sdk-go/types"

	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
)

const (
	// Blockchain is the rosetta blockchain name
	Blockchain = "DeFiChain-EVM"
	// RosettaVersion implemented by the network endpoints
	RosettaVersion = "1.4.10"
)

var (
	// OperationTypes ..
	OperationTypes = []string{"Transfer"}

	// SuccessOperationStatus ..
	SuccessOperationStatus = &types.OperationStatus{
		Status:     "success",
		Successful: true,
	}

	// CatchAllError ..
	CatchAllError = types.Error{
		Code:      0,
		Message:   "catch all error",
		Retriable: false,
	}

	// InvalidNetworkError ..
	InvalidNetworkError = types.Error{
		Code:      1,
		Message:   "invalid network error",
		Retriable: false,
	}

	// BlockNotFoundError ..
	BlockNotFoundError = types.Error{
		Code:      2,
		Message:   "block not found error",
		Retriable: true,
	}
)

// NewError returns a copy of rosettaError with details.
func NewError(rosettaError types.Error, details map[string]interface{}) *types.Error {
	newError := rosettaError
	newError.Details = details
	return &newError
}

// NetworkIdentifier of network
func NetworkIdentifier(network nodeconfig.NetworkType) *types.NetworkIdentifier {
	return &types.NetworkIdentifier{
		Blockchain: Blockchain,
		Network:    string(network),
	}
}

// NetworkAPI implements the server.NetworkAPIServicer interface.
type NetworkAPI struct {
	chain   Chain
	network nodeconfig.NetworkType
}

// NewNetworkAPI creates a new instance of a NetworkAPI.
func NewNetworkAPI(chain Chain, network nodeconfig.NetworkType) server.NetworkAPIServicer {
	return &NetworkAPI{
		chain:   chain,
		network: network,
	}
}

// NetworkList implements the /network/list endpoint
func (s *NetworkAPI) NetworkList(
	ctx context.Context, request *types.MetadataRequest,
) (*types.NetworkListResponse, *types.Error) {
	return &types.NetworkListResponse{
		NetworkIdentifiers: []*types.NetworkIdentifier{
			NetworkIdentifier(s.network),
		},
	}, nil
}

// NetworkStatus implements the /network/status endpoint
func (s *NetworkAPI) NetworkStatus(
	ctx context.Context, request *types.NetworkRequest,
) (*types.NetworkStatusResponse, *types.Error) {
	if err := s.assertValidNetworkIdentifier(request.NetworkIdentifier); err != nil {
		return nil, err
	}

	current := s.chain.CurrentHeader()
	genesis, err := s.chain.HeaderByNumber(0)
	if err != nil {
		return nil, NewError(BlockNotFoundError, map[string]interface{}{
			"message": fmt.Sprintf("unable to get genesis header: %v", err.Error()),
		})
	}

	currentIndex := int64(current.Number)
	stage := "synced"
	synced := true
	return &types.NetworkStatusResponse{
		CurrentBlockIdentifier: &types.BlockIdentifier{
			Index: currentIndex,
			Hash:  current.Hash.Hex(),
		},
		CurrentBlockTimestamp: int64(current.Timestamp) * 1e3, // Timestamp must be in ms.
		GenesisBlockIdentifier: &types.BlockIdentifier{
			Index: int64(genesis.Number),
			Hash:  genesis.Hash.Hex(),
		},
		Peers: []*types.Peer{},
		SyncStatus: &types.SyncStatus{
			CurrentIndex: &currentIndex,
			TargetIndex:  &currentIndex,
			Stage:        &stage,
			Synced:       &synced,
		},
	}, nil
}

// NetworkOptions implements the /network/options endpoint
func (s *NetworkAPI) NetworkOptions(
	ctx context.Context, request *types.NetworkRequest,
) (*types.NetworkOptionsResponse, *types.Error) {
	if err := s.assertValidNetworkIdentifier(request.NetworkIdentifier); err != nil {
		return nil, err
	}
	return &types.NetworkOptionsResponse{
		Version: &types.Version{
			RosettaVersion: RosettaVersion,
			NodeVersion:    s.chain.ClientVersion(),
		},
		Allow: &types.Allow{
			OperationStatuses: []*types.OperationStatus{SuccessOperationStatus},
			OperationTypes:    OperationTypes,
			Errors: []*types.Error{
				&CatchAllError,
				&InvalidNetworkError,
				&BlockNotFoundError,
			},
			HistoricalBalanceLookup: false,
		},
	}, nil
}

func (s *NetworkAPI) assertValidNetworkIdentifier(netID *types.NetworkIdentifier) *types.Error {
	if netID == nil || types.Hash(NetworkIdentifier(s.network)) != types.Hash(netID) {
		return &InvalidNetworkError
	}
	return nil
}
