package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/harmony-one/metachain/evm"
	"github.com/harmony-one/metachain/internal/utils"
)

const newHeadsBuffer = 16

// PublicPubSubService offers the eth_subscribe notifications
type PublicPubSubService struct {
	b Backend
}

// NewPublicPubSubAPI creates the subscription API
func NewPublicPubSubAPI(b Backend) rpc.API {
	return rpc.API{
		Namespace: ethNamespace,
		Version:   APIVersion,
		Service:   &PublicPubSubService{b},
		Public:    true,
	}
}

// NewHeads send a notification each time a new header is appended to the chain.
func (s *PublicPubSubService) NewHeads(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	DoMetricRPCRequest(NewHeads)
	rpcSub := notifier.CreateSubscription()

	go func() {
		headers := make(chan *evm.Header, newHeadsBuffer)
		headersSub := s.b.SubscribeNewHeads(headers)
		defer headersSub.Unsubscribe()

		for {
			select {
			case h := <-headers:
				if err := notifier.Notify(rpcSub.ID, NewRPCHeader(h)); err != nil {
					utils.Logger().Debug().Err(err).Str("sub", string(rpcSub.ID)).
						Msg(LogTag + " newHeads notify failed")
				}
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			case <-headersSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}
