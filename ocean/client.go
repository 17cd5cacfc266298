package ocean

//go:generate mockgen -source client.go -destination=mock/client_mock.go

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// Client is the companion node rpc the REST endpoints read chain state from.
type Client interface {
	GetBlockCount(ctx context.Context) (uint64, error)
	GetBestBlockHash(ctx context.Context) (string, error)
	Close()
}

type rpcClient struct {
	c *rpc.Client
}

// RPCURL is the address of the companion node rpc on port.
func RPCURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// NewClient returns a Client talking to url with basic auth credentials.
func NewClient(ctx context.Context, url, user, password string) (Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %v", url)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	c.SetHeader("Authorization", "Basic "+auth)
	return &rpcClient{c: c}, nil
}

func (rc *rpcClient) GetBlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := rc.c.CallContext(ctx, &count, "getblockcount"); err != nil {
		return 0, errors.Wrap(err, "getblockcount")
	}
	return count, nil
}

func (rc *rpcClient) GetBestBlockHash(ctx context.Context) (string, error) {
	var hash string
	if err := rc.c.CallContext(ctx, &hash, "getbestblockhash"); err != nil {
		return "", errors.Wrap(err, "getbestblockhash")
	}
	return hash, nil
}

func (rc *rpcClient) Close() {
	rc.c.Close()
}
