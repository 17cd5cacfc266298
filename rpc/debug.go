package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/harmony-one/metachain/internal/utils"
)

// ErrInvalidLogLevel when invalid log level is provided
var ErrInvalidLogLevel = errors.New("invalid log level")

// PrivateDebugService Internal JSON RPC for debugging purpose
type PrivateDebugService struct {
	b Backend
}

// NewPrivateDebugAPI creates a new API for the RPC interface
func NewPrivateDebugAPI(b Backend) rpc.API {
	return rpc.API{
		Namespace: debugNamespace,
		Version:   APIVersion,
		Service:   &PrivateDebugService{b},
		Public:    false,
	}
}

// SetLogVerbosity Sets log verbosity on runtime
// Example usage:
//
//	curl -H "Content-Type: application/json" -d '{"method":"debug_setLogVerbosity","params":[0],"id":1}' http://localhost:20551
func (*PrivateDebugService) SetLogVerbosity(ctx context.Context, level int) (map[string]interface{}, error) {
	if level < int(log.LvlCrit) || level > int(log.LvlTrace) {
		return nil, ErrInvalidLogLevel
	}

	verbosity := log.Lvl(level)
	utils.SetLogVerbosity(verbosity)
	return map[string]interface{}{"verbosity": verbosity.String()}, nil
}

// LogVerbosity returns the current log verbosity
func (*PrivateDebugService) LogVerbosity() int {
	return int(utils.GetLogVerbosity())
}
