// Package ocean serves the REST api of the node: chain stats read through the companion
// node rpc, the evm head, and the rosetta network endpoints.
package ocean

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/coinbase/rosetta-sdk-go/asserter"
	"github.com/coinbase/rosetta-sdk-go/server"
	"github.com/coinbase/rosetta-sdk-go/types"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/harmony-one/metachain/evm"
	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
	"github.com/harmony-one/metachain/internal/utils"
)

// LogTag is the tag found in the log for all REST logs
const LogTag = "[REST]"

// RosettaPrefix is the path the rosetta endpoints are mounted under.
const RosettaPrefix = "/rosetta"

// Chain is the evm state read by the REST endpoints.
type Chain interface {
	ChainID() *big.Int
	CurrentHeader() *evm.Header
	HeaderByNumber(number uint64) (*evm.Header, error)
	ClientVersion() string
}

type service struct {
	chain   Chain
	client  Client
	network nodeconfig.NetworkType
}

// NewRouter builds the REST handler for network.
func NewRouter(chain Chain, client Client, network nodeconfig.NetworkType) (http.Handler, error) {
	s := &service{chain: chain, client: client, network: network}

	rosetta, err := newRosettaRouter(chain, network)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	v0 := r.PathPrefix("/v0/{network}").Subrouter()
	v0.Use(s.networkMiddleware)
	v0.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	v0.HandleFunc("/stats", s.Stats).Methods(http.MethodGet)
	v0.HandleFunc("/evm/blocks/latest", s.LatestEVMBlock).Methods(http.MethodGet)
	v0.HandleFunc("/evm/blocks/{height:[0-9]+}", s.EVMBlock).Methods(http.MethodGet)
	r.PathPrefix(RosettaPrefix + "/").Handler(http.StripPrefix(RosettaPrefix, rosetta))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "unable to find "+r.URL.Path)
	})

	return recoverMiddleware(loggerMiddleware(r)), nil
}

func newRosettaRouter(chain Chain, network nodeconfig.NetworkType) (http.Handler, error) {
	serverAsserter, err := asserter.NewServer(
		OperationTypes, false, []*types.NetworkIdentifier{NetworkIdentifier(network)}, nil, false, "",
	)
	if err != nil {
		return nil, errors.Wrap(err, "rosetta asserter")
	}
	return server.NewRouter(
		server.NewNetworkAPIController(NewNetworkAPI(chain, network), serverAsserter),
	), nil
}

// networkMiddleware rejects requests for a network other than the one served.
func (s *service) networkMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if network := mux.Vars(r)["network"]; network != string(s.network) {
			writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("network %v is not served", network))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Response is the envelope of every successful REST response.
type Response struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the envelope of every REST error.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError describes a failed request.
type APIError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// Stats of the chain
type Stats struct {
	Count StatsCount `json:"count"`
	Best  string     `json:"bestblockhash"`
	EVM   EVMStats   `json:"evm"`
}

// StatsCount ..
type StatsCount struct {
	Blocks uint64 `json:"blocks"`
}

// EVMStats ..
type EVMStats struct {
	ChainID     string `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Block is an evm block header as served over REST.
type Block struct {
	Number     uint64 `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
	Timestamp  uint64 `json:"timestamp"`
}

func newBlock(h *evm.Header) Block {
	return Block{
		Number:     h.Number,
		Hash:       h.Hash.Hex(),
		ParentHash: h.ParentHash.Hex(),
		Timestamp:  h.Timestamp,
	}
}

// Health ..
func (s *service) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: map[string]string{
		"status":  "ok",
		"version": s.chain.ClientVersion(),
	}})
}

// Stats reads the block count from the companion node.
func (s *service) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := s.client.GetBlockCount(r.Context())
	if err != nil {
		utils.Logger().Warn().Err(err).Msg(LogTag + " stats: companion rpc failed")
		writeError(w, http.StatusBadGateway, "BadGateway", err.Error())
		return
	}
	best, err := s.client.GetBestBlockHash(r.Context())
	if err != nil {
		utils.Logger().Warn().Err(err).Msg(LogTag + " stats: companion rpc failed")
		writeError(w, http.StatusBadGateway, "BadGateway", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: Stats{
		Count: StatsCount{Blocks: count},
		Best:  best,
		EVM: EVMStats{
			ChainID:     s.chain.ChainID().String(),
			BlockNumber: s.chain.CurrentHeader().Number,
		},
	}})
}

// LatestEVMBlock ..
func (s *service) LatestEVMBlock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Data: newBlock(s.chain.CurrentHeader())})
}

// EVMBlock ..
func (s *service) EVMBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	h, err := s.chain.HeaderByNumber(height)
	if errors.Is(err, evm.ErrHeaderNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("block %d not found", height))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: newBlock(h)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger().Warn().Err(err).Msg(LogTag + " failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, ErrorResponse{Error: APIError{
		Code:    status,
		Type:    typ,
		Message: msg,
		At:      time.Now().UnixMilli(),
	}})
}

func recoverMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				var err error
				switch t := rec.(type) {
				case string:
					err = errors.New(t)
				case error:
					err = t
				default:
					err = errors.New("unknown error")
				}
				utils.Logger().Error().Err(err).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg(LogTag + " panic")
				writeError(w, http.StatusInternalServerError, "Internal", err.Error())
			}
		}()
		h.ServeHTTP(w, r)
	})
}

func loggerMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		utils.Logger().Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("took", time.Since(start)).
			Msg(LogTag)
	})
}
