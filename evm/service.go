// Package evm holds the EVM head state the network services expose to clients.
//
// The service persists block headers in a leveldb database rooted at <datadir>/evm and
// publishes every new head on a feed that subscription servers listen to.
package evm

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/harmony-one/metachain/internal/utils"
)

const (
	// FolderName is the sub directory of the data dir holding the EVM state.
	FolderName = "evm"
	// Version of the service, reported by web3_clientVersion.
	Version = "v0.1.0"

	headerCacheLimit = 256
)

var (
	headerPrefix  = []byte("h")
	headHeaderKey = []byte("LastHeader")
)

// Errors of the evm service
var (
	ErrHeaderNotFound = errors.New("header not found")
	ErrNonContiguous  = errors.New("header does not extend current head")
	ErrClosed         = errors.New("evm service closed")
)

// Header is the minimal block header tracked by the service.
type Header struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
}

// ComputeHash returns the keccak256 of the rlp encoded header without its hash.
func (h *Header) ComputeHash() common.Hash {
	b, _ := rlp.EncodeToBytes([]interface{}{h.Number, h.ParentHash, h.Timestamp})
	return crypto.Keccak256Hash(b)
}

// Service serves the EVM head state.
type Service struct {
	db      *leveldb.DB
	path    string
	chainID *big.Int
	cache   *lru.Cache

	mu       sync.RWMutex
	head     *Header
	closed   bool
	headFeed event.Feed
	scope    event.SubscriptionScope
}

// DataPath returns the storage directory of the service for the given data dir.
func DataPath(dataDir string) string {
	return filepath.Join(dataDir, FolderName)
}

// New opens (or creates) the service storage under dataDir. An empty dataDir keeps the
// state in memory.
func New(dataDir string, chainID uint64) (*Service, error) {
	var (
		db   *leveldb.DB
		path string
		err  error
	)
	if dataDir == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		path = DataPath(dataDir)
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open evm storage at %q", path)
	}
	cache, _ := lru.New(headerCacheLimit)

	s := &Service{
		db:      db,
		path:    path,
		chainID: new(big.Int).SetUint64(chainID),
		cache:   cache,
	}
	if err := s.loadHead(); err != nil {
		db.Close()
		return nil, err
	}
	utils.Logger().Info().
		Str("path", path).
		Uint64("chainID", chainID).
		Uint64("head", s.head.Number).
		Msg("[EVM] service opened")
	return s, nil
}

func (s *Service) loadHead() error {
	enc, err := s.db.Get(headHeaderKey, nil)
	if err == leveldb.ErrNotFound {
		genesis := &Header{Number: 0, Timestamp: 0}
		genesis.ParentHash = common.BigToHash(s.chainID)
		genesis.Hash = genesis.ComputeHash()
		if err := s.writeHeader(genesis); err != nil {
			return err
		}
		s.head = genesis
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "cannot read head header")
	}
	if len(enc) != 8 {
		return errors.Errorf("corrupted head header key: %x", enc)
	}
	head, err := s.readHeader(binary.BigEndian.Uint64(enc))
	if err != nil {
		return err
	}
	s.head = head
	return nil
}

// Path returns the storage directory. Empty for in-memory services.
func (s *Service) Path() string {
	return s.path
}

// ChainID returns the EVM chain id.
func (s *Service) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// ClientVersion is the version string reported to clients.
func (s *Service) ClientVersion() string {
	return fmt.Sprintf("metachain/%s/%s-%s/%s", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// CurrentHeader returns the head of the chain.
func (s *Service) CurrentHeader() *Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := *s.head
	return &h
}

// BlockNumber returns the number of the head of the chain.
func (s *Service) BlockNumber() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head.Number
}

// HeaderByNumber returns the header at the given height.
func (s *Service) HeaderByNumber(number uint64) (*Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	h, err := s.readHeader(number)
	if err != nil {
		return nil, err
	}
	cpy := *h
	return &cpy, nil
}

// InsertHeader appends h on top of the current head and notifies subscribers.
// The hash of h is computed when not set.
func (s *Service) InsertHeader(h *Header) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if h.Number != s.head.Number+1 || h.ParentHash != s.head.Hash {
		s.mu.Unlock()
		return errors.Wrapf(ErrNonContiguous, "head %d, got %d", s.head.Number, h.Number)
	}
	if h.Hash == (common.Hash{}) {
		h.Hash = h.ComputeHash()
	}
	if err := s.writeHeader(h); err != nil {
		s.mu.Unlock()
		return err
	}
	cpy := *h
	s.head = &cpy
	s.mu.Unlock()

	ev := cpy
	s.headFeed.Send(&ev)
	return nil
}

// SubscribeNewHeads registers ch to receive every new head.
func (s *Service) SubscribeNewHeads(ch chan<- *Header) event.Subscription {
	return s.scope.Track(s.headFeed.Subscribe(ch))
}

// Close unsubscribes every listener and closes the storage. Safe to call twice.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.scope.Close()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "cannot close evm storage")
	}
	utils.Logger().Info().Str("path", s.path).Msg("[EVM] service closed")
	return nil
}

func (s *Service) writeHeader(h *Header) error {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		return errors.Wrap(err, "cannot encode header")
	}
	batch := new(leveldb.Batch)
	batch.Put(headerKey(h.Number), enc)
	batch.Put(headHeaderKey, encodeNumber(h.Number))
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "cannot write header %d", h.Number)
	}
	cpy := *h
	s.cache.Add(h.Number, &cpy)
	return nil
}

func (s *Service) readHeader(number uint64) (*Header, error) {
	if cached, ok := s.cache.Get(number); ok {
		return cached.(*Header), nil
	}
	enc, err := s.db.Get(headerKey(number), nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.Wrapf(ErrHeaderNotFound, "number %d", number)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read header %d", number)
	}
	h := new(Header)
	if err := rlp.DecodeBytes(enc, h); err != nil {
		return nil, errors.Wrapf(err, "cannot decode header %d", number)
	}
	s.cache.Add(number, h)
	return h, nil
}

func headerKey(number uint64) []byte {
	return append(append([]byte{}, headerPrefix...), encodeNumber(number)...)
}

func encodeNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}
