package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/harmony-one/metachain/api/server"
	"github.com/harmony-one/metachain/evm"
	nodeconfig "github.com/harmony-one/metachain/internal/configs/node"
	"github.com/harmony-one/metachain/internal/utils"
	"github.com/harmony-one/metachain/ocean"
	mock_ocean "github.com/harmony-one/metachain/ocean/mock"
	"github.com/harmony-one/metachain/rpc"
)

func init() {
	utils.SetLogWriter(io.Discard)
}

type portRecorder struct {
	mu    sync.Mutex
	ports map[server.Kind][]int
}

func (pr *portRecorder) ReportPort(kind server.Kind, port int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.ports == nil {
		pr.ports = make(map[server.Kind][]int)
	}
	pr.ports[kind] = append(pr.ports[kind], port)
}

func (pr *portRecorder) last(kind server.Kind) int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	ports := pr.ports[kind]
	if len(ports) == 0 {
		return 0
	}
	return ports[len(ports)-1]
}

func newTestProvider(t *testing.T) *nodeconfig.Static {
	return nodeconfig.NewStatic().
		SetDataDir(t.TempDir()).
		SetNetwork(nodeconfig.Regtest)
}

func newTestRegistry(t *testing.T, p nodeconfig.Provider, opts ...Option) (*Registry, *portRecorder) {
	pr := &portRecorder{}
	opts = append([]Option{WithProvider(p), WithPortReporter(pr), WithShutdownTimeout(5 * time.Second)}, opts...)
	r := NewRegistry(opts...)
	t.Cleanup(func() { r.Stop() })
	return r, pr
}

func requireRefused(t *testing.T, port int) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err == nil {
		conn.Close()
	}
	require.Error(t, err)
}

func TestStopNetwork_BeforeInit(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))

	require.NoError(t, r.StopNetwork())
	for _, kind := range server.Kinds {
		require.Empty(t, r.Handles(kind))
	}
	require.NoError(t, r.Stop())
	require.False(t, r.IsInitialized())
}

func TestStop_Twice(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	require.NoError(t, r.StopNetwork())
}

func TestInit_Idempotent(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))

	_, err := r.Runtime()
	require.True(t, errors.Is(err, ErrNotInitialized))
	require.True(t, errors.Is(r.InitJSONRPC("127.0.0.1:0"), ErrNotInitialized))

	require.NoError(t, r.Init())
	require.True(t, r.IsInitialized())
	rt, err := r.Runtime()
	require.NoError(t, err)
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))

	require.NoError(t, r.Init())
	rt2, err := r.Runtime()
	require.NoError(t, err)
	require.Same(t, rt, rt2)
	require.Len(t, r.Handles(server.JSONRPC), 1)
}

func TestInitJSONRPC_EndToEnd(t *testing.T) {
	r, pr := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))

	port := pr.last(server.JSONRPC)
	require.Greater(t, port, 0)
	handles := r.Handles(server.JSONRPC)
	require.Len(t, handles, 1)
	require.Equal(t, port, int(handles[0].LocalAddr().Port()))

	client, err := gethrpc.Dial(fmt.Sprintf("http://127.0.0.1:%d", port))
	require.NoError(t, err)
	defer client.Close()

	var version string
	require.NoError(t, client.Call(&version, "net_version"))
	require.Equal(t, fmt.Sprint(nodeconfig.Regtest.ChainID()), version)

	require.NoError(t, r.StopNetwork())
	require.Empty(t, r.Handles(server.JSONRPC))
	requireRefused(t, port)

	// the runtime survives a network stop
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))
	require.Len(t, r.Handles(server.JSONRPC), 1)
}

func TestInitJSONRPC_Accumulates(t *testing.T) {
	r, pr := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())

	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))
	first := pr.last(server.JSONRPC)
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))
	second := pr.last(server.JSONRPC)

	require.NotEqual(t, first, second)
	require.Len(t, r.Handles(server.JSONRPC), 2)

	require.NoError(t, r.StopNetwork())
	requireRefused(t, first)
	requireRefused(t, second)
}

func TestInitJSONRPC_Failures(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())

	err := r.InitJSONRPC("localhost")
	require.True(t, errors.Is(err, server.ErrInvalidAddress))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	err = r.InitJSONRPC(ln.Addr().String())
	require.True(t, errors.Is(err, server.ErrBind))

	require.Empty(t, r.Handles(server.JSONRPC))

	// other kinds are not affected
	require.NoError(t, r.InitWebsocketSubscriptions("127.0.0.1:0"))
	require.Len(t, r.Handles(server.Websocket), 1)
}

func TestInitJSONRPC_DuplicateMethod(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t), WithJSONRPCAPIs(func(b rpc.Backend) []gethrpc.API {
		return append(rpc.JSONRPCAPIs(b), rpc.NewPublicNetAPI(b))
	}))
	require.NoError(t, r.Init())

	err := r.InitJSONRPC("127.0.0.1:0")
	require.True(t, errors.Is(err, rpc.ErrDuplicateMethodName))
	require.Empty(t, r.Handles(server.JSONRPC))
}

func TestInitWebsocketSubscriptions(t *testing.T) {
	r, pr := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())
	require.NoError(t, r.InitWebsocketSubscriptions("127.0.0.1:0"))
	port := pr.last(server.Websocket)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := gethrpc.DialWebsocket(ctx, fmt.Sprintf("ws://127.0.0.1:%d", port), "")
	require.NoError(t, err)
	defer client.Close()

	heads := make(chan *rpc.RPCHeader, 4)
	sub, err := client.EthSubscribe(ctx, heads, "newHeads")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	chain, err := r.EVM()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		head := chain.CurrentHeader()
		if err := chain.InsertHeader(&evm.Header{
			Number:     head.Number + 1,
			ParentHash: head.Hash,
			Timestamp:  uint64(time.Now().Unix()),
		}); err != nil {
			return false
		}
		select {
		case <-heads:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	// only the pub/sub namespace is served over websocket
	var version string
	require.Error(t, client.Call(&version, "net_version"))
}

func TestCORSOrigin(t *testing.T) {
	p := newTestProvider(t).SetCORSAllowedOrigin("http://app.example")
	r, pr := newTestRegistry(t, p)
	require.NoError(t, r.Init())
	require.NoError(t, r.InitWebsocketSubscriptions("127.0.0.1:0"))
	require.NoError(t, r.InitJSONRPC("127.0.0.1:0"))

	url := fmt.Sprintf("ws://127.0.0.1:%d", pr.last(server.Websocket))
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://app.example"}})
	require.NoError(t, err)
	conn.Close()

	client, err := gethrpc.Dial(fmt.Sprintf("http://127.0.0.1:%d", pr.last(server.JSONRPC)))
	require.NoError(t, err)
	defer client.Close()
	client.SetHeader("Origin", "http://evil.example")
	var version string
	require.Error(t, client.Call(&version, "net_version"))

	client.SetHeader("Origin", "http://app.example")
	require.NoError(t, client.Call(&version, "net_version"))
}

func TestInitREST(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock_ocean.NewMockClient(ctrl)
	client.EXPECT().GetBlockCount(gomock.Any()).Return(uint64(7), nil)
	client.EXPECT().GetBestBlockHash(gomock.Any()).Return("beef", nil)
	client.EXPECT().Close().Times(1)

	p := newTestProvider(t).SetRPCAuth("user", "secret").SetRPCPort(18554)
	var gotURL, gotUser, gotPass string
	r, pr := newTestRegistry(t, p, WithClientFactory(
		func(ctx context.Context, url, user, password string) (ocean.Client, error) {
			gotURL, gotUser, gotPass = url, user, password
			return client, nil
		}))
	require.NoError(t, r.Init())
	require.NoError(t, r.InitREST("127.0.0.1:0"))
	require.Equal(t, "http://127.0.0.1:18554", gotURL)
	require.Equal(t, "user", gotUser)
	require.Equal(t, "secret", gotPass)

	port := pr.last(server.REST)
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v0/regtest/stats", port))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, r.StopNetwork())
	requireRefused(t, port)
}

func TestInitREST_AuthUnavailable(t *testing.T) {
	r, pr := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())

	err := r.InitREST("127.0.0.1:0")
	require.True(t, errors.Is(err, ErrAuthUnavailable))
	require.Empty(t, r.Handles(server.REST))

	port := pr.last(server.REST)
	require.Greater(t, port, 0)
	requireRefused(t, port)
}

func TestInitREST_CookieAuth(t *testing.T) {
	p := newTestProvider(t)
	require.NoError(t, os.WriteFile(filepath.Join(p.DataDir(), ".cookie"), []byte("__cookie__:pass"), 0600))

	var gotUser string
	ctrl := gomock.NewController(t)
	client := mock_ocean.NewMockClient(ctrl)
	client.EXPECT().Close().AnyTimes()
	r, _ := newTestRegistry(t, p, WithClientFactory(
		func(ctx context.Context, url, user, password string) (ocean.Client, error) {
			gotUser = user
			return client, nil
		}))
	require.NoError(t, r.Init())
	require.NoError(t, r.InitRESTContext(context.Background(), "127.0.0.1:0"))
	require.Equal(t, "__cookie__", gotUser)
	require.Len(t, r.Handles(server.REST), 1)
}

func TestInit_AfterStop(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())
	require.NoError(t, r.Stop())

	require.NoError(t, r.Init())
	require.True(t, errors.Is(r.InitJSONRPC("127.0.0.1:0"), ErrStopped))
	require.True(t, errors.Is(r.InitWebsocketSubscriptions("127.0.0.1:0"), ErrStopped))
	require.True(t, errors.Is(r.InitREST("127.0.0.1:0"), ErrStopped))
}

func TestInit_Concurrent(t *testing.T) {
	const n = 10

	ctrl := gomock.NewController(t)
	client := mock_ocean.NewMockClient(ctrl)
	client.EXPECT().Close().Times(n)

	p := newTestProvider(t).SetRPCAuth("user", "secret")
	r, pr := newTestRegistry(t, p, WithClientFactory(
		func(ctx context.Context, url, user, password string) (ocean.Client, error) {
			return client, nil
		}))
	require.NoError(t, r.Init())

	inits := map[server.Kind]func(string) error{
		server.JSONRPC:   r.InitJSONRPC,
		server.Websocket: r.InitWebsocketSubscriptions,
		server.REST:      r.InitREST,
	}
	var (
		wg   sync.WaitGroup
		errC = make(chan error, n*len(inits))
	)
	for i := 0; i < n; i++ {
		for _, initFn := range inits {
			wg.Add(1)
			go func(initFn func(string) error) {
				defer wg.Done()
				errC <- initFn("127.0.0.1:0")
			}(initFn)
		}
	}
	wg.Wait()
	close(errC)
	for err := range errC {
		require.NoError(t, err)
	}
	for _, kind := range server.Kinds {
		require.Len(t, r.Handles(kind), n, kind.String())
		pr.mu.Lock()
		require.Len(t, pr.ports[kind], n, kind.String())
		pr.mu.Unlock()
	}
	require.NoError(t, r.StopNetwork())
	for _, kind := range server.Kinds {
		require.Empty(t, r.Handles(kind))
	}
}

func TestStop_RacesInit(t *testing.T) {
	const n = 10

	r, _ := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// either served and then stopped, or refused once the registry stopped
			r.InitJSONRPC("127.0.0.1:0")
		}()
	}
	close(start)
	require.NoError(t, r.Stop())
	wg.Wait()

	require.Empty(t, r.Handles(server.JSONRPC))
	require.True(t, errors.Is(r.InitJSONRPC("127.0.0.1:0"), ErrStopped))
}

func TestInitRESTContext_Cancelled(t *testing.T) {
	p := newTestProvider(t).SetRPCAuth("user", "secret")
	r, pr := newTestRegistry(t, p, WithClientFactory(
		func(ctx context.Context, url, user, password string) (ocean.Client, error) {
			t.Fatal("client created on a cancelled context")
			return nil, nil
		}))
	require.NoError(t, r.Init())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.InitRESTContext(ctx, "127.0.0.1:0")
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, r.Handles(server.REST))
	require.Equal(t, 0, pr.last(server.REST))
}

func TestInit_RuntimeShutDown(t *testing.T) {
	r, _ := newTestRegistry(t, newTestProvider(t))
	require.NoError(t, r.Init())

	rt, err := r.Runtime()
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(time.Second))

	require.True(t, errors.Is(r.InitJSONRPC("127.0.0.1:0"), ErrStopped))
	require.True(t, errors.Is(r.InitREST("127.0.0.1:0"), ErrStopped))
}

func TestWipeStorage(t *testing.T) {
	p := newTestProvider(t)
	r, _ := newTestRegistry(t, p)

	// nothing to wipe yet
	require.NoError(t, r.WipeStorage())

	require.NoError(t, r.Init())
	require.DirExists(t, evm.DataPath(p.DataDir()))
	require.True(t, errors.Is(r.WipeStorage(), ErrRegistryRunning))

	require.NoError(t, r.Stop())
	require.NoError(t, r.WipeStorage())
	require.NoDirExists(t, evm.DataPath(p.DataDir()))
}

func TestWipeEVMFolder_Missing(t *testing.T) {
	require.NoError(t, WipeEVMFolder(t.TempDir()))
	require.NoError(t, WipeEVMFolder(""))
}
