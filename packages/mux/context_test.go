package mux

import (
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/mock"
	"github.com/abdul-hamid-achik/hitmux/packages/response"
	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"github.com/abdul-hamid-achik/hitmux/packages/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeContext(t *testing.T) (*Context, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.NewFake()
	c := New(WithTransport(fake), WithYield(time.Millisecond))
	t.Cleanup(func() { _ = c.Close() })
	return c, fake
}

func urls(handles []transport.Handle) []string {
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = h.Info().EffectiveURL
	}
	return out
}

func TestExecuteReturnsHandlesInInputOrder(t *testing.T) {
	c, fake := newFakeContext(t)
	// Later requests complete first.
	fake.Responses["http://test/a"] = transporttest.Response{Steps: 3}
	fake.Responses["http://test/b"] = transporttest.Response{Steps: 2}
	fake.Responses["http://test/c"] = transporttest.Response{Steps: 1}

	handles, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/a"},
		{transport.OptURL: "http://test/b"},
		{transport.OptURL: "http://test/c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://test/a", "http://test/b", "http://test/c"}, urls(handles))
	assert.Equal(t, 0, fake.Registered())
	assert.Equal(t, 3, fake.Removes)
}

func TestExecuteMergesDefaults(t *testing.T) {
	c, fake := newFakeContext(t)
	c.SetDefaults(transport.Options{
		transport.OptUserAgent:      "hitmux",
		transport.OptReturnTransfer: true,
		transport.OptTimeout:        5 * time.Second,
	})

	_, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/a"},
		{transport.OptURL: "http://test/b", transport.OptUserAgent: "custom"},
	})
	require.NoError(t, err)

	built := fake.Handles()
	require.Len(t, built, 2)
	assert.Equal(t, "hitmux", built[0].Opts[transport.OptUserAgent])
	assert.Equal(t, "custom", built[1].Opts[transport.OptUserAgent])
	assert.Equal(t, true, built[1].Opts[transport.OptReturnTransfer])
	assert.Equal(t, 5*time.Second, built[0].Opts[transport.OptTimeout])
}

func TestSetDefaultsCopiesOptions(t *testing.T) {
	c, _ := newFakeContext(t)

	defaults := transport.Options{transport.OptUserAgent: "a"}
	c.SetDefaults(defaults)
	defaults[transport.OptUserAgent] = "b"

	got := c.Defaults()
	assert.Equal(t, "a", got[transport.OptUserAgent])

	got[transport.OptUserAgent] = "c"
	assert.Equal(t, "a", c.Defaults()[transport.OptUserAgent])
}

func TestExecuteBatchError(t *testing.T) {
	c, fake := newFakeContext(t)
	fake.Responses["http://test/down"] = transporttest.Response{Code: transport.CodeCouldntConnect}
	fake.Responses["http://test/slow"] = transporttest.Response{Code: transport.CodeOperationTimedout, Steps: 3}

	handles, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/down"},
		{transport.OptURL: "http://test/ok"},
		{transport.OptURL: "http://test/slow"},
	})
	require.Error(t, err)
	assert.Nil(t, handles)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, "0: Couldn't connect to server\n2: Timeout was reached", batchErr.Error())
	assert.Equal(t, []int{0, 2}, batchErr.Indices())

	reqErrs := batchErr.Errors()
	require.Len(t, reqErrs, 2)
	assert.Equal(t, transport.CodeCouldntConnect, reqErrs[0].Code)
	assert.Equal(t, transport.CodeOperationTimedout, reqErrs[1].Code)

	assert.Equal(t, 0, fake.Registered())
	for _, h := range fake.Handles() {
		assert.True(t, h.Closed())
	}
}

func TestExecuteMissingURLFailsThatRequest(t *testing.T) {
	c, _ := newFakeContext(t)

	_, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/ok"},
		{transport.OptUserAgent: "no url"},
	})

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, "1: URL using bad/illegal format or missing URL", err.Error())
}

func TestExecuteAbortsOnPerformFailure(t *testing.T) {
	c, fake := newFakeContext(t)
	boom := errors.New("boom")
	fake.PerformErr = boom
	fake.FailPerformAfter = 1
	fake.Responses["http://test/slow"] = transporttest.Response{Steps: 5}

	handles, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/slow"},
		{transport.OptURL: "http://test/slow"},
	})
	assert.Nil(t, handles)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "perform", fatal.Op)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, fake.Registered())
	assert.Equal(t, 2, fake.Removes)
	for _, h := range fake.Handles() {
		assert.True(t, h.Closed())
	}
}

func TestExecuteRemovesPartiallyRegisteredHandles(t *testing.T) {
	c, fake := newFakeContext(t)
	fake.AddErr = errors.New("no room")
	fake.FailAddAt = 1

	_, err := c.Execute([]transport.Options{
		{transport.OptURL: "http://test/a"},
		{transport.OptURL: "http://test/b"},
		{transport.OptURL: "http://test/c"},
	})

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "register", fatal.Op)
	assert.Equal(t, 1, fake.Removes)
	assert.Equal(t, 0, fake.Registered())
	assert.Equal(t, 0, fake.Performs)
}

func TestExecuteYieldsWhenWaitFails(t *testing.T) {
	c, fake := newFakeContext(t)
	fake.WaitErr = errors.New("poll failed")
	fake.WaitErrTimes = 2
	fake.Responses["http://test/a"] = transporttest.Response{Steps: 4}

	handles, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, 3, fake.Waits)
}

func TestExecuteEmptyBatch(t *testing.T) {
	c, fake := newFakeContext(t)

	_, err := c.Execute(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.Equal(t, 0, fake.Performs)
}

func TestExecuteReusesContext(t *testing.T) {
	c, fake := newFakeContext(t)
	fake.Responses["http://test/down"] = transporttest.Response{Code: transport.CodeCouldntResolveHost}

	_, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/down"}})
	require.Error(t, err)

	handles, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
	require.NoError(t, err)
	assert.Len(t, handles, 1)
}

type blockingTransport struct {
	*transporttest.Fake
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTransport) Wait(timeout time.Duration) (int, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Fake.Wait(timeout)
}

func TestExecuteRejectsOverlappingCalls(t *testing.T) {
	fake := transporttest.NewFake()
	fake.Responses["http://test/a"] = transporttest.Response{Steps: 2}
	bt := &blockingTransport{
		Fake:    fake,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(WithTransport(bt))
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
		done <- err
	}()

	<-bt.entered
	_, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
	assert.ErrorIs(t, err, ErrBusy)

	close(bt.release)
	assert.NoError(t, <-done)
}

func TestSetEngineOptions(t *testing.T) {
	c, fake := newFakeContext(t)

	err := c.SetEngineOptions(map[transport.MultiOption]any{
		transport.MultiPipelining:         transport.PipeMultiplex,
		transport.MultiMaxHostConnections: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, transport.PipeMultiplex, fake.EngineOptions[transport.MultiPipelining])
	assert.Equal(t, 4, fake.EngineOptions[transport.MultiMaxHostConnections])
}

func TestConfigurationErrors(t *testing.T) {
	t.Run("engine option", func(t *testing.T) {
		c, fake := newFakeContext(t)
		fake.RejectOption = transport.MultiPipelining

		err := c.SetEngineOptions(map[transport.MultiOption]any{transport.MultiPipelining: 99})
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		var optErr *transport.OptionError
		assert.True(t, errors.As(err, &optErr))
		assert.Equal(t, "PIPELINING", optErr.Option)
	})

	t.Run("share", func(t *testing.T) {
		c, fake := newFakeContext(t)
		fake.ShareErr = errors.New("no share")

		_, err := c.Share(transport.ShareSettings{transport.LockDataCookie: transport.ShareLock})
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("request", func(t *testing.T) {
		c, fake := newFakeContext(t)
		fake.NewHandleErr = errors.New("bad option")

		_, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "build request 0", cfgErr.Op)
		assert.Equal(t, 0, fake.Adds)
	})
}

func TestShareIsPassedThrough(t *testing.T) {
	c, _ := newFakeContext(t)

	share, err := c.Share(transport.ShareSettings{transport.LockDataCookie: transport.ShareLock})
	require.NoError(t, err)
	fs, ok := share.(*transporttest.Share)
	require.True(t, ok)
	assert.Equal(t, transport.ShareLock, fs.Settings[transport.LockDataCookie])
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := transporttest.NewFake()
	c := New(WithTransport(fake))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, fake.Closes)

	_, err := c.Execute([]transport.Options{{transport.OptURL: "http://test/a"}})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SetEngineOptions(nil), ErrClosed)
	_, err = c.Share(nil)
	assert.ErrorIs(t, err, ErrClosed)

	var nilCtx *Context
	assert.NoError(t, nilCtx.Close())
}

func TestExecuteRunsRequestsConcurrently(t *testing.T) {
	srv := httptest.NewServer(mock.NewServer().Handler())
	defer srv.Close()

	c := New()
	defer c.Close()
	c.SetDefaults(transport.Options{
		transport.OptReturnTransfer: true,
		transport.OptHeader:         true,
	})

	batch := make([]transport.Options, 5)
	for i := range batch {
		batch[i] = transport.Options{transport.OptURL: srv.URL + "/sleep?ms=200"}
	}

	start := time.Now()
	handles, err := c.Execute(batch)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, handles, 5)
	assert.Less(t, elapsed, 500*time.Millisecond)

	for _, h := range handles {
		resp := response.FromHandle(0, h)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Nil(t, resp.Body)
		_ = h.Close()
	}
}

func TestExecuteReportsUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(mock.NewServer().Handler())
	addr := srv.URL
	srv.Close()

	c := New()
	defer c.Close()

	_, err := c.Execute([]transport.Options{
		{transport.OptURL: addr + "/"},
		{transport.OptURL: "ftp://example.com/file"},
	})

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, []int{0, 1}, batchErr.Indices())
	assert.Equal(t, transport.CodeCouldntConnect, batchErr.Errors()[0].Code)
	assert.Equal(t, transport.CodeUnsupportedProtocol, batchErr.Errors()[1].Code)
}
