package reactor_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	reactor "github.com/reglet-dev/reactor-sdk"
	"github.com/reglet-dev/reactor-sdk/affinity"
	"github.com/reglet-dev/reactor-sdk/config"
	"github.com/reglet-dev/reactor-sdk/engine"
	"github.com/reglet-dev/reactor-sdk/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSDK(t *testing.T, cfg config.Config, opts ...reactor.Option) (*reactor.SDK, *plugin.Binding) {
	t.Helper()
	binding := &plugin.Binding{}
	opts = append([]reactor.Option{
		reactor.WithLogger(plugin.NewTestLogger()),
		reactor.WithBinding(binding),
	}, opts...)
	sdk, err := reactor.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sdk.Close(ctx)
	})
	return sdk, binding
}

func TestSDK_LoadPage(t *testing.T) {
	ctx := context.Background()
	sdk, binding := newSDK(t, config.Default())

	_, err := sdk.LoadPage(ctx, reactor.PageRequest{URL: "app://index", InstanceID: "p1"})
	require.ErrorIs(t, err, reactor.ErrNoPlugin)
	_, ok := sdk.Manager().Instance("p1")
	assert.False(t, ok, "failed loads release the runtime assignment")

	mock := &plugin.MockPlugin{}
	require.True(t, binding.Bind(mock))

	p, err := sdk.LoadPage(ctx, reactor.PageRequest{URL: "app://index", Runtime: 7, InstanceID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "JSC", p.Engine.Name())
	assert.Equal(t, "app://index", p.URL)
	assert.Equal(t, engine.KindJSC, p.Instance.Kind)
	assert.Equal(t, "reactor", p.Handle.AppID())

	created := mock.Created("p1")
	require.NotNil(t, created)
	assert.Equal(t, plugin.RuntimeHandle(7), created.Runtime)

	_, err = sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
	assert.ErrorIs(t, err, reactor.ErrPageExists)

	anon, err := sdk.LoadPage(ctx, reactor.PageRequest{URL: "app://other"})
	require.NoError(t, err)
	assert.NotEmpty(t, anon.Handle.InstanceID())

	got, ok := sdk.Page("p1")
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestSDK_LoadPage_EngineSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("forced main process", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine.ForceMainProcess = true
		sdk, binding := newSDK(t, cfg)
		require.True(t, binding.Bind(&plugin.MockPlugin{}))

		p, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, engine.KindQJS, p.Instance.Kind)
		assert.True(t, sdk.Manager().IsForceInMainProcess("p1"))
	})

	t.Run("disabled default falls back to an enabled variant", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine.Switches = map[string]bool{"jsc": false, "qjs": true}
		sdk, binding := newSDK(t, cfg)
		require.True(t, binding.Bind(&plugin.MockPlugin{}))

		p, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, "QJS", p.Engine.Name())
		assert.Equal(t, engine.KindQJS, p.Instance.Kind)
	})

	t.Run("explicit engine parameter wins", func(t *testing.T) {
		sdk, binding := newSDK(t, config.Default())
		require.True(t, binding.Bind(&plugin.MockPlugin{}))

		p, err := sdk.LoadPage(ctx, reactor.PageRequest{
			InstanceID: "p1",
			Params:     map[string]string{engine.ParamEngineType: "QJS", engine.ParamPreInitMode: "true"},
		})
		require.NoError(t, err)
		assert.Equal(t, engine.KindQJS, p.Instance.Kind)
		assert.True(t, p.Instance.PreInitMode)
	})
}

func TestSDK_InvokeTimer(t *testing.T) {
	ctx := context.Background()
	sdk, binding := newSDK(t, config.Default())
	mock := &plugin.MockPlugin{}
	require.True(t, binding.Bind(mock))

	_, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
	require.NoError(t, err)

	res, err := sdk.Invoke(ctx, reactor.Call{
		InstanceID: "p1",
		Module:     "timer",
		Method:     "setTimeout",
		Args:       json.RawMessage(`["cb1", 1]`),
	})
	require.NoError(t, err)
	assert.False(t, res.Deferred)

	page := mock.Created("p1")
	assert.Eventually(t, func() bool {
		for _, c := range page.Calls() {
			if c.Op == "InvokeCallback" && c.Args[0] == "cb1" {
				return c.Context == affinity.Script
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSDK_UnloadPage(t *testing.T) {
	ctx := context.Background()
	sdk, binding := newSDK(t, config.Default())
	mock := &plugin.MockPlugin{}
	require.True(t, binding.Bind(mock))

	p, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
	require.NoError(t, err)
	_, err = sdk.Invoke(ctx, reactor.Call{InstanceID: "p1", Module: "timer", Method: "setInterval", Args: json.RawMessage(`["tick", 50]`)})
	require.NoError(t, err)
	require.Equal(t, 1, sdk.Dispatcher().Instances())

	require.NoError(t, sdk.UnloadPage(ctx, "p1"))
	assert.True(t, p.Handle.Unregistered())
	assert.Equal(t, 0, sdk.Dispatcher().Instances())
	_, ok := sdk.Manager().Instance("p1")
	assert.False(t, ok)

	assert.ErrorIs(t, sdk.UnloadPage(ctx, "p1"), reactor.ErrPageNotFound)

	page := mock.Created("p1")
	assert.Eventually(t, func() bool {
		ops := page.Ops()
		return len(ops) > 0 && ops[len(ops)-1] == "Unregister"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSDK_InvokeAfterUnload(t *testing.T) {
	ctx := context.Background()
	sdk, binding := newSDK(t, config.Default())
	require.True(t, binding.Bind(&plugin.MockPlugin{}))

	_, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
	require.NoError(t, err)
	require.NoError(t, sdk.UnloadPage(ctx, "p1"))

	interval := func(id string) error {
		_, err := sdk.Invoke(ctx, reactor.Call{
			InstanceID: id,
			Module:     "timer",
			Method:     "setInterval",
			Args:       json.RawMessage(`["tick", 10]`),
		})
		return err
	}
	assert.ErrorIs(t, interval("p1"), reactor.ErrPageNotFound)
	assert.ErrorIs(t, interval("never-loaded"), reactor.ErrPageNotFound)
	assert.Zero(t, sdk.Dispatcher().Instances())
}

func TestSDK_ApplyRemoteConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Engine.SnapshotPath = filepath.Join(t.TempDir(), "state", "engine.yaml")

	sdk, _ := newSDK(t, cfg)
	require.NoError(t, sdk.ApplyRemoteConfig(ctx, engine.Snapshot{
		Default:  "QJS",
		Switches: map[string]bool{"QJS": true},
	}))
	assert.Equal(t, "QJS", sdk.Selector().DefaultEngine().Name())
	assert.FileExists(t, cfg.Engine.SnapshotPath)

	restored, _ := newSDK(t, cfg)
	assert.Equal(t, "QJS", restored.Selector().DefaultEngine().Name())
	qjs, ok := restored.Selector().Lookup("QJS")
	require.True(t, ok)
	assert.True(t, qjs.On())

	t.Run("without a snapshot path", func(t *testing.T) {
		plain, _ := newSDK(t, config.Default())
		require.NoError(t, plain.ApplyRemoteConfig(ctx, engine.Snapshot{Default: "QJSBin"}))
		assert.Equal(t, "QJSBin", plain.Selector().DefaultEngine().Name())
	})
}

func TestSDK_Manifest(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("satisfied", func(t *testing.T) {
		cfg := config.Default()
		cfg.Manifest = write("ok.yaml", "version: 1.0.0\nmodules:\n  - name: timer\n    methods: [setTimeout, clearTimeout]\n")
		newSDK(t, cfg)
	})

	t.Run("missing capabilities", func(t *testing.T) {
		cfg := config.Default()
		cfg.Manifest = write("missing.json", `{"version":"1.0.0","modules":[{"name":"storage"},{"name":"timer","methods":["requestFrame"]}]}`)
		_, err := reactor.New(context.Background(), cfg, reactor.WithLogger(plugin.NewTestLogger()))
		require.ErrorIs(t, err, reactor.ErrMissingCapabilities)
		assert.ErrorContains(t, err, "storage, timer.requestFrame")
	})

	t.Run("unknown format", func(t *testing.T) {
		cfg := config.Default()
		cfg.Manifest = write("caps.toml", "")
		_, err := reactor.New(context.Background(), cfg, reactor.WithLogger(plugin.NewTestLogger()))
		assert.Error(t, err)
	})
}

func TestSDK_Close(t *testing.T) {
	ctx := context.Background()
	sdk, binding := newSDK(t, config.Default())
	mock := &plugin.MockPlugin{}
	require.True(t, binding.Bind(mock))

	_, err := sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p1"})
	require.NoError(t, err)

	require.NoError(t, sdk.Close(ctx))
	require.NoError(t, sdk.Close(ctx))
	assert.Contains(t, mock.Created("p1").Ops(), "Unregister")

	_, err = sdk.LoadPage(ctx, reactor.PageRequest{InstanceID: "p2"})
	assert.ErrorIs(t, err, reactor.ErrClosed)
	_, err = sdk.Invoke(ctx, reactor.Call{InstanceID: "p1", Module: "timer", Method: "setTimeout"})
	assert.ErrorIs(t, err, reactor.ErrClosed)
}
