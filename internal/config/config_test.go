package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/cmigrate/internal/keymap"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
)

func env(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(nil))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.LegacySQLDriver)
	assert.Equal(t, "cmigrate", cfg.MongoDatabase)
	assert.Equal(t, ".rpc-cache", cfg.RPCCacheDir)
	assert.Equal(t, 2*time.Second, cfg.FanOutDelay)
	assert.Equal(t, orchestrator.FanOutAbort, cfg.FanOutPolicy)
	assert.Nil(t, cfg.FlushMode)
}

func TestLoadParsesValues(t *testing.T) {
	cfg, err := load(env(map[string]string{
		EnvLegacySQLDriver: "postgres",
		EnvFlushMode:       "immediate",
		EnvFanOutDelay:     "0s",
		EnvFanOutPolicy:    "continue",
		EnvRPCEndpoint:     "http://legacy/xmlrpc.php",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.LegacySQLDriver)
	require.NotNil(t, cfg.FlushMode)
	assert.Equal(t, keymap.Immediate, *cfg.FlushMode)
	assert.Equal(t, time.Duration(0), cfg.FanOutDelay)
	assert.Equal(t, orchestrator.FanOutContinue, cfg.FanOutPolicy)
	assert.Equal(t, "http://legacy/xmlrpc.php", cfg.RPCEndpoint)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	for _, values := range []map[string]string{
		{EnvFlushMode: "sometimes"},
		{EnvFanOutDelay: "soon"},
		{EnvFanOutDelay: "-1s"},
		{EnvFanOutPolicy: "retry"},
	} {
		_, err := load(env(values))
		assert.Error(t, err, "%v", values)
	}
}

func TestRequire(t *testing.T) {
	cfg, err := load(env(map[string]string{EnvLegacySQLDSN: "user@/legacy"}))
	require.NoError(t, err)
	assert.NoError(t, cfg.Require(EnvLegacySQLDriver, EnvLegacySQLDSN))

	err = cfg.Require(EnvLegacySQLDSN, EnvMongoConn, EnvRPCEndpoint)
	require.ErrorIs(t, err, ErrMissingSetting)
	assert.Contains(t, err.Error(), "MONGO_CONNECTION_STRING, RPC_ENDPOINT")
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	good := write("good.json", `{
		"version": "1",
		"types": [
			{"key": "users", "keyField": "uid", "source": {"kind": "query", "options": {"table": "users", "primaryKey": "uid"}},
			 "map": {"kind": "blob", "name": "users_map"}, "destination": {"kind": "mongo", "collection": "users"}},
			{"key": "posts", "keyField": "nid", "source": {"kind": "remote"},
			 "map": {"kind": "field", "name": "_legacy_nid"}, "destination": {"kind": "postgres", "table": "posts"}}
		]
	}`)
	defs, err := LoadDefinitions(good)
	require.NoError(t, err)
	require.Len(t, defs.Types, 2)
	assert.Equal(t, "users", defs.Types[0].Key)
	assert.Equal(t, "users", defs.Types[0].Source.Options["table"])
	assert.Equal(t, "postgres", defs.Types[1].Destination.Kind)

	_, err = LoadDefinitions(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = LoadDefinitions(write("broken.json", `{"types": [`))
	assert.Error(t, err)

	_, err = LoadDefinitions(write("dup.json", `{"types": [{"key": "a", "source": {"kind": "query"}}, {"key": "a", "source": {"kind": "query"}}]}`))
	assert.ErrorContains(t, err, "duplicate type")

	_, err = LoadDefinitions(write("nokind.json", `{"types": [{"key": "a"}]}`))
	assert.ErrorContains(t, err, "no source kind")
}
