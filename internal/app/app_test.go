package app

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/cmigrate/internal/config"
	"github.com/BartekS5/cmigrate/internal/etl"
	"github.com/BartekS5/cmigrate/internal/keymap"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/rpc"
	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/internal/source/remote"
	"github.com/BartekS5/cmigrate/pkg/database"
	"github.com/BartekS5/cmigrate/pkg/models"
	"github.com/BartekS5/cmigrate/pkg/store"
)

type fakeClient struct {
	rows    []database.Row
	queries []string
}

func (c *fakeClient) Query(_ context.Context, query string, _ ...interface{}) ([]database.Row, error) {
	c.queries = append(c.queries, query)
	return c.rows, nil
}

type fakeLoader struct {
	inserted []etl.Document
	updated  []string
}

func (l *fakeLoader) Insert(_ context.Context, doc etl.Document) (string, error) {
	l.inserted = append(l.inserted, doc)
	return fmt.Sprintf("doc-%d", len(l.inserted)), nil
}

func (l *fakeLoader) Update(_ context.Context, destKey string, _ etl.Document) error {
	l.updated = append(l.updated, destKey)
	return nil
}

func settings() *config.Config {
	return &config.Config{
		LegacySQLDriver: "postgres",
		LegacySQLDSN:    "postgres://legacy",
		MongoConnString: "mongodb://localhost",
		MongoDatabase:   "cmigrate",
		RPCEndpoint:     "http://legacy/xmlrpc.php",
	}
}

func postsDef() models.TypeDefinition {
	return models.TypeDefinition{
		Key: "posts",
		Source: models.SourceDefinition{Kind: SourceQuery, Options: map[string]interface{}{
			"table":  "node",
			"fields": []interface{}{map[string]interface{}{"name": "title", "type": "column", "column": "title"}},
		}},
		Map:         models.MapDefinition{Kind: MapBlob, Name: "posts_map"},
		Destination: models.DestinationDefinition{Kind: DestMongo, Collection: "posts"},
		Fields:      []models.FieldConfig{{Source: "title", Dest: "title", Type: "string"}},
		Required:    []string{"title"},
	}
}

// recordingCaller answers every call with an empty response.
type recordingCaller struct {
	names []string
}

func (c *recordingCaller) Call(_ context.Context, name, _ string, _ ...rpc.Param) (*etree.Document, error) {
	c.names = append(c.names, name)
	doc := etree.NewDocument()
	doc.CreateElement("response")
	return doc, nil
}

type harness struct {
	app    *App
	client *fakeClient
	mem    *store.Memory
	loader *fakeLoader
	loads  int
	out    *bytes.Buffer
}

func newHarness(t *testing.T, cfg *config.Config, defs ...models.TypeDefinition) *harness {
	t.Helper()
	h := &harness{
		client: &fakeClient{rows: []database.Row{
			{"nid": int64(1), "title": []byte("First")},
			{"nid": int64(2), "title": "Second"},
		}},
		mem:    store.NewMemory(),
		loader: &fakeLoader{},
		out:    &bytes.Buffer{},
	}
	reporter := output.New(h.out, output.WithColor(false))
	h.app = New(context.Background(), cfg, &models.Definitions{Types: defs}, reporter)
	h.app.legacyClient = func() (database.Client, error) { return h.client, nil }
	h.app.caller = func() (remote.Caller, error) { return nil, fmt.Errorf("no rpc in tests") }
	h.app.blobStore = func(models.TypeDefinition) (store.BlobStore, error) { return h.mem, nil }
	h.app.fieldStore = func(models.TypeDefinition, string) (store.RecordFieldStore, error) { return h.mem, nil }
	h.app.loader = func(models.TypeDefinition, string) (etl.Loader, error) {
		h.loads++
		return h.loader, nil
	}
	return h
}

func TestQueryTypeEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, settings(), postsDef())
	reg, err := h.app.Registry()
	require.NoError(t, err)
	o := orchestrator.New(reg, output.New(h.out, output.WithColor(false)))

	stats, err := o.Run(ctx, "posts", orchestrator.Options{})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Stats{Total: 2, Imported: 2}, stats)
	require.Len(t, h.loader.inserted, 2)
	assert.Equal(t, "First", h.loader.inserted[0]["title"])
	assert.Contains(t, h.client.queries[0], "FROM node base")

	// correlations were flushed, so a second run skips both records
	_, err = o.Run(ctx, "posts", orchestrator.Options{})
	require.NoError(t, err)
	assert.Len(t, h.loader.inserted, 2)

	stats, err = o.Run(ctx, "posts", orchestrator.Options{StatusOnly: true})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Stats{Total: 2, Imported: 2}, stats)
	assert.Equal(t, 2, h.loads)

	_, err = o.Run(ctx, "posts", orchestrator.Options{RunOptions: orchestrator.RunOptions{Update: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, h.loader.updated)
}

func TestTenantScopesBlobMap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, settings(), postsDef())
	reg, err := h.app.Registry()
	require.NoError(t, err)
	o := orchestrator.New(reg, output.Discard())

	_, err = o.Run(ctx, "posts", orchestrator.Options{Tenant: "5"})
	require.NoError(t, err)

	_, ok, err := h.mem.GetBlob(ctx, "tenant_5_posts_map")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = h.mem.GetBlob(ctx, "posts_map")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeferredMapIsAnnounced(t *testing.T) {
	h := newHarness(t, settings(), postsDef())
	_, err := h.app.Unit(postsDef(), orchestrator.Args{Key: "posts"}, nil, true)
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "key map posts_map is deferred")
	assert.Equal(t, 0, h.loads)
}

func TestUnitKeyField(t *testing.T) {
	h := newHarness(t, settings())
	unit, err := h.app.Unit(postsDef(), orchestrator.Args{Key: "posts"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "nid", unit.KeyField)

	def := postsDef()
	def.KeyField = "uuid"
	def.Map = models.MapDefinition{Kind: MapURLField, Name: "_legacy_url", CacheSize: 16, Preload: true}
	unit, err = h.app.Unit(def, orchestrator.Args{Key: "posts"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "uuid", unit.KeyField)
	assert.IsType(t, &keymap.FieldMap{}, unit.Map)
	assert.Nil(t, unit.Loader)
}

func TestFlushMode(t *testing.T) {
	immediate := keymap.Immediate
	tests := []struct {
		name     string
		override *keymap.FlushMode
		kind     string
		flush    string
		want     keymap.FlushMode
	}{
		{name: "blob default", kind: MapBlob, want: keymap.Deferred},
		{name: "field default", kind: MapField, want: keymap.Immediate},
		{name: "definition", kind: MapField, flush: "deferred", want: keymap.Deferred},
		{name: "env wins", override: &immediate, kind: MapBlob, flush: "deferred", want: keymap.Immediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := settings()
			cfg.FlushMode = tt.override
			a := New(context.Background(), cfg, &models.Definitions{}, nil)
			def := postsDef()
			def.Map.Kind = tt.kind
			def.Map.Flush = tt.flush
			got, err := a.FlushMode(def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryRequiresSettings(t *testing.T) {
	cfg := settings()
	cfg.LegacySQLDSN = ""
	cfg.MongoConnString = ""
	h := newHarness(t, cfg, postsDef())

	_, err := h.app.Registry()
	require.ErrorIs(t, err, config.ErrMissingSetting)
	assert.Contains(t, err.Error(), "type posts")
	assert.Contains(t, err.Error(), "LEGACY_SQL_DSN, MONGO_CONNECTION_STRING")
	assert.Empty(t, h.client.queries)
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	tests := map[string]func(*models.TypeDefinition){
		"source kind":     func(d *models.TypeDefinition) { d.Source.Kind = "ftp" },
		"map kind":        func(d *models.TypeDefinition) { d.Map.Kind = "redis" },
		"map name":        func(d *models.TypeDefinition) { d.Map.Name = "" },
		"flush mode":      func(d *models.TypeDefinition) { d.Map.Flush = "later" },
		"destination":     func(d *models.TypeDefinition) { d.Destination.Kind = "s3" },
		"collection":      func(d *models.TypeDefinition) { d.Destination.Collection = "" },
		"unknown option":  func(d *models.TypeDefinition) { d.Source.Options["tabel"] = "node" },
		"postgres no dsn": func(d *models.TypeDefinition) { d.Destination = models.DestinationDefinition{Kind: DestPostgres, Table: "posts"} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			def := postsDef()
			mutate(&def)
			h := newHarness(t, settings(), def)
			_, err := h.app.Registry()
			assert.Error(t, err)
		})
	}
}

func TestWithDefaultKeepsOriginal(t *testing.T) {
	raw := map[string]interface{}{"table": "node"}
	out := withDefault(raw, "dialect", "mysql")
	assert.Equal(t, "mysql", out["dialect"])
	assert.NotContains(t, raw, "dialect")
	assert.Equal(t, "sqlserver", withDefault(map[string]interface{}{"dialect": "sqlserver"}, "dialect", "mysql")["dialect"])
}

func TestExampleDefinitionsAreValid(t *testing.T) {
	defs, err := config.LoadDefinitions("../../configs/definitions.json")
	require.NoError(t, err)
	require.NotEmpty(t, defs.Types)

	cfg := settings()
	cfg.DestPGDSN = "postgres://dest"
	h := newHarness(t, cfg, defs.Types...)
	reg, err := h.app.Registry()
	require.NoError(t, err)
	assert.Len(t, reg.Types(), len(defs.Types))
}

func TestRemoteSourcesGetOwnCacheNames(t *testing.T) {
	def := postsDef()
	def.Key = "stories"
	def.Source = models.SourceDefinition{Kind: SourceRemote, Options: map[string]interface{}{
		"root":         "0",
		"folderMethod": "folder.children",
		"listMethod":   "folder.items",
		"fetches": []interface{}{map[string]interface{}{
			"name": "content", "method": "content.get",
			"fields": []interface{}{map[string]interface{}{"name": "title", "kind": "text", "path": "title"}},
		}},
	}}
	h := newHarness(t, settings())
	caller := &recordingCaller{}
	h.app.caller = func() (remote.Caller, error) { return caller, nil }

	unit, err := h.app.Unit(def, orchestrator.Args{Key: "stories"}, nil, true)
	require.NoError(t, err)
	_, err = unit.Source.Init(context.Background(), source.Window{})
	require.NoError(t, err)
	require.NotEmpty(t, caller.names)
	for _, name := range caller.names {
		assert.True(t, strings.HasPrefix(name, "stories_"), name)
	}
}

func TestPostgresFieldStoreIsScopedToTable(t *testing.T) {
	cfg := settings()
	cfg.DestPGDSN = "postgres://dest"
	a := New(context.Background(), cfg, &models.Definitions{}, nil)
	// sql.Open does not connect
	db, err := sql.Open("pgx", cfg.DestPGDSN)
	require.NoError(t, err)
	a.dest = db
	defer a.Close()

	def := postsDef()
	def.Destination = models.DestinationDefinition{Kind: DestPostgres, Table: "posts"}
	for tenant, want := range map[string]string{"": "posts", "5": keymap.TenantKey("5", "posts")} {
		s, err := a.openFieldStore(def, tenant)
		require.NoError(t, err)
		require.IsType(t, &store.Postgres{}, s)
		assert.Equal(t, want, s.(*store.Postgres).Scope())
	}
}
