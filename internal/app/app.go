// Package app turns migration definitions and settings into registered
// migration types. Connections are opened the first time a unit needs them
// and shared by every unit of the process.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/cmigrate/internal/config"
	"github.com/BartekS5/cmigrate/internal/etl"
	"github.com/BartekS5/cmigrate/internal/keymap"
	"github.com/BartekS5/cmigrate/internal/orchestrator"
	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/rpc"
	"github.com/BartekS5/cmigrate/internal/source"
	"github.com/BartekS5/cmigrate/internal/source/collection"
	"github.com/BartekS5/cmigrate/internal/source/query"
	"github.com/BartekS5/cmigrate/internal/source/remote"
	"github.com/BartekS5/cmigrate/pkg/database"
	"github.com/BartekS5/cmigrate/pkg/logger"
	"github.com/BartekS5/cmigrate/pkg/models"
	"github.com/BartekS5/cmigrate/pkg/store"
)

// Source, map and destination kinds accepted in definitions.
const (
	SourceQuery      = "query"
	SourceRemote     = "remote"
	SourceCollection = "collection"

	MapBlob     = "blob"
	MapField    = "field"
	MapURLField = "url_field"

	DestMongo    = "mongo"
	DestPostgres = "postgres"
)

// BlobCollection holds blob maps when the destination is MongoDB.
const BlobCollection = "keymaps"

// App owns the connections of one process.
type App struct {
	ctx      context.Context
	cfg      *config.Config
	defs     *models.Definitions
	reporter *output.Reporter

	legacy    *sql.DB
	mongo     *mongo.Client
	dest      *sql.DB
	rpcClient *rpc.Client

	// replaced in tests
	legacyClient func() (database.Client, error)
	caller       func() (remote.Caller, error)
	blobStore    func(def models.TypeDefinition) (store.BlobStore, error)
	fieldStore   func(def models.TypeDefinition, tenant string) (store.RecordFieldStore, error)
	loader       func(def models.TypeDefinition, tenant string) (etl.Loader, error)
}

func New(ctx context.Context, cfg *config.Config, defs *models.Definitions, reporter *output.Reporter) *App {
	if reporter == nil {
		reporter = output.Discard()
	}
	a := &App{ctx: ctx, cfg: cfg, defs: defs, reporter: reporter}
	a.legacyClient = a.openLegacy
	a.caller = a.openRPC
	a.blobStore = a.openBlobStore
	a.fieldStore = a.openFieldStore
	a.loader = a.openLoader
	return a
}

// Registry validates every definition and registers it in file order.
// Missing settings and unknown kinds fail here, before anything is fetched.
func (a *App) Registry() (*orchestrator.Registry, error) {
	reg := orchestrator.NewRegistry()
	for _, def := range a.defs.Types {
		if err := a.check(def); err != nil {
			return nil, fmt.Errorf("type %s: %w", def.Key, err)
		}
		if err := reg.Register(def.Key, def.Title, a.factory(def)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (a *App) check(def models.TypeDefinition) error {
	var required []string
	switch def.Source.Kind {
	case SourceQuery:
		required = append(required, config.EnvLegacySQLDSN)
	case SourceRemote:
		required = append(required, config.EnvRPCEndpoint)
	case SourceCollection:
		required = append(required, config.EnvMongoConn)
	default:
		return fmt.Errorf("unknown source kind %q", def.Source.Kind)
	}
	switch def.Map.Kind {
	case MapBlob, MapField, MapURLField:
	default:
		return fmt.Errorf("unknown map kind %q", def.Map.Kind)
	}
	if def.Map.Name == "" {
		return fmt.Errorf("map name is required")
	}
	if def.Map.Flush != "" {
		if _, err := keymap.ParseFlushMode(def.Map.Flush); err != nil {
			return err
		}
	}
	switch def.Destination.Kind {
	case DestMongo:
		if def.Destination.Collection == "" {
			return fmt.Errorf("destination collection is required")
		}
		required = append(required, config.EnvMongoConn)
	case DestPostgres:
		if def.Destination.Table == "" {
			return fmt.Errorf("destination table is required")
		}
		required = append(required, config.EnvDestPGDSN)
	default:
		return fmt.Errorf("unknown destination kind %q", def.Destination.Kind)
	}
	if err := a.cfg.Require(required...); err != nil {
		return err
	}
	_, err := parseSource(def, a.cfg.LegacySQLDriver)
	return err
}

func (a *App) factory(def models.TypeDefinition) orchestrator.Factory {
	return func(args orchestrator.Args, reporter *output.Reporter, countsOnly bool) (orchestrator.Unit, error) {
		unit, err := a.Unit(def, args, reporter, countsOnly)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}
}

// Unit builds the copy unit for def. A countsOnly unit has no loader.
func (a *App) Unit(def models.TypeDefinition, args orchestrator.Args, reporter *output.Reporter, countsOnly bool) (*etl.CopyUnit, error) {
	if reporter == nil {
		reporter = a.reporter
	}
	spec, err := parseSource(def, a.cfg.LegacySQLDriver)
	if err != nil {
		return nil, err
	}
	src, err := a.openSource(def, spec, reporter)
	if err != nil {
		return nil, err
	}
	m, err := a.buildMap(def, args.Tenant, reporter)
	if err != nil {
		return nil, err
	}
	unit := &etl.CopyUnit{
		Key:         def.Key,
		KeyField:    def.KeyField,
		Source:      src,
		Map:         m,
		Transformer: etl.NewTransformer(def.Fields),
		Validator:   etl.NewValidator(def.Required),
		Reporter:    reporter,
	}
	if unit.KeyField == "" {
		unit.KeyField = spec.keyField()
	}
	if !countsOnly {
		if unit.Loader, err = a.loader(def, args.Tenant); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

// sourceSpec is the parsed source section of one definition.
type sourceSpec struct {
	kind       string
	query      query.Config
	remote     remote.Config
	collection collection.Config
}

// keyField is the record field the adapter keys records by.
func (s sourceSpec) keyField() string {
	switch s.kind {
	case SourceQuery:
		return s.query.PrimaryKey
	case SourceRemote:
		return s.remote.KeyField
	default:
		return s.collection.KeyField
	}
}

// parseSource validates the source options of def. Query sources without a
// dialect use the legacy driver.
func parseSource(def models.TypeDefinition, driver string) (sourceSpec, error) {
	spec := sourceSpec{kind: def.Source.Kind}
	var err error
	switch def.Source.Kind {
	case SourceQuery:
		spec.query, err = query.ConfigFromOptions(withDefault(def.Source.Options, "dialect", driver))
	case SourceRemote:
		spec.remote, err = remote.ConfigFromOptions(def.Source.Options)
	case SourceCollection:
		spec.collection, err = collection.ConfigFromOptions(def.Source.Options)
	default:
		return spec, fmt.Errorf("unknown source kind %q", def.Source.Kind)
	}
	if err != nil {
		return spec, fmt.Errorf("%s source: %w", def.Source.Kind, err)
	}
	return spec, nil
}

func (a *App) openSource(def models.TypeDefinition, spec sourceSpec, reporter *output.Reporter) (source.Source, error) {
	switch spec.kind {
	case SourceQuery:
		client, err := a.legacyClient()
		if err != nil {
			return nil, err
		}
		return query.New(client, spec.query, reporter)
	case SourceRemote:
		caller, err := a.caller()
		if err != nil {
			return nil, err
		}
		// every remote type shares one response cache
		return remote.New(caller, spec.remote,
			remote.WithReporter(reporter),
			remote.WithCacheNamespace(def.Key))
	default:
		db, err := a.mongoDatabase()
		if err != nil {
			return nil, err
		}
		return collection.New(db, spec.collection, reporter)
	}
}

func withDefault(raw map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}

// FlushMode resolves the flush mode of def. KEYMAP_FLUSH_MODE wins over the
// definition; without either, blob maps defer and field maps write through.
func (a *App) FlushMode(def models.TypeDefinition) (keymap.FlushMode, error) {
	if a.cfg.FlushMode != nil {
		return *a.cfg.FlushMode, nil
	}
	if def.Map.Flush != "" {
		return keymap.ParseFlushMode(def.Map.Flush)
	}
	if def.Map.Kind == MapBlob {
		return keymap.Deferred, nil
	}
	return keymap.Immediate, nil
}

func (a *App) buildMap(def models.TypeDefinition, tenant string, reporter *output.Reporter) (keymap.Map, error) {
	mode, err := a.FlushMode(def)
	if err != nil {
		return nil, err
	}
	if mode == keymap.Deferred {
		reporter.Warn("%s: key map %s is deferred; correlations reach storage only when the run ends", def.Key, def.Map.Name)
	}
	switch def.Map.Kind {
	case MapBlob:
		s, err := a.blobStore(def)
		if err != nil {
			return nil, err
		}
		return keymap.NewBlobMap(s, def.Map.Name, mode,
			keymap.WithPrefix(def.Map.Prefix), keymap.WithTenant(tenant)), nil
	case MapField, MapURLField:
		s, err := a.fieldStore(def, tenant)
		if err != nil {
			return nil, err
		}
		opts := []keymap.FieldOption{keymap.WithFieldPrefix(def.Map.Prefix)}
		if def.Map.CacheSize > 0 {
			opts = append(opts, keymap.WithIndexSize(def.Map.CacheSize))
		}
		if def.Map.Preload {
			opts = append(opts, keymap.WithPreload())
		}
		if def.Map.Kind == MapURLField {
			return keymap.NewURLFieldMap(s, def.Map.Name, mode, opts...), nil
		}
		return keymap.NewFieldMap(s, def.Map.Name, mode, opts...), nil
	default:
		return nil, fmt.Errorf("unknown map kind %q", def.Map.Kind)
	}
}

func (a *App) openLegacy() (database.Client, error) {
	if a.legacy == nil {
		db, err := database.ConnectSQL(a.ctx, a.cfg.LegacySQLDriver, a.cfg.LegacySQLDSN)
		if err != nil {
			return nil, err
		}
		a.legacy = db
	}
	return database.NewSQLClient(a.legacy), nil
}

func (a *App) openRPC() (remote.Caller, error) {
	if a.rpcClient == nil {
		cache, err := rpc.NewCache(a.cfg.RPCCacheDir)
		if err != nil {
			return nil, err
		}
		a.rpcClient = rpc.NewClient(a.cfg.RPCEndpoint,
			rpc.Credentials{Username: a.cfg.RPCUsername, Password: a.cfg.RPCPassword},
			rpc.WithCache(cache))
	}
	return a.rpcClient, nil
}

func (a *App) mongoDatabase() (*mongo.Database, error) {
	if a.mongo == nil {
		client, err := database.ConnectMongo(a.ctx, a.cfg.MongoConnString)
		if err != nil {
			return nil, err
		}
		a.mongo = client
	}
	return a.mongo.Database(a.cfg.MongoDatabase), nil
}

func (a *App) destSQL() (*sql.DB, error) {
	if a.dest == nil {
		db, err := database.ConnectSQL(a.ctx, DestPostgres, a.cfg.DestPGDSN)
		if err != nil {
			return nil, err
		}
		a.dest = db
	}
	return a.dest, nil
}

// Maps live next to the destination: in MongoDB for mongo destinations and
// in the Postgres key tables otherwise.
func (a *App) openBlobStore(def models.TypeDefinition) (store.BlobStore, error) {
	if def.Destination.Kind == DestPostgres {
		db, err := a.destSQL()
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(db), nil
	}
	db, err := a.mongoDatabase()
	if err != nil {
		return nil, err
	}
	return store.NewMongoBlobStore(db, BlobCollection), nil
}

func (a *App) openFieldStore(def models.TypeDefinition, tenant string) (store.RecordFieldStore, error) {
	if def.Destination.Kind == DestPostgres {
		db, err := a.destSQL()
		if err != nil {
			return nil, err
		}
		return store.NewPostgresFieldStore(db, keymap.TenantKey(tenant, def.Destination.Table)), nil
	}
	db, err := a.mongoDatabase()
	if err != nil {
		return nil, err
	}
	return store.NewMongoFieldStore(db, keymap.TenantKey(tenant, def.Destination.Collection)), nil
}

func (a *App) openLoader(def models.TypeDefinition, tenant string) (etl.Loader, error) {
	switch def.Destination.Kind {
	case DestMongo:
		db, err := a.mongoDatabase()
		if err != nil {
			return nil, err
		}
		return etl.NewMongoLoader(db, keymap.TenantKey(tenant, def.Destination.Collection)), nil
	case DestPostgres:
		db, err := a.destSQL()
		if err != nil {
			return nil, err
		}
		return etl.NewSQLLoader(db, DestPostgres, keymap.TenantKey(tenant, def.Destination.Table), def.Destination.IDColumn)
	default:
		return nil, fmt.Errorf("unknown destination kind %q", def.Destination.Kind)
	}
}

// Close releases every connection opened so far.
func (a *App) Close() {
	if a.legacy != nil {
		a.legacy.Close()
	}
	if a.dest != nil {
		a.dest.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			logger.Warnf("mongo disconnect: %v", err)
		}
	}
}
