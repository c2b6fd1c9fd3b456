// Package app wires configuration, storage and the nested traversals into the
// operations exposed by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/cli/config"
	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/rules"
	"github.com/conduit-lang/nestwrite/internal/nested/updater"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/conduit-lang/nestwrite/internal/orm/transaction"
	"github.com/conduit-lang/nestwrite/internal/orm/validation"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrUnknownResource is returned for operations on a resource that is not declared
var ErrUnknownResource = errors.New("unknown resource")

// App holds the collaborators shared by every operation. It is safe for concurrent
// use; each operation builds its own updater or validator.
type App struct {
	Config       *config.Config
	DB           *sqlx.DB
	Schemas      *schema.Registry
	Resolver     *relation.Resolver
	Store        *crud.Store
	Transactions *transaction.Manager
	Providers    *rules.Providers
	Updaters     *updater.Registry
	Validators   *rules.Registry
	Logger       *zap.Logger
}

// Open connects to the configured database, runs the setup file and builds an App
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := sqlx.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.Database.MaxOpenConns
	if cfg.Database.Driver == "sqlite3" && strings.Contains(cfg.Database.URL, ":memory:") {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Database.Setup != "" {
		script, err := os.ReadFile(cfg.Database.Setup)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to read setup file: %w", err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run setup file: %w", err)
		}
	}

	a, err := New(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// New builds an App over an open database
func New(cfg *config.Config, db *sqlx.DB, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	schemas, err := cfg.Schemas()
	if err != nil {
		return nil, err
	}
	relations, err := cfg.Relations()
	if err != nil {
		return nil, err
	}
	providers, err := cfg.Providers()
	if err != nil {
		return nil, err
	}

	resolver := relation.NewResolver(relations, schemas)
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	var opts []transaction.Option
	if level, ok := cfg.IsolationLevel(); ok {
		opts = append(opts, transaction.WithIsolation(level))
	}

	return &App{
		Config:       cfg,
		DB:           db,
		Schemas:      schemas,
		Resolver:     resolver,
		Store:        crud.NewStore(db, schemas, logger),
		Transactions: transaction.NewManager(db, opts...),
		Providers:    providers,
		Updaters:     updater.NewRegistry(),
		Validators:   rules.NewRegistry(),
		Logger:       logger,
	}, nil
}

// Close closes the database
func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) updaterDeps() updater.Deps {
	return updater.Deps{
		Schemas:    a.Schemas,
		Resolver:   a.Resolver,
		Store:      a.Store,
		Transactor: a.Transactions,
		Handlers:   a.Updaters,
		Logger:     a.Logger,
		Options:    a.Config.NestedOptions(),
	}
}

func (a *App) rulesDeps() rules.Deps {
	return rules.Deps{
		Resolver:   a.Resolver,
		Exister:    a.Store,
		Providers:  a.Providers,
		Validators: a.Validators,
		Logger:     a.Logger,
		Options:    a.Config.NestedOptions(),
	}
}

func (a *App) resource(name string) (*schema.ResourceSchema, error) {
	res, ok := a.Schemas.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return res, nil
}

// Create writes a new record of resource from data
func (a *App) Create(ctx context.Context, resource string, data map[string]interface{}) (*nested.Result, error) {
	if _, err := a.resource(resource); err != nil {
		return nil, err
	}
	if err := a.validateBeforeWrite(ctx, resource, data, true); err != nil {
		return nil, err
	}
	return updater.New(a.updaterDeps(), resource).Create(ctx, data)
}

// Update writes data onto the record of resource identified by id. by names an
// alternate lookup field; empty means the primary key.
func (a *App) Update(ctx context.Context, resource string, id interface{}, by string, data map[string]interface{}) (*nested.Result, error) {
	res, err := a.resource(resource)
	if err != nil {
		return nil, err
	}
	if by == "" || by == res.PrimaryKey {
		id, err = crud.NormalizeKey(res, id)
		if err != nil {
			return nil, &nested.InvalidDataError{Message: err.Error()}
		}
	}
	if err := a.validateBeforeWrite(ctx, resource, data, false); err != nil {
		return nil, err
	}
	return updater.New(a.updaterDeps(), resource).Update(ctx, data, id, by)
}

// Validate checks data and returns the collected messages, empty when valid
func (a *App) Validate(ctx context.Context, resource string, data map[string]interface{}, creating bool) (*validation.ValidationErrors, error) {
	if _, err := a.resource(resource); err != nil {
		return nil, err
	}
	v := rules.NewValidator(a.rulesDeps())
	if _, err := v.Validate(ctx, resource, data, creating); err != nil {
		return nil, err
	}
	return v.Messages(), nil
}

// Rules returns the rule map data would be validated with
func (a *App) Rules(ctx context.Context, resource string, data map[string]interface{}, creating bool) (rules.RuleMap, error) {
	if _, err := a.resource(resource); err != nil {
		return nil, err
	}
	return rules.NewGenerator(a.rulesDeps()).Rules(ctx, resource, data, creating)
}

// Relations returns the nested relation descriptors of resource
func (a *App) Relations(resource string) ([]*relation.Descriptor, error) {
	if _, err := a.resource(resource); err != nil {
		return nil, err
	}
	return a.Resolver.Relations(resource)
}

// validateBeforeWrite refuses a write whose payload fails validation when the
// validate_before_write option is on. The messages are returned as the error.
func (a *App) validateBeforeWrite(ctx context.Context, resource string, data map[string]interface{}, creating bool) error {
	if !a.Config.Nested.ValidateBeforeWrite {
		return nil
	}
	messages, err := a.Validate(ctx, resource, data, creating)
	if err != nil {
		return err
	}
	if messages.HasErrors() {
		a.Logger.Debug("write refused by validation",
			zap.String("resource", resource),
			zap.Strings("paths", messages.Paths()))
		return messages
	}
	return nil
}

// Output is the JSON form of a write result
type Output struct {
	Resource string                 `json:"resource"`
	Action   string                 `json:"action"`
	Record   map[string]interface{} `json:"record"`
}

// NewOutput converts a write result
func NewOutput(resource string, result *nested.Result) *Output {
	out := &Output{Resource: resource, Action: result.Action.String()}
	if result.Record != nil {
		out.Record = result.Record.Attributes
	}
	return out
}

// RelationInfo is the printable form of a relation descriptor
type RelationInfo struct {
	Name           string `json:"name"`
	Method         string `json:"method"`
	Kind           string `json:"kind"`
	Related        string `json:"related"`
	ForeignKey     string `json:"foreign_key"`
	Create         bool   `json:"create"`
	Update         bool   `json:"update"`
	Detach         bool   `json:"detach"`
	DeleteDetached bool   `json:"delete_detached"`
	Updater        string `json:"updater,omitempty"`
	Validator      string `json:"validator,omitempty"`
	Rules          string `json:"rules,omitempty"`
}

// Describe converts a descriptor
func Describe(desc *relation.Descriptor) RelationInfo {
	return RelationInfo{
		Name:           desc.Name,
		Method:         desc.Method,
		Kind:           desc.Kind().String(),
		Related:        desc.RelatedType,
		ForeignKey:     desc.Relationship.ForeignKey,
		Create:         desc.CreateAllowed,
		Update:         desc.UpdateAllowed,
		Detach:         desc.DetachMissing(),
		DeleteDetached: desc.DeleteDetached,
		Updater:        desc.Updater,
		Validator:      desc.Validator,
		Rules:          desc.Rules,
	}
}
