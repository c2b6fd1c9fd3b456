// Package crud reads and writes resource records over SQL. Statements are built with
// go-sqlbuilder for the flavor of the connected driver and run through sqlx, inside
// the transaction carried by the context when there is one.
package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/conduit-lang/nestwrite/internal/orm/transaction"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Store provides record operations for every registered resource
type Store struct {
	db       *sqlx.DB
	registry *schema.Registry
	flavor   sqlbuilder.Flavor
	logger   *zap.Logger
}

// NewStore creates a Store. The SQL flavor follows the driver of db.
func NewStore(db *sqlx.DB, registry *schema.Registry, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:       db,
		registry: registry,
		flavor:   FlavorFor(db.DriverName()),
		logger:   logger,
	}
}

// FlavorFor returns the SQL flavor for a database/sql driver name
func FlavorFor(driver string) sqlbuilder.Flavor {
	switch driver {
	case "postgres", "pgx":
		return sqlbuilder.PostgreSQL
	case "mysql":
		return sqlbuilder.MySQL
	default:
		return sqlbuilder.SQLite
	}
}

func (s *Store) resource(name string) (*schema.ResourceSchema, error) {
	res, exists := s.registry.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return res, nil
}

func (s *Store) exec(ctx context.Context, query string, args []interface{}) (sql.Result, error) {
	s.logger.Debug("exec", zap.String("query", query), zap.Int("args", len(args)))
	return transaction.Executor(ctx, s.db).ExecContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args []interface{}) *sqlx.Row {
	s.logger.Debug("query", zap.String("query", query), zap.Int("args", len(args)))
	return transaction.Executor(ctx, s.db).QueryRowxContext(ctx, query, args...)
}

// Find retrieves a record by its primary key
func (s *Store) Find(ctx context.Context, resource string, key interface{}) (*Record, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}

	k, err := NormalizeKey(res, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return s.findBy(ctx, res, res.PrimaryKey, k)
}

// FindBy retrieves a single record by a specific field value
func (s *Store) FindBy(ctx context.Context, resource, field string, value interface{}) (*Record, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}
	if field == res.PrimaryKey {
		return s.Find(ctx, resource, value)
	}
	if !res.IsColumn(field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, res.Name, field)
	}
	return s.findBy(ctx, res, field, normalizeArg(value))
}

func (s *Store) findBy(ctx context.Context, res *schema.ResourceSchema, field string, value interface{}) (*Record, error) {
	sb := s.flavor.NewSelectBuilder()
	sb.Select("*").From(res.TableName).Where(sb.Equal(field, value)).Limit(1)
	query, args := sb.Build()

	values, err := scanRecord(s.queryRow(ctx, query, args))
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", res.Name, field, ConvertDBError(err))
	}

	record := newRecord(res)
	record.Attributes = values
	record.markPersisted()
	return record, nil
}

// Exists reports whether a record with the given field value exists
func (s *Store) Exists(ctx context.Context, resource, field string, value interface{}) (bool, error) {
	res, err := s.resource(resource)
	if err != nil {
		return false, err
	}
	if !res.IsColumn(field) {
		return false, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, res.Name, field)
	}

	if field == res.PrimaryKey {
		if value, err = NormalizeKey(res, value); err != nil {
			return false, nil
		}
	} else {
		value = normalizeArg(value)
	}

	sb := s.flavor.NewSelectBuilder()
	sb.Select("1").From(res.TableName).Where(sb.Equal(field, value)).Limit(1)
	query, args := sb.Build()

	var found int
	if err := s.queryRow(ctx, query, args).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s existence: %w", res.Name, ConvertDBError(err))
	}
	return true, nil
}

// New returns an unsaved record of the resource
func (s *Store) New(resource string) (*Record, error) {
	res, err := s.resource(resource)
	if err != nil {
		return nil, err
	}
	return newRecord(res), nil
}

// Fill assigns attributes onto the record without saving it
func (s *Store) Fill(record *Record, attrs map[string]interface{}) {
	for name, value := range attrs {
		record.Set(name, value)
	}
}

// Save inserts a new record or writes the changed attributes of an existing one
func (s *Store) Save(ctx context.Context, record *Record) error {
	if record.exists {
		return s.update(ctx, record)
	}
	return s.insert(ctx, record)
}

func (s *Store) insert(ctx context.Context, record *Record) error {
	res := record.Resource
	pk := res.PrimaryKey

	if record.Key() == nil && res.KeyGenerated && res.KeyType == schema.KeyUUID {
		record.Set(pk, uuid.New().String())
	}
	if record.Key() != nil {
		key, err := NormalizeKey(res, record.Key())
		if err != nil {
			return err
		}
		record.Set(pk, key)
	}
	needsKey := record.Key() == nil

	var cols []string
	for name, value := range record.Attributes {
		if name == pk && value == nil {
			continue
		}
		cols = append(cols, name)
	}
	sort.Strings(cols)

	var query string
	var args []interface{}
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", res.TableName)
		if needsKey && s.flavor == sqlbuilder.PostgreSQL {
			query += " RETURNING " + pk
		}
	} else {
		vals := make([]interface{}, len(cols))
		for i, col := range cols {
			vals[i] = normalizeArg(record.Attributes[col])
		}
		ib := s.flavor.NewInsertBuilder()
		ib.InsertInto(res.TableName).Cols(cols...).Values(vals...)
		if needsKey && s.flavor == sqlbuilder.PostgreSQL {
			ib.Returning(pk)
		}
		query, args = ib.Build()
	}

	switch {
	case !needsKey:
		if _, err := s.exec(ctx, query, args); err != nil {
			return fmt.Errorf("failed to insert %s: %w", res.Name, ConvertDBError(err))
		}
	case s.flavor == sqlbuilder.PostgreSQL:
		var key interface{}
		if err := s.queryRow(ctx, query, args).Scan(&key); err != nil {
			return fmt.Errorf("failed to insert %s: %w", res.Name, ConvertDBError(err))
		}
		record.Set(pk, normalizeValue(key))
	default:
		result, err := s.exec(ctx, query, args)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", res.Name, ConvertDBError(err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated key of %s: %w", res.Name, err)
		}
		record.Set(pk, id)
	}

	record.markPersisted()
	return nil
}

func (s *Store) update(ctx context.Context, record *Record) error {
	res := record.Resource
	pk := res.PrimaryKey

	var assignments []string
	ub := s.flavor.NewUpdateBuilder()
	for _, name := range record.Dirty() {
		if name == pk {
			continue
		}
		assignments = append(assignments, ub.Assign(name, normalizeArg(record.Attributes[name])))
	}
	if len(assignments) == 0 {
		return nil
	}

	ub.Update(res.TableName).Set(assignments...).Where(ub.Equal(pk, record.original[pk]))
	query, args := ub.Build()

	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to update %s: %w", res.Name, ConvertDBError(err))
	}

	record.markPersisted()
	return nil
}

// Delete removes a record
func (s *Store) Delete(ctx context.Context, record *Record) error {
	if err := s.DeleteKeys(ctx, record.Resource.Name, []interface{}{record.Key()}); err != nil {
		return err
	}
	record.exists = false
	return nil
}

// DeleteKeys removes the records with the given primary keys
func (s *Store) DeleteKeys(ctx context.Context, resource string, keys []interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	res, err := s.resource(resource)
	if err != nil {
		return err
	}

	db := s.flavor.NewDeleteBuilder()
	db.DeleteFrom(res.TableName).Where(db.In(res.PrimaryKey, normalizeArgs(keys)...))
	query, args := db.Build()

	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to delete %s: %w", res.Name, ConvertDBError(err))
	}
	return nil
}

// Associate sets column to value on the record with the given key. A missing record
// is reported as ErrNotFound.
func (s *Store) Associate(ctx context.Context, resource string, key interface{}, column string, value interface{}) error {
	res, err := s.resource(resource)
	if err != nil {
		return err
	}
	k, err := NormalizeKey(res, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update(res.TableName).Set(ub.Assign(column, normalizeArg(value))).Where(ub.Equal(res.PrimaryKey, k))
	query, args := ub.Build()

	result, err := s.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to associate %s: %w", res.Name, ConvertDBError(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, res.Name, key)
	}
	return nil
}

// Dissociate clears column on the records with the given keys
func (s *Store) Dissociate(ctx context.Context, resource, column string, keys []interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	res, err := s.resource(resource)
	if err != nil {
		return err
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update(res.TableName).Set(ub.Assign(column, nil)).Where(ub.In(res.PrimaryKey, normalizeArgs(keys)...))
	query, args := ub.Build()

	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to dissociate %s: %w", res.Name, ConvertDBError(err))
	}
	return nil
}

// RelatedKeys returns the keys of the records currently related to ownerKey through
// a has_one, has_many or belongs_to_many relationship
func (s *Store) RelatedKeys(ctx context.Context, rel *schema.Relationship, ownerKey interface{}) ([]interface{}, error) {
	sb := s.flavor.NewSelectBuilder()

	switch rel.Type {
	case schema.RelationshipHasOne, schema.RelationshipHasMany:
		target, err := s.resource(rel.TargetResource)
		if err != nil {
			return nil, err
		}
		sb.Select(target.PrimaryKey).From(target.TableName).
			Where(sb.Equal(rel.ForeignKey, normalizeArg(ownerKey))).
			OrderBy(target.PrimaryKey)
	case schema.RelationshipBelongsToMany:
		sb.Select(rel.AssociationKey).From(rel.JoinTable).
			Where(sb.Equal(rel.ForeignKey, normalizeArg(ownerKey))).
			OrderBy(rel.AssociationKey)
	default:
		return nil, fmt.Errorf("relationship %s does not hold related keys", rel.FieldName)
	}

	query, args := sb.Build()
	s.logger.Debug("query", zap.String("query", query), zap.Int("args", len(args)))
	rows, err := transaction.Executor(ctx, s.db).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s keys: %w", rel.FieldName, ConvertDBError(err))
	}
	return scanColumn(rows)
}

// Attach inserts a join table row for a belongs_to_many relationship
func (s *Store) Attach(ctx context.Context, rel *schema.Relationship, ownerKey, relatedKey interface{}) error {
	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto(rel.JoinTable).
		Cols(rel.ForeignKey, rel.AssociationKey).
		Values(normalizeArg(ownerKey), normalizeArg(relatedKey))
	query, args := ib.Build()

	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to attach %s: %w", rel.FieldName, ConvertDBError(err))
	}
	return nil
}

// Detach removes join table rows for a belongs_to_many relationship
func (s *Store) Detach(ctx context.Context, rel *schema.Relationship, ownerKey interface{}, relatedKeys []interface{}) error {
	if len(relatedKeys) == 0 {
		return nil
	}

	db := s.flavor.NewDeleteBuilder()
	db.DeleteFrom(rel.JoinTable).Where(
		db.Equal(rel.ForeignKey, normalizeArg(ownerKey)),
		db.In(rel.AssociationKey, normalizeArgs(relatedKeys)...),
	)
	query, args := db.Build()

	if _, err := s.exec(ctx, query, args); err != nil {
		return fmt.Errorf("failed to detach %s: %w", rel.FieldName, ConvertDBError(err))
	}
	return nil
}

// normalizeArg turns integral JSON numbers into integers so that drivers with strict
// parameter types accept them
func normalizeArg(v interface{}) interface{} {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func normalizeArgs(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = normalizeArg(v)
	}
	return out
}
