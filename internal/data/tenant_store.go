package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// TenantStore stores tenant-owned records as JSONB documents in tenant_records. Every query is bound to
// one tenant; ids that resolve to another tenant's record fail with CrossTenantAccess.
type TenantStore struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.TenantStore = (*TenantStore)(nil)

// NewTenantStore constructs a TenantStore.
func NewTenantStore(db *sql.DB, tp TimeProvider) *TenantStore {
	return &TenantStore{DB: db, timeProvider: resolveTimeProvider(tp)}
}

const recordColumns = `id, tenant_id, entity_type, data, created_at, updated_at`

func scanEntity(scanner jobRowScanner) (*model.Entity, error) {
	var e model.Entity
	var raw []byte
	if err := scanner.Scan(&e.ID, &e.TenantID, &e.Type, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Data = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Data); err != nil {
			return nil, fmt.Errorf("decode record data: %w", err)
		}
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func encodeData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid record data")
	}
	return raw, nil
}

// checkOwner explains why a statement bound to tenantID matched no row.
func (s *TenantStore) checkOwner(ctx context.Context, tenantID string, et model.EntityType, id string) error {
	var owner string
	var typ model.EntityType
	err := s.DB.QueryRowContext(ctx, `SELECT tenant_id, entity_type FROM tenant_records WHERE id = $1`, id).Scan(&owner, &typ)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && typ != et) {
		return apperrors.NotFoundf("%s %s not found", et, id)
	}
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("load record owner: %w", err))
	}
	if owner != tenantID {
		return apperrors.CrossTenantAccessf("%s %s belongs to another tenant", et, id)
	}
	return apperrors.NotFoundf("%s %s not found", et, id)
}

// Find returns the tenant's entities of type et whose data contains filter, oldest first.
func (s *TenantStore) Find(ctx context.Context, tenantID string, et model.EntityType, filter model.Filter) ([]*model.Entity, error) {
	want := maps.Clone(filter)
	id, byID := want["id"].(string)
	delete(want, "id")
	contains, err := encodeData(want)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM tenant_records
		WHERE tenant_id = $1 AND entity_type = $2 AND data @> $3::jsonb`
	args := []any{tenantID, et, contains}
	if byID {
		query += ` AND id = $4`
		args = append(args, id)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("find records: %w", err))
	}
	defer rows.Close()

	var out []*model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if byID && len(out) == 0 {
		if err := s.checkOwner(ctx, tenantID, et, id); apperrors.IsCrossTenantAccess(err) {
			return nil, err
		}
	}
	return out, nil
}

// Create inserts a new entity. A string "id" in data becomes the entity id.
func (s *TenantStore) Create(ctx context.Context, tenantID string, et model.EntityType, data map[string]any) (*model.Entity, error) {
	if strings.TrimSpace(tenantID) == "" || et == "" {
		return nil, apperrors.Validation("tenant id and entity type are required")
	}
	fields := maps.Clone(data)
	id, _ := fields["id"].(string)
	delete(fields, "id")
	if id == "" {
		id = uuid.NewString()
	}
	raw, err := encodeData(fields)
	if err != nil {
		return nil, err
	}

	now := s.timeProvider.Now().UTC()
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO tenant_records (id, tenant_id, entity_type, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+recordColumns, id, tenantID, et, raw, now)
	e, err := scanEntity(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create record: %w", err))
	}
	return e, nil
}

// Update merges data into the stored entity's data.
func (s *TenantStore) Update(ctx context.Context, tenantID string, et model.EntityType, id string, data map[string]any) (*model.Entity, error) {
	fields := maps.Clone(data)
	delete(fields, "id")
	raw, err := encodeData(fields)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE tenant_records
		SET data = data || $4::jsonb,
		    updated_at = $5
		WHERE id = $1 AND tenant_id = $2 AND entity_type = $3
		RETURNING `+recordColumns, id, tenantID, et, raw, s.timeProvider.Now().UTC())
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.checkOwner(ctx, tenantID, et, id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("update record: %w", err))
	}
	return e, nil
}

// Delete removes an entity.
func (s *TenantStore) Delete(ctx context.Context, tenantID string, et model.EntityType, id string) error {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM tenant_records WHERE id = $1 AND tenant_id = $2 AND entity_type = $3`, id, tenantID, et)
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("delete record: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return s.checkOwner(ctx, tenantID, et, id)
	}
	return nil
}
