package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
)

// TenantStore is the in-memory core.TenantStore.
type TenantStore struct {
	s *Store
}

func cloneEntity(e *model.Entity) *model.Entity {
	cp := *e
	cp.Data = maps.Clone(e.Data)
	return &cp
}

// normalize round-trips v through JSON so stored values and filters compare the way jsonb does.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record data: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode record data: %w", err)
	}
	return out, nil
}

func normalizeData(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	v, err := normalize(data)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

// contains reports whether have contains want with jsonb @> semantics.
func contains(have, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			hv, ok := h[k]
			if !ok || !contains(hv, wv) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok {
			return false
		}
		for _, wv := range w {
			found := false
			for _, hv := range h {
				if contains(hv, wv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(have, want)
	}
}

// owner returns the stored row of id after checking it against tenantID and et.
func (t *TenantStore) owner(tenantID string, et model.EntityType, id string) (*recordRow, error) {
	row, ok := t.s.records[id]
	if !ok || row.entity.Type != et {
		return nil, apperrors.NotFoundf("%s %s not found", et, id)
	}
	if row.entity.TenantID != tenantID {
		return nil, apperrors.CrossTenantAccessf("%s %s belongs to another tenant", et, id)
	}
	return row, nil
}

// Find returns the tenant's entities of type et whose data contains filter, oldest first.
func (t *TenantStore) Find(_ context.Context, tenantID string, et model.EntityType, filter model.Filter) ([]*model.Entity, error) {
	want := maps.Clone(filter)
	id, byID := want["id"].(string)
	delete(want, "id")
	norm, err := normalizeData(want)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid filter")
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if byID {
		row, err := t.owner(tenantID, et, id)
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !contains(row.entity.Data, norm) {
			return nil, nil
		}
		return []*model.Entity{cloneEntity(row.entity)}, nil
	}

	var rows []*recordRow
	for _, row := range t.s.records {
		if row.entity.TenantID == tenantID && row.entity.Type == et && contains(row.entity.Data, norm) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].seq < rows[b].seq })
	out := make([]*model.Entity, len(rows))
	for i, row := range rows {
		out[i] = cloneEntity(row.entity)
	}
	return out, nil
}

// Create stores a new entity. A string "id" in data becomes the entity id.
func (t *TenantStore) Create(_ context.Context, tenantID string, et model.EntityType, data map[string]any) (*model.Entity, error) {
	if strings.TrimSpace(tenantID) == "" || et == "" {
		return nil, apperrors.Validation("tenant id and entity type are required")
	}
	norm, err := normalizeData(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid record data")
	}
	id, _ := norm["id"].(string)
	delete(norm, "id")
	if id == "" {
		id = uuid.NewString()
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.records[id]; ok {
		return nil, &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "this value already exists", Field: "id"}
	}
	now := t.s.now()
	e := &model.Entity{ID: id, TenantID: tenantID, Type: et, Data: norm, CreatedAt: now, UpdatedAt: now}
	t.s.records[id] = &recordRow{entity: e, seq: t.s.next()}
	return cloneEntity(e), nil
}

// Update merges data into the stored entity's data.
func (t *TenantStore) Update(_ context.Context, tenantID string, et model.EntityType, id string, data map[string]any) (*model.Entity, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid record data")
	}
	delete(norm, "id")

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	row, err := t.owner(tenantID, et, id)
	if err != nil {
		return nil, err
	}
	maps.Copy(row.entity.Data, norm)
	row.entity.UpdatedAt = t.s.now()
	return cloneEntity(row.entity), nil
}

// Delete removes an entity.
func (t *TenantStore) Delete(_ context.Context, tenantID string, et model.EntityType, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, err := t.owner(tenantID, et, id); err != nil {
		return err
	}
	delete(t.s.records, id)
	return nil
}
