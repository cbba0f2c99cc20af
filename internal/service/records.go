package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/target/prepflow/internal/domain/model"
	apperrors "github.com/target/prepflow/internal/errors"
	"github.com/target/prepflow/internal/tenant"
)

// recordNamespace seeds the deterministic ids of records written by workflow steps.
var recordNamespace = uuid.MustParse("5b0f3c2e-8d57-4a51-9d0b-1f6f6f0a7c41")

// stableID derives the same record id every time a step runs for the same job, so a step that
// crashed between writing and checkpointing finds its own rows instead of duplicating them.
func stableID(jobID string, parts ...string) string {
	name := jobID + "/" + strings.Join(parts, "/")
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// toData converts a tagged struct into entity data.
func toData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromEntity decodes entity data into a tagged struct. The entity id is copied into an "id" field.
func fromEntity(e *model.Entity, v any) error {
	data := maps.Clone(e.Data)
	if data == nil {
		data = map[string]any{}
	}
	data["id"] = e.ID
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", e.Type, e.ID, err)
	}
	return nil
}

// createOnce creates an entity with a fixed id. An entity already stored under that id by the same
// tenant is returned instead.
func createOnce(ctx context.Context, scope *tenant.Scope, et model.EntityType, id string, data map[string]any) (*model.Entity, error) {
	data["id"] = id
	e, err := scope.Create(ctx, et, data)
	if apperrors.IsConflict(err) {
		return scope.Get(ctx, et, id)
	}
	return e, err
}
