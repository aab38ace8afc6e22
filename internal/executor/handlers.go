package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsdesk/internal/models"
)

const defaultQueryLimit = 20

func (e *Executor) create(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	entity := req.Kind.Entity()
	fields := e.contract.Sanitize(req)
	switch entity {
	case models.EntityTask:
		setDefault(fields, "status", "todo")
		setDefault(fields, "priority", "medium")
	case models.EntityProject:
		setDefault(fields, "status", "active")
	}

	rec, err := e.store.Create(ctx, entity, fields)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("creating %s: %w", entity, err)
	}
	return models.ActionResult{
		Data: rec,
		Undo: &models.UndoDescriptor{
			Kind:        models.UndoDeleteCreated,
			Entity:      entity,
			EntityID:    rec.ID,
			Description: "delete " + label(entity, rec),
		},
		Navigate: navigation(entity, rec.ID),
	}, nil
}

func (e *Executor) update(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	entity := req.Kind.Entity()
	id := req.RefID()
	prior, err := e.store.Get(ctx, entity, id)
	if err != nil {
		return models.ActionResult{}, lookupError(entity, id, err)
	}

	changes := e.contract.Sanitize(req)
	delete(changes, "id")
	if len(changes) == 0 {
		return models.ActionResult{}, fmt.Errorf("nothing to change on %s %s", entity, id)
	}

	// Only the touched keys are remembered; a nil prior value means the
	// key did not exist and undo removes it again.
	previous := make(map[string]any, len(changes))
	for k := range changes {
		previous[k] = prior.Fields[k]
	}
	if err := e.store.Update(ctx, entity, id, changes); err != nil {
		return models.ActionResult{}, fmt.Errorf("updating %s %s: %w", entity, id, err)
	}
	return models.ActionResult{
		Data: changes,
		Undo: &models.UndoDescriptor{
			Kind:        models.UndoRestoreUpdated,
			Entity:      entity,
			EntityID:    id,
			Fields:      previous,
			Description: "restore " + label(entity, prior),
		},
		Navigate: navigation(entity, id),
	}, nil
}

func (e *Executor) remove(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	entity := req.Kind.Entity()
	id := req.RefID()
	prior, err := e.store.Get(ctx, entity, id)
	if err != nil {
		return models.ActionResult{}, lookupError(entity, id, err)
	}
	if err := e.store.Delete(ctx, entity, id); err != nil {
		return models.ActionResult{}, fmt.Errorf("deleting %s %s: %w", entity, id, err)
	}
	return models.ActionResult{
		Data: prior,
		Undo: &models.UndoDescriptor{
			Kind:        models.UndoRecreateDeleted,
			Entity:      entity,
			EntityID:    id,
			Fields:      prior.Fields,
			Description: "recreate " + label(entity, prior),
		},
	}, nil
}

func (e *Executor) query(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	entity := models.EntityKind(req.String("entity"))
	filter := models.Filter{Equals: map[string]string{}, Limit: defaultQueryLimit}
	for _, key := range []string{"status", "project_id", "assignee_id"} {
		if v := req.String(key); v != "" {
			filter.Equals[key] = v
		}
	}
	switch n := req.Payload["limit"].(type) {
	case float64:
		filter.Limit = int(n)
	case int:
		filter.Limit = n
	case int64:
		filter.Limit = int(n)
	}

	recs, err := e.store.List(ctx, entity, filter)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("listing %s: %w", entity, err)
	}
	return models.ActionResult{Data: recs}, nil
}

// sendMessage records an outbound message to a team member. Sent messages
// cannot be recalled, so no undo descriptor is attached.
func (e *Executor) sendMessage(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	to := req.String("recipient_id")
	if _, err := e.store.Get(ctx, models.EntityTeamMember, to); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ActionResult{}, fmt.Errorf("no team member with id %s", to)
		}
		return models.ActionResult{}, fmt.Errorf("looking up recipient %s: %w", to, err)
	}
	rec, err := e.store.Create(ctx, models.EntityMessage, map[string]any{
		"recipient_id": to,
		"body":         req.String("body"),
		"sent_at":      e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("sending message: %w", err)
	}
	return models.ActionResult{Data: rec}, nil
}

func lookupError(entity models.EntityKind, id string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s %s does not exist", entity, id)
	}
	return fmt.Errorf("loading %s %s: %w", entity, id, err)
}

func setDefault(fields map[string]any, key string, value any) {
	if _, ok := fields[key]; !ok {
		fields[key] = value
	}
}

func label(entity models.EntityKind, rec models.Record) string {
	name := rec.String("title")
	if name == "" {
		name = rec.String("name")
	}
	if name == "" {
		return fmt.Sprintf("%s %s", entity, rec.ID)
	}
	return fmt.Sprintf("%s %q", entity, name)
}

func navigation(entity models.EntityKind, id string) string {
	switch entity {
	case models.EntityTask:
		return "/tasks/" + id
	case models.EntityProject:
		return "/projects/" + id
	}
	return ""
}
