// Package audit persists audit rows from the ORM's AuditEvents.
//
// The listener runs outside any request, so it acquires its own tenant
// handle from the event's metadata and installs a minimal ambient frame
// before writing. The audit entity is registered as such, which keeps its own
// insert from emitting another AuditEvent.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/orm"
)

// NewListener returns the AuditEvent listener. Register it on the bus under
// events.AuditEventName.
func NewListener(pool *db.Pool) events.Listener {
	return func(ctx context.Context, event *events.Event) error {
		meta, _ := event.Data["meta"].(map[string]any)
		model, _ := event.Data["model"].(map[string]any)
		request, _ := event.Data["request"].(map[string]any)
		if meta == nil || model == nil {
			return fmt.Errorf("audit event missing model or meta")
		}

		tenant, _ := meta["tenant"].(string)
		if tenant == "" {
			return fmt.Errorf("audit event has no tenant")
		}

		handle, err := pool.Acquire(ctx, tenant)
		if err != nil {
			return fmt.Errorf("failed to acquire audit handle: %w", err)
		}
		defer handle.Release(ctx)

		scoped := appctx.With(ctx, &appctx.Frame{Tenant: tenant, Handle: handle})
		record, err := buildRecord(meta, model, request)
		if err != nil {
			return err
		}
		return orm.Insert(scoped, record)
	}
}

func buildRecord(meta, model, request map[string]any) (*orm.Record, error) {
	auditDef := orm.Registry.AuditDefinition()
	if auditDef == nil {
		return nil, fmt.Errorf("no audit entity registered")
	}

	action, _ := meta["action"].(string)
	objectType, _ := meta["object_type"].(string)
	actorID := request["user_id"]
	isSystem := actorID == nil

	location, _ := request["location"].(string)
	if location == "" {
		location = "unknown"
	}

	snapshot, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot audit model: %w", err)
	}

	record := orm.New(auditDef)
	values := map[string]any{
		"object_type":     objectType,
		"event_name":      eventName(objectType, action),
		"description":     fmt.Sprintf("%s %sd", objectType, action),
		"action":          fmt.Sprintf("%sd %s", titleCase(action), objectType),
		"change_snapshot": string(snapshot),
		"at":              time.Now().UTC(),
		"loc":             location,
		"is_system":       isSystem,
	}
	if id, ok := model["id"]; ok {
		values["object_id"] = id
	}
	if !isSystem {
		values["actor_id"] = actorID
	}
	if err := record.Apply(values); err != nil {
		return nil, err
	}
	return record, nil
}

// eventName renders the conventional audit event name, UsersCreateEvent and
// the like.
func eventName(objectType, action string) string {
	return objectType + titleCase(action) + "Event"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
