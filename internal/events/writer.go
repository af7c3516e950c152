package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	AccountCreated       = "account.created"
	AccountPlanChanged   = "account.plan_changed"
	AccountUpdated       = "account.updated"
	AssetCreated         = "asset.created"
	AssetUpdated         = "asset.updated"
	AssetDeleted         = "asset.deleted"
	WorkOrderCreated     = "work_order.created"
	WorkOrderStatus      = "work_order.status_changed"
	WorkOrderTaskToggled = "work_order.task_toggled"
	WorkOrderCompleted   = "work_order.completed"
	WorkOrderDeleted     = "work_order.deleted"
	APIKeyCreated        = "api_key.created"
	APIKeyDeleted        = "api_key.deleted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside the caller's transaction so it commits or
// rolls back with the change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, accountID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = accountID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,account_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(accountID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
