package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/engine"
	"upkeep/internal/migrate"
)

func TestWebhookDispatcherDeliversMatchingEvents(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var headers []http.Header
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(data, &evt)
		mu.Lock()
		got = append(got, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"work_order.completed"}, Secret: "s3cret"}}
	e := engine.New(conn, cfg)
	ctx := context.Background()

	d := NewWebhookDispatcher(e, nil)
	require.NotNil(t, d)
	d.DispatchAll(ctx)

	_, err = e.EnsureAccount(ctx, engine.AccountProfile{ID: "acct-1"})
	require.NoError(t, err)
	wo, err := e.CreateWorkOrder(ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", Tasks: []string{"only"}})
	require.NoError(t, err)
	done := true
	_, err = e.ToggleTask(ctx, engine.TaskToggleOptions{AccountID: "acct-1", WorkOrderID: wo.ID, TaskID: wo.Tasks[0].ID, Completed: &done})
	require.NoError(t, err)

	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "work_order.completed", got[0].Type)
	assert.Equal(t, "acct-1", got[0].AccountID)
	assert.Equal(t, wo.ID, got[0].EntityID)
	assert.Equal(t, "work_order.completed", headers[0].Get("X-Upkeep-Event"))
	assert.Equal(t, "s3cret", headers[0].Get("X-Upkeep-Secret"))
	assert.NotEmpty(t, headers[0].Get("X-Upkeep-Delivery"))
}

func TestWebhookDispatcherDisabledWithoutHooks(t *testing.T) {
	assert.Nil(t, NewWebhookDispatcher(engine.Engine{Config: config.Default()}, nil))
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{"asset.created"})
	assert.True(t, f.match("asset.created"))
	assert.False(t, f.match("asset.deleted"))
}
