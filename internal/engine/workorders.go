package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"upkeep/internal/domain"
	"upkeep/internal/events"
	"upkeep/internal/repo"
	"upkeep/internal/workorder"
)

// WorkOrderCreateOptions are parameters for creating a work order with its
// ordered task list.
type WorkOrderCreateOptions struct {
	AccountID           string   `json:"account_id" validate:"required"`
	AssetID             string   `json:"asset_id"`
	ChecklistTemplateID string   `json:"checklist_template_id"`
	Title               string   `json:"title" validate:"required,max=200"`
	Description         string   `json:"description" validate:"max=4000"`
	Priority            string   `json:"priority" validate:"omitempty,oneof=Low Normal High Critical"`
	DueDate             string   `json:"due_date"`
	Tasks               []string `json:"tasks" validate:"dive,required,max=1000"`
}

// CreateWorkOrder inserts an Open work order and its tasks with order
// indices 0..n-1. Either all rows are committed or none are.
func (e Engine) CreateWorkOrder(ctx context.Context, opts WorkOrderCreateOptions) (domain.WorkOrder, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	opts.AssetID = strings.TrimSpace(opts.AssetID)
	opts.ChecklistTemplateID = strings.TrimSpace(opts.ChecklistTemplateID)
	for i := range opts.Tasks {
		opts.Tasks[i] = strings.TrimSpace(opts.Tasks[i])
	}
	if err := validateStruct(opts); err != nil {
		return domain.WorkOrder{}, err
	}
	due, err := normalizeDueDate(opts.DueDate)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetAccountTx(ctx, tx, opts.AccountID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.WorkOrder{}, notFound("account")
		}
		return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
	}
	now := e.timestamp()
	wo := domain.WorkOrder{
		ID:          uuid.NewString(),
		AccountID:   opts.AccountID,
		Title:       opts.Title,
		Description: strings.TrimSpace(opts.Description),
		Priority:    opts.Priority,
		Status:      domain.StatusOpen,
		DueDate:     due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if wo.Priority == "" {
		wo.Priority = domain.DefaultWorkOrderPriority
	}
	if opts.AssetID != "" {
		asset, err := e.Repo.GetAssetTx(ctx, tx, opts.AccountID, opts.AssetID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.WorkOrder{}, notFoundOrForbidden("asset")
		}
		if err != nil {
			return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
		}
		wo.AssetID = &asset.ID
		wo.AssetName = asset.Name
	}
	if opts.ChecklistTemplateID != "" {
		tpl, err := e.Repo.GetTemplateTx(ctx, tx, opts.ChecklistTemplateID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.WorkOrder{}, notFound("template")
		}
		if err != nil {
			return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
		}
		wo.ChecklistTemplateID = &tpl.ID
	}
	if err := e.Repo.InsertWorkOrderTx(ctx, tx, wo); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "insert work order", err)
	}
	wo.Tasks = make([]domain.WorkOrderTask, 0, len(opts.Tasks))
	for i, text := range opts.Tasks {
		t := domain.WorkOrderTask{
			ID:          uuid.NewString(),
			WorkOrderID: wo.ID,
			TaskText:    text,
			OrderIndex:  i,
			CreatedAt:   now,
		}
		if err := e.Repo.InsertWorkOrderTaskTx(ctx, tx, t); err != nil {
			return domain.WorkOrder{}, e.fail(ctx, "insert work order task", err)
		}
		wo.Tasks = append(wo.Tasks, t)
	}
	if err := w.Append(ctx, tx, events.WorkOrderCreated, wo.AccountID, "work_order", wo.ID, wo.AccountID, events.EventPayload{
		"title":    wo.Title,
		"asset_id": wo.AssetID,
		"priority": wo.Priority,
		"tasks":    len(wo.Tasks),
	}); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "create work order", err)
	}
	return wo, nil
}

// normalizeDueDate accepts RFC 3339 or a bare YYYY-MM-DD date.
func normalizeDueDate(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return optionalString(t.UTC().Format(time.RFC3339)), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return optionalString(t.UTC().Format(time.RFC3339)), nil
	}
	return nil, invalid("due_date", "must be RFC 3339 or YYYY-MM-DD")
}

// SetWorkOrderStatus applies an explicit status. The status is checked
// before the store is touched, so a rejected value changes nothing.
func (e Engine) SetWorkOrderStatus(ctx context.Context, accountID, id, status string) (domain.WorkOrder, error) {
	if strings.TrimSpace(status) == "" {
		return domain.WorkOrder{}, invalid("status", "is required")
	}
	next, err := workorder.ParseStatus(status)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "set work order status", err)
	}
	defer tx.Rollback()
	wo, err := e.Repo.GetWorkOrderTx(ctx, tx, accountID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.WorkOrder{}, notFoundOrForbidden("work order")
	}
	if err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "set work order status", err)
	}
	prev := wo.Status
	workorder.SetStatus(&wo, next, e.now())
	if err := e.Repo.UpdateWorkOrderStatusTx(ctx, tx, wo); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "set work order status", err)
	}
	if err := w.Append(ctx, tx, events.WorkOrderStatus, accountID, "work_order", wo.ID, accountID, events.EventPayload{
		"from": prev,
		"to":   wo.Status,
	}); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "set work order status", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkOrder{}, e.fail(ctx, "set work order status", err)
	}
	return wo, nil
}

// TaskToggleOptions mark one task complete or incomplete. Completed is a
// pointer so an absent flag is rejected rather than read as false.
type TaskToggleOptions struct {
	AccountID   string `json:"account_id" validate:"required"`
	WorkOrderID string `json:"work_order_id" validate:"required"`
	TaskID      string `json:"task_id" validate:"required"`
	Completed   *bool  `json:"is_completed" validate:"required"`
}

type ToggleResult struct {
	Task          domain.WorkOrderTask `json:"task"`
	WorkOrder     domain.WorkOrder     `json:"work_order"`
	AutoCompleted bool                 `json:"auto_completed"`
}

// ToggleTask updates one task and, in the same transaction, completes the
// work order when every task is done.
func (e Engine) ToggleTask(ctx context.Context, opts TaskToggleOptions) (ToggleResult, error) {
	if err := validateStruct(opts); err != nil {
		return ToggleResult{}, err
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	defer tx.Rollback()
	wo, err := e.Repo.GetWorkOrderTx(ctx, tx, opts.AccountID, opts.WorkOrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return ToggleResult{}, notFoundOrForbidden("work order")
	}
	if err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	task, err := e.Repo.GetTaskTx(ctx, tx, wo.ID, opts.TaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ToggleResult{}, notFoundOrForbidden("task")
	}
	if err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	now := e.now()
	workorder.ToggleTask(&task, *opts.Completed, opts.AccountID, now)
	if err := e.Repo.UpdateTaskTx(ctx, tx, task); err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	if err := w.Append(ctx, tx, events.WorkOrderTaskToggled, opts.AccountID, "work_order_task", task.ID, opts.AccountID, events.EventPayload{
		"work_order_id": wo.ID,
		"is_completed":  task.IsCompleted,
	}); err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}

	tasks, err := e.Repo.ListTasksTx(ctx, tx, wo.ID)
	if err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	prev := wo.Status
	fired := workorder.Cascade(&wo, tasks, now)
	if fired {
		if err := e.Repo.UpdateWorkOrderStatusTx(ctx, tx, wo); err != nil {
			return ToggleResult{}, e.fail(ctx, "complete work order", err)
		}
		if err := w.Append(ctx, tx, events.WorkOrderCompleted, opts.AccountID, "work_order", wo.ID, opts.AccountID, events.EventPayload{
			"from":  prev,
			"tasks": len(tasks),
			"auto":  true,
		}); err != nil {
			return ToggleResult{}, e.fail(ctx, "complete work order", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ToggleResult{}, e.fail(ctx, "toggle task", err)
	}
	if fired {
		e.log(ctx).Info("work order auto-completed",
			slog.String("work_order_id", wo.ID),
			slog.String("previous_status", string(prev)))
	}
	wo.Tasks = tasks
	return ToggleResult{Task: task, WorkOrder: wo, AutoCompleted: fired}, nil
}

func (e Engine) GetWorkOrder(ctx context.Context, accountID, id string) (domain.WorkOrder, error) {
	wo, err := e.Repo.GetWorkOrder(ctx, accountID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.WorkOrder{}, notFoundOrForbidden("work order")
	}
	return wo, e.fail(ctx, "get work order", err)
}

// WorkOrderPage is one page of work orders plus the unpaged total.
type WorkOrderPage struct {
	Items   []domain.WorkOrder `json:"items"`
	Total   int                `json:"total"`
	HasMore bool               `json:"has_more"`
}

func (e Engine) ListWorkOrders(ctx context.Context, f repo.WorkOrderFilters) (WorkOrderPage, error) {
	if f.Status != "" {
		st, err := workorder.ParseStatus(f.Status)
		if err != nil {
			return WorkOrderPage{}, err
		}
		f.Status = string(st)
	}
	if f.Offset < 0 {
		return WorkOrderPage{}, invalid("offset", "must not be negative")
	}
	items, err := e.Repo.ListWorkOrders(ctx, f)
	if err != nil {
		return WorkOrderPage{}, e.fail(ctx, "list work orders", err)
	}
	total, err := e.Repo.CountWorkOrders(ctx, f)
	if err != nil {
		return WorkOrderPage{}, e.fail(ctx, "count work orders", err)
	}
	if items == nil {
		items = []domain.WorkOrder{}
	}
	return WorkOrderPage{Items: items, Total: total, HasMore: f.Offset+len(items) < total}, nil
}

// DeleteWorkOrder removes a work order and, by cascade, its tasks.
func (e Engine) DeleteWorkOrder(ctx context.Context, accountID, id string) error {
	tx, w, err := e.begin(ctx)
	if err != nil {
		return e.fail(ctx, "delete work order", err)
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorkOrderTx(ctx, tx, accountID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundOrForbidden("work order")
		}
		return e.fail(ctx, "delete work order", err)
	}
	if err := w.Append(ctx, tx, events.WorkOrderDeleted, accountID, "work_order", id, accountID, nil); err != nil {
		return e.fail(ctx, "delete work order", err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail(ctx, "delete work order", err)
	}
	return nil
}
