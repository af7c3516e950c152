package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"upkeep/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- accounts ---

const accountColumns = `id,COALESCE(email,''),COALESCE(company_name,''),plan_type,asset_count,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	var plan string
	err := row.Scan(&a.ID, &a.Email, &a.CompanyName, &plan, &a.AssetCount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.Plan = domain.PlanTier(plan)
	return a, err
}

func (r Repo) InsertAccountTx(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(id,email,company_name,plan_type,asset_count,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, nullable(a.Email), nullable(a.CompanyName), string(a.Plan), a.AssetCount, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return r.getAccount(ctx, r.DB, id)
}

func (r Repo) GetAccountTx(ctx context.Context, tx *sql.Tx, id string) (domain.Account, error) {
	return r.getAccount(ctx, tx, id)
}

func (r Repo) getAccount(ctx context.Context, q querier, id string) (domain.Account, error) {
	return scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=?`, id))
}

func (r Repo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// SingleAccount returns the only account in the store.
func (r Repo) SingleAccount(ctx context.Context) (domain.Account, error) {
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return domain.Account{}, err
	}
	if len(accounts) == 0 {
		return domain.Account{}, ErrNotFound
	}
	if len(accounts) > 1 {
		return domain.Account{}, fmt.Errorf("multiple accounts exist; specify --account")
	}
	return accounts[0], nil
}

func (r Repo) SetAssetCountTx(ctx context.Context, tx *sql.Tx, accountID string, count int, updatedAt string) error {
	return execOne(tx.ExecContext(ctx, `UPDATE accounts SET asset_count=?, updated_at=? WHERE id=?`, count, updatedAt, accountID))
}

func (r Repo) SetPlanTx(ctx context.Context, tx *sql.Tx, accountID string, plan domain.PlanTier, updatedAt string) error {
	return execOne(tx.ExecContext(ctx, `UPDATE accounts SET plan_type=?, updated_at=? WHERE id=?`, string(plan), updatedAt, accountID))
}

// UpdateAccountProfileTx replaces the account's contact fields.
func (r Repo) UpdateAccountProfileTx(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	return execOne(tx.ExecContext(ctx, `UPDATE accounts SET email=?, company_name=?, updated_at=? WHERE id=?`,
		nullable(a.Email), nullable(a.CompanyName), a.UpdatedAt, a.ID))
}

// CountAssets returns the number of live assets owned by the account.
func (r Repo) CountAssets(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE account_id=?`, accountID).Scan(&n)
	return n, err
}

// --- assets ---

const assetSelect = `SELECT a.id,a.account_id,a.name,COALESCE(a.model,''),COALESCE(a.serial_number,''),COALESCE(a.location,''),
a.status,a.health_score,a.template_id,COALESCE(t.name,''),COALESCE(t.category,''),a.next_maintenance_at,a.created_at,a.updated_at
FROM assets a LEFT JOIN equipment_templates t ON t.id=a.template_id`

func scanAsset(row rowScanner) (domain.Asset, error) {
	var a domain.Asset
	var templateID, next sql.NullString
	err := row.Scan(&a.ID, &a.AccountID, &a.Name, &a.Model, &a.SerialNumber, &a.Location,
		&a.Status, &a.HealthScore, &templateID, &a.TemplateName, &a.Category, &next, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.TemplateID = ptrFromNull(templateID)
	a.NextMaintenanceAt = ptrFromNull(next)
	return a, err
}

func (r Repo) InsertAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,account_id,name,model,serial_number,location,status,health_score,template_id,next_maintenance_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.AccountID, a.Name, nullable(a.Model), nullable(a.SerialNumber), nullable(a.Location),
		a.Status, a.HealthScore, nullablePtr(a.TemplateID), nullablePtr(a.NextMaintenanceAt), a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAsset returns an asset owned by accountID.
func (r Repo) GetAsset(ctx context.Context, accountID, id string) (domain.Asset, error) {
	return scanAsset(r.DB.QueryRowContext(ctx, assetSelect+` WHERE a.id=? AND a.account_id=?`, id, accountID))
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, accountID, id string) (domain.Asset, error) {
	return scanAsset(tx.QueryRowContext(ctx, assetSelect+` WHERE a.id=? AND a.account_id=?`, id, accountID))
}

func (r Repo) ListAssets(ctx context.Context, accountID string, limit, offset int) ([]domain.Asset, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, assetSelect+` WHERE a.account_id=? ORDER BY a.created_at DESC, a.id ASC LIMIT ? OFFSET ?`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	return execOne(tx.ExecContext(ctx, `UPDATE assets SET name=?, model=?, serial_number=?, location=?, status=?, health_score=?, next_maintenance_at=?, updated_at=?
WHERE id=? AND account_id=?`,
		a.Name, nullable(a.Model), nullable(a.SerialNumber), nullable(a.Location), a.Status, a.HealthScore,
		nullablePtr(a.NextMaintenanceAt), a.UpdatedAt, a.ID, a.AccountID))
}

// DeleteAssetTx removes an owned asset; work orders and their tasks go with
// it through the foreign key cascade.
func (r Repo) DeleteAssetTx(ctx context.Context, tx *sql.Tx, accountID, id string) error {
	return execOne(tx.ExecContext(ctx, `DELETE FROM assets WHERE id=? AND account_id=?`, id, accountID))
}

func (r Repo) AssetStatusCounts(ctx context.Context, accountID string) ([]domain.StatusCount, error) {
	return r.statusCounts(ctx, `SELECT status, COUNT(*) FROM assets WHERE account_id=? GROUP BY status ORDER BY status`, accountID)
}

func (r Repo) AverageHealth(ctx context.Context, accountID string) (float64, error) {
	var avg sql.NullFloat64
	if err := r.DB.QueryRowContext(ctx, `SELECT AVG(health_score) FROM assets WHERE account_id=?`, accountID).Scan(&avg); err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

// UpcomingMaintenance lists assets whose next maintenance falls within
// [from, to], soonest first.
func (r Repo) UpcomingMaintenance(ctx context.Context, accountID, from, to string, limit int) ([]domain.Asset, error) {
	rows, err := r.DB.QueryContext(ctx, assetSelect+` WHERE a.account_id=? AND a.next_maintenance_at IS NOT NULL
AND a.next_maintenance_at BETWEEN ? AND ? ORDER BY a.next_maintenance_at ASC LIMIT ?`, accountID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- templates ---

const templateColumns = `id,name,category,COALESCE(description,''),COALESCE(manufacturer,'')`

func scanTemplate(row rowScanner) (domain.EquipmentTemplate, error) {
	var t domain.EquipmentTemplate
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Description, &t.Manufacturer)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.EquipmentTemplate, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM equipment_templates WHERE id=?`, id))
}

func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.EquipmentTemplate, error) {
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM equipment_templates WHERE id=?`, id))
}

// SearchTemplates filters the catalog by a name/description substring and
// category. Empty arguments do not filter.
func (r Repo) SearchTemplates(ctx context.Context, q, category string) ([]domain.EquipmentTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM equipment_templates`
	var clauses []string
	var args []any
	if q = strings.TrimSpace(q); q != "" {
		clauses = append(clauses, `(name LIKE ? OR description LIKE ?)`)
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	if category = strings.TrimSpace(category); category != "" {
		clauses = append(clauses, `category=?`)
		args = append(args, category)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY name ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.EquipmentTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) TemplateCategories(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT category FROM equipment_templates ORDER BY category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const checklistOrder = ` ORDER BY CASE priority WHEN 'Critical' THEN 4 WHEN 'High' THEN 3 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 1 ELSE 0 END DESC,
frequency_days ASC, order_index ASC, id ASC`

const authoredOrder = ` ORDER BY order_index ASC, id ASC`

// ListChecklist returns a template's checklist items in canonical order:
// priority rank descending, then cadence, then order index.
func (r Repo) ListChecklist(ctx context.Context, templateID string, activeOnly bool) ([]domain.ChecklistItem, error) {
	return r.listChecklist(ctx, r.DB, templateID, activeOnly, checklistOrder)
}

// ListChecklistAuthored returns items in the order the template defines
// them (order index, then id). Schedules break due-date ties this way.
func (r Repo) ListChecklistAuthored(ctx context.Context, templateID string, activeOnly bool) ([]domain.ChecklistItem, error) {
	return r.listChecklist(ctx, r.DB, templateID, activeOnly, authoredOrder)
}

func (r Repo) ListChecklistAuthoredTx(ctx context.Context, tx *sql.Tx, templateID string, activeOnly bool) ([]domain.ChecklistItem, error) {
	return r.listChecklist(ctx, tx, templateID, activeOnly, authoredOrder)
}

func (r Repo) listChecklist(ctx context.Context, q querier, templateID string, activeOnly bool, order string) ([]domain.ChecklistItem, error) {
	query := `SELECT id,template_id,title,task_text,frequency_days,priority,estimated_duration,order_index,is_active FROM checklist_items WHERE template_id=?`
	if activeOnly {
		query += ` AND is_active=1`
	}
	rows, err := q.QueryContext(ctx, query+order, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ChecklistItem{}
	for rows.Next() {
		var c domain.ChecklistItem
		if err := rows.Scan(&c.ID, &c.TemplateID, &c.Title, &c.TaskText, &c.FrequencyDays, &c.Priority, &c.EstimatedDuration, &c.OrderIndex, &c.Active); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- work orders ---

const workOrderSelect = `SELECT wo.id,wo.account_id,wo.asset_id,COALESCE(a.name,''),wo.checklist_template_id,wo.title,COALESCE(wo.description,''),
wo.priority,wo.status,wo.due_date,wo.completed_at,wo.created_at,wo.updated_at
FROM work_orders wo LEFT JOIN assets a ON a.id=wo.asset_id`

func scanWorkOrder(row rowScanner) (domain.WorkOrder, error) {
	var wo domain.WorkOrder
	var assetID, templateID, due, completed sql.NullString
	var status string
	err := row.Scan(&wo.ID, &wo.AccountID, &assetID, &wo.AssetName, &templateID, &wo.Title, &wo.Description,
		&wo.Priority, &status, &due, &completed, &wo.CreatedAt, &wo.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wo, ErrNotFound
	}
	wo.Status = domain.WorkOrderStatus(status)
	wo.AssetID = ptrFromNull(assetID)
	wo.ChecklistTemplateID = ptrFromNull(templateID)
	wo.DueDate = ptrFromNull(due)
	wo.CompletedAt = ptrFromNull(completed)
	return wo, err
}

func (r Repo) InsertWorkOrderTx(ctx context.Context, tx *sql.Tx, wo domain.WorkOrder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_orders(id,account_id,asset_id,checklist_template_id,title,description,priority,status,due_date,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		wo.ID, wo.AccountID, nullablePtr(wo.AssetID), nullablePtr(wo.ChecklistTemplateID), wo.Title, nullable(wo.Description),
		wo.Priority, string(wo.Status), nullablePtr(wo.DueDate), nullablePtr(wo.CompletedAt), wo.CreatedAt, wo.UpdatedAt)
	return err
}

func (r Repo) InsertWorkOrderTaskTx(ctx context.Context, tx *sql.Tx, t domain.WorkOrderTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_order_tasks(id,work_order_id,task_text,order_index,is_completed,completed_at,completed_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkOrderID, t.TaskText, t.OrderIndex, t.IsCompleted, nullablePtr(t.CompletedAt), nullablePtr(t.CompletedBy), t.CreatedAt)
	return err
}

// GetWorkOrder returns an owned work order with its tasks.
func (r Repo) GetWorkOrder(ctx context.Context, accountID, id string) (domain.WorkOrder, error) {
	return r.getWorkOrder(ctx, r.DB, accountID, id)
}

func (r Repo) GetWorkOrderTx(ctx context.Context, tx *sql.Tx, accountID, id string) (domain.WorkOrder, error) {
	return r.getWorkOrder(ctx, tx, accountID, id)
}

func (r Repo) getWorkOrder(ctx context.Context, q querier, accountID, id string) (domain.WorkOrder, error) {
	wo, err := scanWorkOrder(q.QueryRowContext(ctx, workOrderSelect+` WHERE wo.id=? AND wo.account_id=?`, id, accountID))
	if err != nil {
		return wo, err
	}
	wo.Tasks, err = r.listTasks(ctx, q, wo.ID)
	return wo, err
}

type WorkOrderFilters struct {
	AccountID string
	Status    string
	AssetID   string
	Priority  string
	Limit     int
	Offset    int
}

func (f WorkOrderFilters) where() (string, []any) {
	clauses := []string{"wo.account_id=?"}
	args := []any{f.AccountID}
	if f.Status != "" {
		clauses = append(clauses, "wo.status=?")
		args = append(args, f.Status)
	}
	if f.AssetID != "" {
		clauses = append(clauses, "wo.asset_id=?")
		args = append(args, f.AssetID)
	}
	if f.Priority != "" {
		clauses = append(clauses, "wo.priority=?")
		args = append(args, f.Priority)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListWorkOrders returns the newest work orders first, each with its tasks.
func (r Repo) ListWorkOrders(ctx context.Context, f WorkOrderFilters) ([]domain.WorkOrder, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	where, args := f.where()
	args = append(args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, workOrderSelect+where+` ORDER BY wo.created_at DESC, wo.id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, wo)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		tasks, err := r.listTasks(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Tasks = tasks
	}
	return res, nil
}

func (r Repo) CountWorkOrders(ctx context.Context, f WorkOrderFilters) (int, error) {
	where, args := f.where()
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_orders wo`+where, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateWorkOrderStatusTx(ctx context.Context, tx *sql.Tx, wo domain.WorkOrder) error {
	return execOne(tx.ExecContext(ctx, `UPDATE work_orders SET status=?, completed_at=?, updated_at=? WHERE id=? AND account_id=?`,
		string(wo.Status), nullablePtr(wo.CompletedAt), wo.UpdatedAt, wo.ID, wo.AccountID))
}

func (r Repo) DeleteWorkOrderTx(ctx context.Context, tx *sql.Tx, accountID, id string) error {
	return execOne(tx.ExecContext(ctx, `DELETE FROM work_orders WHERE id=? AND account_id=?`, id, accountID))
}

func (r Repo) WorkOrderStatusCounts(ctx context.Context, accountID string) ([]domain.StatusCount, error) {
	return r.statusCounts(ctx, `SELECT status, COUNT(*) FROM work_orders WHERE account_id=? GROUP BY status ORDER BY status`, accountID)
}

// --- work order tasks ---

const taskColumns = `id,work_order_id,task_text,order_index,is_completed,completed_at,completed_by,created_at`

func scanTask(row rowScanner) (domain.WorkOrderTask, error) {
	var t domain.WorkOrderTask
	var completedAt, completedBy sql.NullString
	err := row.Scan(&t.ID, &t.WorkOrderID, &t.TaskText, &t.OrderIndex, &t.IsCompleted, &completedAt, &completedBy, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.CompletedAt = ptrFromNull(completedAt)
	t.CompletedBy = ptrFromNull(completedBy)
	return t, err
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, workOrderID string) ([]domain.WorkOrderTask, error) {
	return r.listTasks(ctx, tx, workOrderID)
}

func (r Repo) listTasks(ctx context.Context, q querier, workOrderID string) ([]domain.WorkOrderTask, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM work_order_tasks WHERE work_order_id=? ORDER BY order_index ASC`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.WorkOrderTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, workOrderID, taskID string) (domain.WorkOrderTask, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM work_order_tasks WHERE id=? AND work_order_id=?`, taskID, workOrderID))
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.WorkOrderTask) error {
	return execOne(tx.ExecContext(ctx, `UPDATE work_order_tasks SET is_completed=?, completed_at=?, completed_by=? WHERE id=? AND work_order_id=?`,
		t.IsCompleted, nullablePtr(t.CompletedAt), nullablePtr(t.CompletedBy), t.ID, t.WorkOrderID))
}

func (r Repo) CountTasks(ctx context.Context, workOrderID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_order_tasks WHERE work_order_id=?`, workOrderID).Scan(&n)
	return n, err
}

// --- events ---

const eventColumns = `id,ts,type,COALESCE(account_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AccountID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events first. Empty filters match all.
func (r Repo) LatestEvents(ctx context.Context, limit int, accountID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var clauses []string
	var args []any
	for _, f := range []struct{ col, val string }{
		{"account_id", accountID}, {"type", evtType}, {"entity_kind", entityKind}, {"entity_id", entityID},
	} {
		if f.val != "" {
			clauses = append(clauses, f.col+"=?")
			args = append(args, f.val)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events`+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending
// order. An empty accountID spans all accounts.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, accountID string) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id>?`
	args := []any{cursor}
	if accountID != "" {
		query += ` AND account_id=?`
		args = append(args, accountID)
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY id ASC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context, accountID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id=?`
		args = append(args, accountID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

// --- helpers ---

func (r Repo) statusCounts(ctx context.Context, query, accountID string) ([]domain.StatusCount, error) {
	rows, err := r.DB.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StatusCount{}
	for rows.Next() {
		var c domain.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// execOne maps a write that touched no rows to ErrNotFound.
func execOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
