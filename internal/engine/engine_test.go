package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/domain"
	"upkeep/internal/engine"
	"upkeep/internal/migrate"
	"upkeep/internal/repo"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type EngineTestSuite struct {
	suite.Suite
	eng engine.Engine
	ctx context.Context
}

func (s *EngineTestSuite) SetupTest() {
	conn, err := db.Open(db.Config{Workspace: s.T().TempDir()})
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	s.Require().NoError(migrate.Migrate(conn))
	s.eng = engine.New(conn, config.Default())
	s.eng.Now = func() time.Time { return fixedNow }
	s.ctx = context.Background()
	_, err = s.eng.EnsureAccount(s.ctx, engine.AccountProfile{ID: "acct-1", Email: "ops@example.com"})
	s.Require().NoError(err)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) createAsset(accountID, name string) domain.Asset {
	a, err := s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: accountID, Name: name})
	s.Require().NoError(err)
	return a
}

func (s *EngineTestSuite) createWorkOrder(tasks ...string) domain.WorkOrder {
	wo, err := s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{
		AccountID: "acct-1",
		Title:     "Quarterly service",
		Tasks:     tasks,
	})
	s.Require().NoError(err)
	return wo
}

func (s *EngineTestSuite) toggle(woID, taskID string, done bool) engine.ToggleResult {
	res, err := s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{
		AccountID: "acct-1", WorkOrderID: woID, TaskID: taskID, Completed: &done,
	})
	s.Require().NoError(err)
	return res
}

// --- accounts and quota ---

func (s *EngineTestSuite) TestEnsureAccountProvisionsStarter() {
	acct, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(domain.PlanStarter, acct.Plan)
	s.Equal(0, acct.AssetCount)

	again, err := s.eng.EnsureAccount(s.ctx, engine.AccountProfile{ID: "acct-1"})
	s.Require().NoError(err)
	s.Equal(acct.CreatedAt, again.CreatedAt)

	_, err = s.eng.EnsureAccount(s.ctx, engine.AccountProfile{ID: "acct-2", Email: "not-an-email"})
	s.ErrorIs(err, engine.ErrValidation)
}

func (s *EngineTestSuite) TestStarterQuotaBoundary() {
	for i := 0; i < 3; i++ {
		s.createAsset("acct-1", "Compressor")
	}
	st, err := s.eng.QuotaStatus(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.False(st.Allowed)
	s.Equal(0, st.Remaining)

	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "One too many"})
	qe, ok := engine.IsQuotaExceeded(err)
	s.Require().True(ok, "expected quota error, got %v", err)
	s.Equal(3, qe.Limit)
	s.Equal(3, qe.Current)
	s.True(qe.UpgradeRequired)

	page, err := s.eng.ListAssets(s.ctx, "acct-1", 50, 0)
	s.Require().NoError(err)
	s.Len(page.Items, 3)
	s.Equal(3, page.Total)
	s.False(page.HasMore)

	page, err = s.eng.ListAssets(s.ctx, "acct-1", 2, 0)
	s.Require().NoError(err)
	s.Len(page.Items, 2)
	s.Equal(3, page.Total)
	s.True(page.HasMore)

	page, err = s.eng.ListAssets(s.ctx, "acct-1", 2, 2)
	s.Require().NoError(err)
	s.Len(page.Items, 1)
	s.False(page.HasMore)
}

func (s *EngineTestSuite) TestGrowthQuotaDoesNotRequireUpgrade() {
	_, err := s.eng.UpgradePlan(s.ctx, "acct-1", "growth")
	s.Require().NoError(err)
	for i := 0; i < 50; i++ {
		s.createAsset("acct-1", "Cooler")
	}
	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "Cooler 51"})
	qe, ok := engine.IsQuotaExceeded(err)
	s.Require().True(ok)
	s.Equal(50, qe.Limit)
	s.False(qe.UpgradeRequired)

	_, err = s.eng.UpgradePlan(s.ctx, "acct-1", "platinum")
	s.ErrorIs(err, engine.ErrValidation)
}

func (s *EngineTestSuite) TestConcurrentCreatesAtBoundary() {
	s.createAsset("acct-1", "first")
	s.createAsset("acct-1", "second")

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "racer"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		_, ok := engine.IsQuotaExceeded(err)
		s.True(ok, "unexpected error: %v", err)
	}
	s.Equal(1, succeeded)
	acct, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(3, acct.AssetCount)
}

func (s *EngineTestSuite) TestCreateAssetDefaultsAndTemplate() {
	a, err := s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "  Roof unit  ", TemplateID: "tpl-rooftop-hvac"})
	s.Require().NoError(err)
	s.Equal("Roof unit", a.Name)
	s.Equal(domain.DefaultAssetStatus, a.Status)
	s.Equal(domain.DefaultHealthScore, a.HealthScore)
	s.Require().NotNil(a.NextMaintenanceAt)
	s.Equal("2024-01-31T00:00:00Z", *a.NextMaintenanceAt)

	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "x", TemplateID: "tpl-missing"})
	s.ErrorIs(err, engine.ErrNotFound)
	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "   "})
	s.ErrorIs(err, engine.ErrValidation)

	acct, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(1, acct.AssetCount)
}

func (s *EngineTestSuite) TestDeleteAssetCascades() {
	a := s.createAsset("acct-1", "Oven")
	wo, err := s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{
		AccountID: "acct-1", AssetID: a.ID, Title: "Clean", Tasks: []string{"burners", "door"},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.eng.DeleteAsset(s.ctx, "acct-1", a.ID))

	_, err = s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	n, err := s.eng.Repo.CountTasks(s.ctx, wo.ID)
	s.Require().NoError(err)
	s.Zero(n)
	acct, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(0, acct.AssetCount)

	err = s.eng.DeleteAsset(s.ctx, "acct-1", a.ID)
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
}

func (s *EngineTestSuite) TestDeleteAssetFloorsCounterAtZero() {
	a := s.createAsset("acct-1", "Forklift")
	tx, err := s.eng.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.eng.Repo.SetAssetCountTx(s.ctx, tx, "acct-1", 0, fixedNow.Format(time.RFC3339)))
	s.Require().NoError(tx.Commit())

	s.Require().NoError(s.eng.DeleteAsset(s.ctx, "acct-1", a.ID))
	acct, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(0, acct.AssetCount)
}

func (s *EngineTestSuite) TestForeignAccountCannotSeeAsset() {
	_, err := s.eng.EnsureAccount(s.ctx, engine.AccountProfile{ID: "acct-2"})
	s.Require().NoError(err)
	a := s.createAsset("acct-1", "Private")

	_, err = s.eng.GetAsset(s.ctx, "acct-2", a.ID)
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	_, err = s.eng.GetAsset(s.ctx, "acct-2", "missing")
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	s.ErrorIs(s.eng.DeleteAsset(s.ctx, "acct-2", a.ID), engine.ErrNotFoundOrForbidden)

	_, err = s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-2", AssetID: a.ID, Title: "steal"})
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	page, err := s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-2"})
	s.Require().NoError(err)
	s.Zero(page.Total)
}

func (s *EngineTestSuite) TestUpdateAsset() {
	a := s.createAsset("acct-1", "Cooler")
	health := 72
	status := "Needs Service"
	updated, err := s.eng.UpdateAsset(s.ctx, engine.AssetUpdateOptions{AccountID: "acct-1", ID: a.ID, HealthScore: &health, Status: &status})
	s.Require().NoError(err)
	s.Equal(72, updated.HealthScore)
	s.Equal("Needs Service", updated.Status)
	s.Equal("Cooler", updated.Name)

	bad := 101
	_, err = s.eng.UpdateAsset(s.ctx, engine.AssetUpdateOptions{AccountID: "acct-1", ID: a.ID, HealthScore: &bad})
	s.ErrorIs(err, engine.ErrValidation)
}

// --- work orders ---

func (s *EngineTestSuite) TestCreateWorkOrder() {
	wo := s.createWorkOrder("drain", "oil", "filter")
	s.Equal(domain.StatusOpen, wo.Status)
	s.Equal(domain.DefaultWorkOrderPriority, wo.Priority)
	s.Nil(wo.CompletedAt)
	s.Require().Len(wo.Tasks, 3)
	for i, task := range wo.Tasks {
		s.Equal(i, task.OrderIndex)
		s.False(task.IsCompleted)
	}

	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal([]string{"drain", "oil", "filter"}, taskTexts(got.Tasks))
}

func (s *EngineTestSuite) TestCreateWorkOrderValidation() {
	_, err := s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "  "})
	var verr *engine.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Equal("title", verr.Field)

	_, err = s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", Priority: "Whenever"})
	s.ErrorIs(err, engine.ErrValidation)
	_, err = s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", DueDate: "next week"})
	s.ErrorIs(err, engine.ErrValidation)
	_, err = s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", ChecklistTemplateID: "tpl-missing"})
	s.ErrorIs(err, engine.ErrNotFound)

	page, err := s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-1"})
	s.Require().NoError(err)
	s.Zero(page.Total)
}

func (s *EngineTestSuite) TestCreateWorkOrderRejectsBlankTask() {
	_, err := s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", Tasks: []string{"ok", ""}})
	s.ErrorIs(err, engine.ErrValidation)
	page, err := s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-1"})
	s.Require().NoError(err)
	s.Zero(page.Total)
}

func (s *EngineTestSuite) TestDueDateNormalized() {
	wo, err := s.eng.CreateWorkOrder(s.ctx, engine.WorkOrderCreateOptions{AccountID: "acct-1", Title: "x", DueDate: "2024-02-15"})
	s.Require().NoError(err)
	s.Require().NotNil(wo.DueDate)
	s.Equal("2024-02-15T00:00:00Z", *wo.DueDate)
}

func (s *EngineTestSuite) TestSetStatusStampsAndClearsCompletedAt() {
	wo := s.createWorkOrder()
	wo, err := s.eng.SetWorkOrderStatus(s.ctx, "acct-1", wo.ID, "Completed")
	s.Require().NoError(err)
	s.Require().NotNil(wo.CompletedAt)
	s.Equal(fixedNow.Format(time.RFC3339), *wo.CompletedAt)

	wo, err = s.eng.SetWorkOrderStatus(s.ctx, "acct-1", wo.ID, "In Progress")
	s.Require().NoError(err)
	s.Nil(wo.CompletedAt)

	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInProgress, got.Status)
	s.Nil(got.CompletedAt)
}

func (s *EngineTestSuite) TestInvalidStatusLeavesOrderUnchanged() {
	wo := s.createWorkOrder()
	_, err := s.eng.SetWorkOrderStatus(s.ctx, "acct-1", wo.ID, "Paused")
	s.ErrorIs(err, engine.ErrInvalidStatus)
	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusOpen, got.Status)

	_, err = s.eng.SetWorkOrderStatus(s.ctx, "acct-1", "missing", "Completed")
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
}

func (s *EngineTestSuite) TestToggleAllTasksAutoCompletes() {
	wo := s.createWorkOrder("a", "b", "c")
	res := s.toggle(wo.ID, wo.Tasks[0].ID, true)
	s.False(res.AutoCompleted)
	s.Equal(domain.StatusOpen, res.WorkOrder.Status)
	s.Nil(res.WorkOrder.CompletedAt)
	s.Require().NotNil(res.Task.CompletedBy)
	s.Equal("acct-1", *res.Task.CompletedBy)

	res = s.toggle(wo.ID, wo.Tasks[1].ID, true)
	s.False(res.AutoCompleted)
	s.Equal(domain.StatusOpen, res.WorkOrder.Status)

	res = s.toggle(wo.ID, wo.Tasks[2].ID, true)
	s.True(res.AutoCompleted)
	s.Equal(domain.StatusCompleted, res.WorkOrder.Status)
	s.Require().NotNil(res.WorkOrder.CompletedAt)
	s.Equal(fixedNow.Format(time.RFC3339), *res.WorkOrder.CompletedAt)

	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, got.Status)
	s.Require().NotNil(got.CompletedAt)
	s.Equal(fixedNow.Format(time.RFC3339), *got.CompletedAt)
}

func (s *EngineTestSuite) TestConcurrentTogglesCompleteOnce() {
	const tasks = 6
	names := make([]string, tasks)
	for i := range names {
		names[i] = "step"
	}
	wo := s.createWorkOrder(names...)

	var wg sync.WaitGroup
	errs := make([]error, tasks)
	fired := make([]bool, tasks)
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done := true
			res, err := s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{
				AccountID: "acct-1", WorkOrderID: wo.ID, TaskID: wo.Tasks[i].ID, Completed: &done,
			})
			errs[i] = err
			fired[i] = res.AutoCompleted
		}(i)
	}
	wg.Wait()

	autoCompleted := 0
	for i := range errs {
		s.Require().NoError(errs[i])
		if fired[i] {
			autoCompleted++
		}
	}
	s.Equal(1, autoCompleted)

	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, got.Status)
	s.Require().NotNil(got.CompletedAt)
	s.Equal(fixedNow.Format(time.RFC3339), *got.CompletedAt)
	for _, t := range got.Tasks {
		s.True(t.IsCompleted, t.ID)
	}
}

func (s *EngineTestSuite) TestUntoggleDoesNotRevertCompletion() {
	wo := s.createWorkOrder("only")
	s.toggle(wo.ID, wo.Tasks[0].ID, true)
	res := s.toggle(wo.ID, wo.Tasks[0].ID, false)
	s.False(res.AutoCompleted)
	s.Equal(domain.StatusCompleted, res.WorkOrder.Status)
	s.False(res.Task.IsCompleted)
	s.Nil(res.Task.CompletedAt)
	s.Nil(res.Task.CompletedBy)
}

func (s *EngineTestSuite) TestCascadeOverridesCancelled() {
	wo := s.createWorkOrder("only")
	_, err := s.eng.SetWorkOrderStatus(s.ctx, "acct-1", wo.ID, "Cancelled")
	s.Require().NoError(err)
	res := s.toggle(wo.ID, wo.Tasks[0].ID, true)
	s.True(res.AutoCompleted)
	s.Equal(domain.StatusCompleted, res.WorkOrder.Status)
}

func (s *EngineTestSuite) TestZeroTaskOrderNeverAutoCompletes() {
	wo := s.createWorkOrder()
	s.Empty(wo.Tasks)

	wo, err := s.eng.SetWorkOrderStatus(s.ctx, "acct-1", wo.ID, "In Progress")
	s.Require().NoError(err)
	s.Equal(domain.StatusInProgress, wo.Status)

	other := s.createWorkOrder("elsewhere")
	done := true
	_, err = s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{AccountID: "acct-1", WorkOrderID: wo.ID, TaskID: other.Tasks[0].ID, Completed: &done})
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)

	got, err := s.eng.GetWorkOrder(s.ctx, "acct-1", wo.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusInProgress, got.Status)
	s.Nil(got.CompletedAt)
	s.Empty(got.Tasks)

	evts, err := s.eng.ListEvents(s.ctx, "acct-1", 50, "work_order.completed", "", "")
	s.Require().NoError(err)
	s.Empty(evts)
}

func (s *EngineTestSuite) TestToggleRejectsForeignAndMissing() {
	wo := s.createWorkOrder("a")
	other := s.createWorkOrder("b")
	done := true

	_, err := s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{AccountID: "acct-1", WorkOrderID: wo.ID, TaskID: other.Tasks[0].ID, Completed: &done})
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	_, err = s.eng.EnsureAccount(s.ctx, engine.AccountProfile{ID: "acct-2"})
	s.Require().NoError(err)
	_, err = s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{AccountID: "acct-2", WorkOrderID: wo.ID, TaskID: wo.Tasks[0].ID, Completed: &done})
	s.ErrorIs(err, engine.ErrNotFoundOrForbidden)
	_, err = s.eng.ToggleTask(s.ctx, engine.TaskToggleOptions{AccountID: "acct-1", WorkOrderID: wo.ID, TaskID: wo.Tasks[0].ID})
	s.ErrorIs(err, engine.ErrValidation)
}

func (s *EngineTestSuite) TestListWorkOrdersFilters() {
	a := s.createWorkOrder("x")
	s.createWorkOrder("y")
	_, err := s.eng.SetWorkOrderStatus(s.ctx, "acct-1", a.ID, "InProgress")
	s.Require().NoError(err)

	page, err := s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-1", Status: "In Progress"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal(a.ID, page.Items[0].ID)

	page, err = s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-1", Limit: 1})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Len(page.Items, 1)
	s.True(page.HasMore)

	_, err = s.eng.ListWorkOrders(s.ctx, repo.WorkOrderFilters{AccountID: "acct-1", Status: "Paused"})
	s.ErrorIs(err, engine.ErrInvalidStatus)
}

func (s *EngineTestSuite) TestDeleteWorkOrder() {
	wo := s.createWorkOrder("a", "b")
	s.Require().NoError(s.eng.DeleteWorkOrder(s.ctx, "acct-1", wo.ID))
	n, err := s.eng.Repo.CountTasks(s.ctx, wo.ID)
	s.Require().NoError(err)
	s.Zero(n)
	s.ErrorIs(s.eng.DeleteWorkOrder(s.ctx, "acct-1", wo.ID), engine.ErrNotFoundOrForbidden)
}

func (s *EngineTestSuite) TestUpdateAccountProfile() {
	company := "  Acme Facilities  "
	acct, err := s.eng.UpdateAccountProfile(s.ctx, engine.AccountProfileUpdate{AccountID: "acct-1", CompanyName: &company})
	s.Require().NoError(err)
	s.Equal("Acme Facilities", acct.CompanyName)
	s.Equal("ops@example.com", acct.Email)

	evts, err := s.eng.ListEvents(s.ctx, "acct-1", 10, "account.updated", "account", "acct-1")
	s.Require().NoError(err)
	s.Require().Len(evts, 1)
	s.Contains(evts[0].Payload, "Acme Facilities")
	s.NotContains(evts[0].Payload, "email")

	_, err = s.eng.UpdateAccountProfile(s.ctx, engine.AccountProfileUpdate{AccountID: "acct-1", CompanyName: &company})
	s.Require().NoError(err)
	evts, err = s.eng.ListEvents(s.ctx, "acct-1", 10, "account.updated", "account", "acct-1")
	s.Require().NoError(err)
	s.Len(evts, 1)

	bad := "not-an-email"
	_, err = s.eng.UpdateAccountProfile(s.ctx, engine.AccountProfileUpdate{AccountID: "acct-1", Email: &bad})
	var verr *engine.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("email", verr.Field)

	cleared := ""
	acct, err = s.eng.UpdateAccountProfile(s.ctx, engine.AccountProfileUpdate{AccountID: "acct-1", Email: &cleared})
	s.Require().NoError(err)
	s.Empty(acct.Email)
	got, err := s.eng.GetAccount(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Empty(got.Email)
	s.Equal("Acme Facilities", got.CompanyName)

	_, err = s.eng.UpdateAccountProfile(s.ctx, engine.AccountProfileUpdate{AccountID: "ghost", CompanyName: &company})
	s.ErrorIs(err, engine.ErrNotFound)
}

// --- planning ---

func (s *EngineTestSuite) TestPlanForAsset() {
	plan, err := s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-rooftop-hvac", AssetName: "Roof 1"})
	s.Require().NoError(err)
	s.Equal("Rooftop HVAC Unit", plan.Template.Name)
	s.True(plan.Multiplier.Equal(decimal.NewFromInt(1)))
	s.Equal(5, plan.TotalScheduled)
	ids := make([]string, 0, len(plan.Schedule))
	days := make([]int, 0, len(plan.Schedule))
	for _, t := range plan.Schedule {
		ids = append(ids, t.ChecklistID)
		days = append(days, t.DaysFromNow)
	}
	s.Equal([]int{30, 60, 60, 90, 90}, days)
	s.Equal([]string{"chk-hvac-filter", "chk-hvac-filter", "chk-hvac-belts", "chk-hvac-filter", "chk-hvac-coils"}, ids)
}

func (s *EngineTestSuite) TestPlanBreaksTiesByAuthoredOrder() {
	_, err := s.eng.DB.ExecContext(s.ctx, `INSERT INTO equipment_templates (id, name, category) VALUES ('tpl-tie', 'Tie', 'Test')`)
	s.Require().NoError(err)
	_, err = s.eng.DB.ExecContext(s.ctx, `INSERT INTO checklist_items (id, template_id, title, task_text, frequency_days, priority, order_index) VALUES
		('chk-first', 'tpl-tie', 'First', 'first', 30, 'Low', 0),
		('chk-second', 'tpl-tie', 'Second', 'second', 30, 'Critical', 1)`)
	s.Require().NoError(err)

	plan, err := s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-tie", AssetName: "Bench"})
	s.Require().NoError(err)
	ids := make([]string, 0, len(plan.Schedule))
	for _, t := range plan.Schedule {
		ids = append(ids, t.ChecklistID)
	}
	s.Equal([]string{"chk-first", "chk-second", "chk-first", "chk-second", "chk-first", "chk-second"}, ids)

	items, err := s.eng.ListChecklist(s.ctx, "tpl-tie")
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("chk-second", items[0].ID)
}

func (s *EngineTestSuite) TestPlanForAssetMultiplier() {
	two := decimal.NewFromInt(2)
	plan, err := s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-rooftop-hvac", AssetName: "Roof 1", Multiplier: &two})
	s.Require().NoError(err)
	s.Len(plan.Schedule, 9)
	s.Equal(9, plan.TotalScheduled)
	s.Equal(15, plan.Schedule[0].DaysFromNow)
}

func (s *EngineTestSuite) TestPlanForAssetErrors() {
	zero := decimal.Zero
	_, err := s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-rooftop-hvac", AssetName: "Roof", Multiplier: &zero})
	s.ErrorIs(err, engine.ErrValidation)
	_, err = s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-rooftop-hvac"})
	s.ErrorIs(err, engine.ErrValidation)
	_, err = s.eng.PlanForAsset(s.ctx, engine.PlanOptions{TemplateID: "tpl-missing", AssetName: "Roof"})
	s.ErrorIs(err, engine.ErrNotFound)
}

func (s *EngineTestSuite) TestChecklistSkipsInactive() {
	items, err := s.eng.ListChecklist(s.ctx, "tpl-commercial-oven")
	s.Require().NoError(err)
	for _, it := range items {
		s.NotEqual("chk-oven-fan", it.ID)
	}
	_, err = s.eng.ListChecklist(s.ctx, "tpl-missing")
	s.ErrorIs(err, engine.ErrNotFound)
}

// --- dashboard, keys, events ---

func (s *EngineTestSuite) TestDashboard() {
	_, err := s.eng.UpgradePlan(s.ctx, "acct-1", "growth")
	s.Require().NoError(err)
	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "Truck", TemplateID: "tpl-forklift"})
	s.Require().NoError(err)
	low := 55
	_, err = s.eng.CreateAsset(s.ctx, engine.AssetCreateOptions{AccountID: "acct-1", Name: "Roof", TemplateID: "tpl-rooftop-hvac", HealthScore: &low})
	s.Require().NoError(err)
	s.createWorkOrder("a")

	d, err := s.eng.Dashboard(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(78, d.AverageHealth)
	s.Equal([]domain.StatusCount{{Status: "Running", Count: 2}}, d.AssetStatus)
	s.Equal([]domain.StatusCount{{Status: "Open", Count: 1}}, d.WorkOrderStatus)
	s.Len(d.RecentWorkOrders, 1)
	s.Require().Len(d.Upcoming, 1)
	s.Equal("Truck", d.Upcoming[0].Name)
	s.Equal(48, d.Quota.Remaining)
}

func (s *EngineTestSuite) TestAPIKeyLifecycle() {
	created, err := s.eng.CreateAPIKey(s.ctx, "acct-1", "ci")
	s.Require().NoError(err)
	s.NotEmpty(created.Key)

	key, err := s.eng.AuthenticateAPIKey(s.ctx, created.Key)
	s.Require().NoError(err)
	s.Equal("acct-1", key.AccountID)

	keys, err := s.eng.ListAPIKeys(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Len(keys, 1)

	s.Require().NoError(s.eng.DeleteAPIKey(s.ctx, "acct-1", created.ID))
	_, err = s.eng.AuthenticateAPIKey(s.ctx, created.Key)
	s.ErrorIs(err, engine.ErrNotFound)
}

func (s *EngineTestSuite) TestEventsRecorded() {
	wo := s.createWorkOrder("a")
	s.toggle(wo.ID, wo.Tasks[0].ID, true)
	evts, err := s.eng.ListEvents(s.ctx, "acct-1", 10, "", "work_order", wo.ID)
	s.Require().NoError(err)
	types := make([]string, 0, len(evts))
	for _, e := range evts {
		types = append(types, e.Type)
	}
	s.Equal([]string{"work_order.completed", "work_order.created"}, types)
}

func TestBackendFailureHidesDetail(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, nil)
	require.NoError(t, conn.Close())

	_, err = eng.GetAccount(context.Background(), "acct-1")
	require.ErrorIs(t, err, engine.ErrBackend)
	assert.NotContains(t, err.Error(), "sql")
	assert.NotContains(t, err.Error(), "closed")
}

func taskTexts(tasks []domain.WorkOrderTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.TaskText)
	}
	return out
}
