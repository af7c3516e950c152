package engine

import (
	"context"
	"math"
	"time"

	"upkeep/internal/domain"
	"upkeep/internal/quota"
	"upkeep/internal/repo"
)

const (
	dashboardRecentLimit   = 5
	dashboardUpcomingLimit = 5
	dashboardUpcomingDays  = 7
)

type Dashboard struct {
	Account          domain.Account       `json:"account"`
	Quota            quota.Status         `json:"quota"`
	AssetStatus      []domain.StatusCount `json:"asset_status"`
	WorkOrderStatus  []domain.StatusCount `json:"work_order_status"`
	RecentWorkOrders []domain.WorkOrder   `json:"recent_work_orders"`
	AverageHealth    int                  `json:"average_health"`
	Upcoming         []domain.Asset       `json:"upcoming_maintenance"`
}

// Dashboard summarizes an account: status counts, the latest work orders,
// average asset health and maintenance due in the next week.
func (e Engine) Dashboard(ctx context.Context, accountID string) (Dashboard, error) {
	acct, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Account: acct, Quota: e.Quota.Evaluate(acct.Plan, acct.AssetCount)}
	if d.AssetStatus, err = e.Repo.AssetStatusCounts(ctx, accountID); err != nil {
		return Dashboard{}, e.fail(ctx, "dashboard asset status", err)
	}
	if d.WorkOrderStatus, err = e.Repo.WorkOrderStatusCounts(ctx, accountID); err != nil {
		return Dashboard{}, e.fail(ctx, "dashboard work order status", err)
	}
	recent, err := e.Repo.ListWorkOrders(ctx, repo.WorkOrderFilters{AccountID: accountID, Limit: dashboardRecentLimit})
	if err != nil {
		return Dashboard{}, e.fail(ctx, "dashboard recent work orders", err)
	}
	if recent == nil {
		recent = []domain.WorkOrder{}
	}
	d.RecentWorkOrders = recent
	avg, err := e.Repo.AverageHealth(ctx, accountID)
	if err != nil {
		return Dashboard{}, e.fail(ctx, "dashboard health", err)
	}
	d.AverageHealth = int(math.Round(avg))

	now := e.now()
	upcoming, err := e.Repo.UpcomingMaintenance(ctx, accountID,
		now.Format(time.RFC3339),
		now.Add(dashboardUpcomingDays*24*time.Hour).Format(time.RFC3339),
		dashboardUpcomingLimit)
	if err != nil {
		return Dashboard{}, e.fail(ctx, "dashboard upcoming maintenance", err)
	}
	if upcoming == nil {
		upcoming = []domain.Asset{}
	}
	d.Upcoming = upcoming
	return d, nil
}
