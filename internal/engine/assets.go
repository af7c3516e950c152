package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"upkeep/internal/domain"
	"upkeep/internal/events"
	"upkeep/internal/planner"
	"upkeep/internal/quota"
	"upkeep/internal/repo"
)

// AssetCreateOptions are parameters for creating an asset.
type AssetCreateOptions struct {
	AccountID    string `json:"account_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=200"`
	Model        string `json:"model" validate:"max=200"`
	SerialNumber string `json:"serial_number" validate:"max=200"`
	Location     string `json:"location" validate:"max=200"`
	Status       string `json:"status" validate:"max=50"`
	HealthScore  *int   `json:"health_score" validate:"omitempty,min=0,max=100"`
	TemplateID   string `json:"template_id"`
}

// CreateAsset inserts an asset if the account has a free slot. The quota
// read, the insert and the counter write share one transaction.
func (e Engine) CreateAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.TemplateID = strings.TrimSpace(opts.TemplateID)
	if err := validateStruct(opts); err != nil {
		return domain.Asset{}, err
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.Asset{}, e.fail(ctx, "create asset", err)
	}
	defer tx.Rollback()

	acct, err := e.Repo.GetAccountTx(ctx, tx, opts.AccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Asset{}, notFound("account")
	}
	if err != nil {
		return domain.Asset{}, e.fail(ctx, "create asset", err)
	}
	status := e.Quota.Evaluate(acct.Plan, acct.AssetCount)
	if err := status.Check(); err != nil {
		e.log(ctx).Info("asset quota reached",
			slog.String("account_id", acct.ID),
			slog.Int("limit", status.Limit),
			slog.Int("current", status.Current))
		return domain.Asset{}, err
	}

	now := e.now()
	a := domain.Asset{
		ID:           uuid.NewString(),
		AccountID:    acct.ID,
		Name:         opts.Name,
		Model:        strings.TrimSpace(opts.Model),
		SerialNumber: strings.TrimSpace(opts.SerialNumber),
		Location:     strings.TrimSpace(opts.Location),
		Status:       domain.DefaultAssetStatus,
		HealthScore:  domain.DefaultHealthScore,
		CreatedAt:    now.Format(time.RFC3339),
		UpdatedAt:    now.Format(time.RFC3339),
	}
	if s := strings.TrimSpace(opts.Status); s != "" {
		a.Status = s
	}
	if opts.HealthScore != nil {
		a.HealthScore = *opts.HealthScore
	}
	if opts.TemplateID != "" {
		tpl, err := e.Repo.GetTemplateTx(ctx, tx, opts.TemplateID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Asset{}, notFound("template")
		}
		if err != nil {
			return domain.Asset{}, e.fail(ctx, "create asset", err)
		}
		items, err := e.Repo.ListChecklistAuthoredTx(ctx, tx, tpl.ID, true)
		if err != nil {
			return domain.Asset{}, e.fail(ctx, "create asset", err)
		}
		sched, err := planner.Generate(items, e.planOptions(decimal.NewFromInt(1), now))
		if err != nil {
			return domain.Asset{}, e.fail(ctx, "create asset", err)
		}
		if next, ok := sched.NextDue(); ok {
			a.NextMaintenanceAt = optionalString(next.Format(time.RFC3339))
		}
		a.TemplateID = &tpl.ID
		a.TemplateName = tpl.Name
		a.Category = tpl.Category
	}
	if err := e.Repo.InsertAssetTx(ctx, tx, a); err != nil {
		return domain.Asset{}, e.fail(ctx, "insert asset", err)
	}
	if err := e.Repo.SetAssetCountTx(ctx, tx, acct.ID, quota.Increment(acct.AssetCount), a.CreatedAt); err != nil {
		return domain.Asset{}, e.fail(ctx, "increment asset count", err)
	}
	if err := w.Append(ctx, tx, events.AssetCreated, acct.ID, "asset", a.ID, acct.ID, events.EventPayload{
		"name":        a.Name,
		"template_id": a.TemplateID,
		"asset_count": quota.Increment(acct.AssetCount),
	}); err != nil {
		return domain.Asset{}, e.fail(ctx, "create asset", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, e.fail(ctx, "create asset", err)
	}
	return a, nil
}

// AssetUpdateOptions carries the fields to change; nil leaves a field as is.
type AssetUpdateOptions struct {
	AccountID    string  `json:"account_id" validate:"required"`
	ID           string  `json:"id" validate:"required"`
	Name         *string `json:"name" validate:"omitempty,min=1,max=200"`
	Model        *string `json:"model" validate:"omitempty,max=200"`
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=200"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	Status       *string `json:"status" validate:"omitempty,min=1,max=50"`
	HealthScore  *int    `json:"health_score" validate:"omitempty,min=0,max=100"`
}

func (e Engine) UpdateAsset(ctx context.Context, opts AssetUpdateOptions) (domain.Asset, error) {
	if opts.Name != nil {
		trimmed := strings.TrimSpace(*opts.Name)
		opts.Name = &trimmed
	}
	if err := validateStruct(opts); err != nil {
		return domain.Asset{}, err
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.Asset{}, e.fail(ctx, "update asset", err)
	}
	defer tx.Rollback()
	a, err := e.Repo.GetAssetTx(ctx, tx, opts.AccountID, opts.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Asset{}, notFoundOrForbidden("asset")
	}
	if err != nil {
		return domain.Asset{}, e.fail(ctx, "update asset", err)
	}
	changed := map[string]any{}
	if opts.Name != nil {
		a.Name = *opts.Name
		changed["name"] = a.Name
	}
	if opts.Model != nil {
		a.Model = strings.TrimSpace(*opts.Model)
		changed["model"] = a.Model
	}
	if opts.SerialNumber != nil {
		a.SerialNumber = strings.TrimSpace(*opts.SerialNumber)
		changed["serial_number"] = a.SerialNumber
	}
	if opts.Location != nil {
		a.Location = strings.TrimSpace(*opts.Location)
		changed["location"] = a.Location
	}
	if opts.Status != nil {
		a.Status = strings.TrimSpace(*opts.Status)
		changed["status"] = a.Status
	}
	if opts.HealthScore != nil {
		a.HealthScore = *opts.HealthScore
		changed["health_score"] = a.HealthScore
	}
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAssetTx(ctx, tx, a); err != nil {
		return domain.Asset{}, e.fail(ctx, "update asset", err)
	}
	if err := w.Append(ctx, tx, events.AssetUpdated, a.AccountID, "asset", a.ID, a.AccountID, events.EventPayload(changed)); err != nil {
		return domain.Asset{}, e.fail(ctx, "update asset", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, e.fail(ctx, "update asset", err)
	}
	return a, nil
}

func (e Engine) GetAsset(ctx context.Context, accountID, id string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, accountID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Asset{}, notFoundOrForbidden("asset")
	}
	return a, e.fail(ctx, "get asset", err)
}

// AssetPage is one page of assets plus the unpaged total.
type AssetPage struct {
	Items   []domain.Asset `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

func (e Engine) ListAssets(ctx context.Context, accountID string, limit, offset int) (AssetPage, error) {
	if offset < 0 {
		return AssetPage{}, invalid("offset", "must not be negative")
	}
	items, err := e.Repo.ListAssets(ctx, accountID, limit, offset)
	if err != nil {
		return AssetPage{}, e.fail(ctx, "list assets", err)
	}
	total, err := e.Repo.CountAssets(ctx, accountID)
	if err != nil {
		return AssetPage{}, e.fail(ctx, "count assets", err)
	}
	if items == nil {
		items = []domain.Asset{}
	}
	return AssetPage{Items: items, Total: total, HasMore: offset+len(items) < total}, nil
}

// DeleteAsset removes an asset with its work orders and tasks and releases
// its quota slot in the same transaction.
func (e Engine) DeleteAsset(ctx context.Context, accountID, id string) error {
	tx, w, err := e.begin(ctx)
	if err != nil {
		return e.fail(ctx, "delete asset", err)
	}
	defer tx.Rollback()
	acct, err := e.Repo.GetAccountTx(ctx, tx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundOrForbidden("asset")
	}
	if err != nil {
		return e.fail(ctx, "delete asset", err)
	}
	if err := e.Repo.DeleteAssetTx(ctx, tx, accountID, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundOrForbidden("asset")
		}
		return e.fail(ctx, "delete asset", err)
	}
	count := quota.Decrement(acct.AssetCount)
	if err := e.Repo.SetAssetCountTx(ctx, tx, accountID, count, e.timestamp()); err != nil {
		return e.fail(ctx, "decrement asset count", err)
	}
	if err := w.Append(ctx, tx, events.AssetDeleted, accountID, "asset", id, accountID, events.EventPayload{"asset_count": count}); err != nil {
		return e.fail(ctx, "delete asset", err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail(ctx, "delete asset", err)
	}
	return nil
}
