package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"upkeep/internal/domain"
	"upkeep/internal/planner"
	"upkeep/internal/repo"
)

// PlanOptions select the template and cadence for a generated schedule.
type PlanOptions struct {
	TemplateID string           `json:"template_id" validate:"required"`
	AssetName  string           `json:"asset_name" validate:"required,max=200"`
	Multiplier *decimal.Decimal `json:"multiplier" validate:"-"`
}

// Plan is a generated maintenance schedule for a prospective asset.
type Plan struct {
	Template       domain.EquipmentTemplate `json:"template"`
	AssetName      string                   `json:"asset_name"`
	Multiplier     decimal.Decimal          `json:"multiplier"`
	Schedule       []planner.ScheduledTask  `json:"schedule"`
	TotalScheduled int                      `json:"total_scheduled"`
}

func (e Engine) planOptions(multiplier decimal.Decimal, ref time.Time) planner.Options {
	opts := planner.Options{Multiplier: multiplier, Reference: ref}
	if e.Config != nil {
		opts.HorizonDays = e.Config.Planning.HorizonDays
		opts.Occurrences = e.Config.Planning.Occurrences
		opts.Limit = e.Config.Planning.Limit
	}
	return opts
}

// PlanForAsset expands the template's active checklist into the next
// occurrences within the planning horizon. The multiplier defaults to 1.
func (e Engine) PlanForAsset(ctx context.Context, opts PlanOptions) (Plan, error) {
	opts.TemplateID = strings.TrimSpace(opts.TemplateID)
	opts.AssetName = strings.TrimSpace(opts.AssetName)
	if err := validateStruct(opts); err != nil {
		return Plan{}, err
	}
	multiplier := decimal.NewFromInt(1)
	if opts.Multiplier != nil {
		multiplier = *opts.Multiplier
	}
	if multiplier.Sign() <= 0 {
		return Plan{}, invalid("multiplier", "must be positive")
	}
	tpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
	if errors.Is(err, repo.ErrNotFound) {
		return Plan{}, notFound("template")
	}
	if err != nil {
		return Plan{}, e.fail(ctx, "plan for asset", err)
	}
	items, err := e.Repo.ListChecklistAuthored(ctx, tpl.ID, true)
	if err != nil {
		return Plan{}, e.fail(ctx, "plan for asset", err)
	}
	sched, err := planner.Generate(items, e.planOptions(multiplier, e.now()))
	if errors.Is(err, planner.ErrInvalidMultiplier) {
		return Plan{}, invalid("multiplier", "must be positive")
	}
	if err != nil {
		return Plan{}, e.fail(ctx, "plan for asset", err)
	}
	return Plan{
		Template:       tpl,
		AssetName:      opts.AssetName,
		Multiplier:     multiplier,
		Schedule:       sched.Tasks,
		TotalScheduled: sched.TotalScheduled,
	}, nil
}

func (e Engine) ListTemplates(ctx context.Context) ([]domain.EquipmentTemplate, error) {
	return e.SearchTemplates(ctx, "", "")
}

func (e Engine) SearchTemplates(ctx context.Context, q, category string) ([]domain.EquipmentTemplate, error) {
	items, err := e.Repo.SearchTemplates(ctx, q, category)
	return items, e.fail(ctx, "search templates", err)
}

func (e Engine) TemplateCategories(ctx context.Context) ([]string, error) {
	items, err := e.Repo.TemplateCategories(ctx)
	return items, e.fail(ctx, "template categories", err)
}

func (e Engine) GetTemplate(ctx context.Context, id string) (domain.EquipmentTemplate, error) {
	tpl, err := e.Repo.GetTemplate(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.EquipmentTemplate{}, notFound("template")
	}
	return tpl, e.fail(ctx, "get template", err)
}

// ListChecklist returns the template's active checklist in canonical order.
func (e Engine) ListChecklist(ctx context.Context, templateID string) ([]domain.ChecklistItem, error) {
	if _, err := e.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListChecklist(ctx, templateID, true)
	return items, e.fail(ctx, "list checklist", err)
}
