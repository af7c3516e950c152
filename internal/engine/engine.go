package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"upkeep/internal/config"
	"upkeep/internal/domain"
	"upkeep/internal/events"
	"upkeep/internal/quota"
	"upkeep/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Quota  quota.Ceilings
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	ceilings := quota.Ceilings{}
	for _, tier := range domain.PlanTiers {
		if v := cfg.MaxAssets(tier); v > 0 {
			ceilings[tier] = v
		}
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Quota:  ceilings,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) timestamp() string {
	return e.now().Format(time.RFC3339)
}

// begin opens a write transaction with the event writer bound to the
// engine clock.
func (e Engine) begin(ctx context.Context) (*sql.Tx, events.Writer, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, events.Writer{}, err
	}
	w := e.Events
	w.Now = e.now
	return tx, w, nil
}

type loggerKey struct{}

// WithLogger attaches a request-scoped logger used by engine operations.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFrom returns the request-scoped logger, or the default logger.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func (e Engine) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// --- accounts ---

// AccountProfile identifies the caller of an account-scoped operation.
type AccountProfile struct {
	ID          string `json:"id" validate:"required,max=128"`
	Email       string `json:"email" validate:"omitempty,email"`
	CompanyName string `json:"company_name" validate:"max=200"`
}

// EnsureAccount returns the account, provisioning it on the starter plan the
// first time it is seen.
func (e Engine) EnsureAccount(ctx context.Context, p AccountProfile) (domain.Account, error) {
	p.ID = strings.TrimSpace(p.ID)
	if err := validateStruct(p); err != nil {
		return domain.Account{}, err
	}
	acct, err := e.Repo.GetAccount(ctx, p.ID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, e.fail(ctx, "get account", err)
	}

	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, e.fail(ctx, "ensure account", err)
	}
	defer tx.Rollback()
	acct, err = e.Repo.GetAccountTx(ctx, tx, p.ID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, e.fail(ctx, "ensure account", err)
	}
	now := e.timestamp()
	acct = domain.Account{
		ID:          p.ID,
		Email:       p.Email,
		CompanyName: p.CompanyName,
		Plan:        domain.PlanStarter,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertAccountTx(ctx, tx, acct); err != nil {
		return domain.Account{}, e.fail(ctx, "insert account", err)
	}
	if err := w.Append(ctx, tx, events.AccountCreated, acct.ID, "account", acct.ID, acct.ID, events.EventPayload{"plan_type": acct.Plan}); err != nil {
		return domain.Account{}, e.fail(ctx, "ensure account", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, e.fail(ctx, "ensure account", err)
	}
	e.log(ctx).Info("account provisioned", slog.String("account_id", acct.ID))
	return acct, nil
}

func (e Engine) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	acct, err := e.Repo.GetAccount(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, notFound("account")
	}
	return acct, e.fail(ctx, "get account", err)
}

// QuotaStatus reports whether the account can add another asset.
func (e Engine) QuotaStatus(ctx context.Context, accountID string) (quota.Status, error) {
	acct, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return quota.Status{}, err
	}
	return e.Quota.Evaluate(acct.Plan, acct.AssetCount), nil
}

// UpgradePlan moves the account to another tier.
func (e Engine) UpgradePlan(ctx context.Context, accountID, plan string) (domain.Account, error) {
	tier, err := quota.ParseTier(strings.TrimSpace(plan))
	if err != nil {
		return domain.Account{}, invalid("plan_type", "must be one of starter growth scale")
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, e.fail(ctx, "upgrade plan", err)
	}
	defer tx.Rollback()
	acct, err := e.Repo.GetAccountTx(ctx, tx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, notFound("account")
	}
	if err != nil {
		return domain.Account{}, e.fail(ctx, "upgrade plan", err)
	}
	prev := acct.Plan
	acct.Plan = tier
	acct.UpdatedAt = e.timestamp()
	if err := e.Repo.SetPlanTx(ctx, tx, acct.ID, tier, acct.UpdatedAt); err != nil {
		return domain.Account{}, e.fail(ctx, "upgrade plan", err)
	}
	if err := w.Append(ctx, tx, events.AccountPlanChanged, acct.ID, "account", acct.ID, acct.ID, events.EventPayload{"from": prev, "to": tier}); err != nil {
		return domain.Account{}, e.fail(ctx, "upgrade plan", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, e.fail(ctx, "upgrade plan", err)
	}
	return acct, nil
}

// AccountProfileUpdate changes the contact fields of an account. Nil fields
// are left as they are; an empty string clears the field.
type AccountProfileUpdate struct {
	AccountID   string  `json:"account_id" validate:"required"`
	Email       *string `json:"email"`
	CompanyName *string `json:"company_name" validate:"omitempty,max=200"`
}

// UpdateAccountProfile edits the account's email and company name.
func (e Engine) UpdateAccountProfile(ctx context.Context, opts AccountProfileUpdate) (domain.Account, error) {
	if err := validateStruct(opts); err != nil {
		return domain.Account{}, err
	}
	if opts.Email != nil {
		email := strings.TrimSpace(*opts.Email)
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				return domain.Account{}, invalid("email", "must be a valid email address")
			}
		}
		opts.Email = &email
	}
	if opts.CompanyName != nil {
		company := strings.TrimSpace(*opts.CompanyName)
		opts.CompanyName = &company
	}
	tx, w, err := e.begin(ctx)
	if err != nil {
		return domain.Account{}, e.fail(ctx, "update account", err)
	}
	defer tx.Rollback()
	acct, err := e.Repo.GetAccountTx(ctx, tx, opts.AccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, notFound("account")
	}
	if err != nil {
		return domain.Account{}, e.fail(ctx, "update account", err)
	}
	changed := events.EventPayload{}
	if opts.Email != nil && *opts.Email != acct.Email {
		acct.Email = *opts.Email
		changed["email"] = acct.Email
	}
	if opts.CompanyName != nil && *opts.CompanyName != acct.CompanyName {
		acct.CompanyName = *opts.CompanyName
		changed["company_name"] = acct.CompanyName
	}
	if len(changed) == 0 {
		return acct, nil
	}
	acct.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAccountProfileTx(ctx, tx, acct); err != nil {
		return domain.Account{}, e.fail(ctx, "update account", err)
	}
	if err := w.Append(ctx, tx, events.AccountUpdated, acct.ID, "account", acct.ID, acct.ID, changed); err != nil {
		return domain.Account{}, e.fail(ctx, "update account", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, e.fail(ctx, "update account", err)
	}
	return acct, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
