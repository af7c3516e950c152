package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"upkeep/internal/app"
	"upkeep/internal/config"
	"upkeep/internal/db"
	"upkeep/internal/domain"
	"upkeep/internal/engine"
	"upkeep/internal/migrate"
	"upkeep/internal/repo"
	"upkeep/internal/server"
)

const accountEnvKey = "UPKEEP_ACCOUNT"

var rootCmd = &cobra.Command{
	Use:   "upk",
	Short: "Upkeep CLI",
	Long: `Upkeep plans equipment maintenance and tracks the work orders that carry it out.
- Workspace: the .upkeep directory holding the SQLite database; upkeep.yml next to it tunes plans, planning and webhooks.
- Account: owns assets and work orders; its plan (starter, growth, scale) caps how many assets it may register.
- Templates: equipment types with checklists of recurring tasks, each with its own frequency.
- Schedule: the next occurrences of every checklist task within the planning horizon.
- Work orders: a title plus tasks; ticking off the last open task completes the order.
- Event log: every change, view with 'upk log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	workspace := viper.GetString("workspace")
	if workspace == "" {
		workspace = "."
	}
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: read .env:", err)
	}
	viper.SetEnvPrefix("UPKEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("account", "", "account id (overrides "+accountEnvKey+")")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(workOrderCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage upkeep.yml",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default upkeep.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate upkeep.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				res := map[string]any{"valid": err == nil}
				if err != nil {
					res["error"] = err.Error()
				}
				return printJSON(res)
			}
			if err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.MigrateContext(cmd.Context(), conn); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("Database at version %d\n", v)
			return nil
		},
	}
}

// --- account ---

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and manage the current account",
	}
	cmd.AddCommand(accountShowCmd())
	cmd.AddCommand(accountUseCmd())
	cmd.AddCommand(accountPlanCmd())
	cmd.AddCommand(accountProfileCmd())
	return cmd
}

func accountProfileCmd() *cobra.Command {
	var email, company string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the account email or company name",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.AccountProfileUpdate{}
			if cmd.Flags().Changed("email") {
				opts.Email = &email
			}
			if cmd.Flags().Changed("company") {
				opts.CompanyName = &company
			}
			if opts.Email == nil && opts.CompanyName == nil {
				return fmt.Errorf("nothing to update: pass --email or --company")
			}
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				opts.AccountID = acct.ID
				updated, err := e.UpdateAccountProfile(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "contact email (empty clears it)")
	cmd.Flags().StringVar(&company, "company", "", "company name (empty clears it)")
	return cmd
}

func accountShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				return printJSONOrTable(acct)
			})
		},
	}
}

func accountUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default account for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := strings.TrimSpace(args[0])
			if accountID == "" {
				return fmt.Errorf("account id is required")
			}
			path := filepath.Join(viper.GetString("workspace"), ".env")
			env, err := godotenv.Read(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return err
				}
				env = map[string]string{}
			}
			env[accountEnvKey] = accountID
			if err := godotenv.Write(env, path); err != nil {
				return err
			}
			fmt.Printf("Set %s=%s in %s\n", accountEnvKey, accountID, path)
			return nil
		},
	}
}

func accountPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <starter|growth|scale>",
		Short: "Change the account plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				updated, err := e.UpgradePlan(ctx, acct.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
}

func quotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the asset quota of the current account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				q, err := e.QuotaStatus(ctx, acct.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(q)
				}
				fmt.Printf("Plan %s: %d of %d assets used, %d remaining\n", q.Plan, q.Current, q.Limit, q.Remaining)
				if q.UpgradeRequired {
					fmt.Println("Upgrade required to add more assets.")
				}
				return nil
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize assets and work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				d, err := e.Dashboard(ctx, acct.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Account %s (%s): %d/%d assets, average health %d\n",
					d.Account.ID, d.Quota.Plan, d.Quota.Current, d.Quota.Limit, d.AverageHealth)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Work order status", "Count"})
				for _, c := range d.WorkOrderStatus {
					tw.AppendRow(table.Row{c.Status, c.Count})
				}
				tw.Render()
				if len(d.Upcoming) > 0 {
					printAssets(d.Upcoming)
				}
				return nil
			})
		},
	}
}

// --- assets ---

func assetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
	}
	cmd.AddCommand(assetCreateCmd())
	cmd.AddCommand(assetListCmd())
	cmd.AddCommand(assetShowCmd())
	cmd.AddCommand(assetDeleteCmd())
	return cmd
}

func assetCreateCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	var health int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				opts.AccountID = acct.ID
				opts.Name = args[0]
				if cmd.Flags().Changed("health") {
					opts.HealthScore = &health
				}
				a, err := e.CreateAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Model, "model", "", "model")
	cmd.Flags().StringVar(&opts.SerialNumber, "serial", "", "serial number")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Status, "status", "", "operational status")
	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "equipment template id")
	cmd.Flags().IntVar(&health, "health", 100, "health score 0-100")
	return cmd
}

func assetListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				page, err := e.ListAssets(ctx, acct.ID, limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				printAssets(page.Items)
				if page.HasMore {
					fmt.Printf("%d of %d shown; use --offset for more\n", len(page.Items), page.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func assetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				a, err := e.GetAsset(ctx, acct.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

func assetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an asset and its work orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				if err := e.DeleteAsset(ctx, acct.ID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted asset %s\n", args[0])
				return nil
			})
		},
	}
}

func printAssets(assets []domain.Asset) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Health", "Template", "Next maintenance"})
	for _, a := range assets {
		tw.AppendRow(table.Row{a.ID, a.Name, a.Status, a.HealthScore, a.TemplateName, deref(a.NextMaintenanceAt)})
	}
	tw.Render()
}

// --- templates and planning ---

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Browse equipment templates",
	}
	cmd.AddCommand(templateListCmd())
	cmd.AddCommand(templateChecklistCmd())
	return cmd
}

func templateListCmd() *cobra.Command {
	var q, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				templates, err := e.SearchTemplates(ctx, q, category)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(templates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Manufacturer"})
				for _, t := range templates {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Category, t.Manufacturer})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q, "q", "", "search text")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func templateChecklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checklist <template-id>",
		Short: "Show the active checklist of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListChecklist(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Every (days)", "Priority", "Minutes"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.FrequencyDays, it.Priority, it.EstimatedDuration})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	var assetName, multiplier string
	cmd := &cobra.Command{
		Use:   "schedule <template-id>",
		Short: "Preview maintenance occurrences for a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.PlanOptions{TemplateID: args[0], AssetName: assetName}
			if multiplier != "" {
				m, err := decimal.NewFromString(multiplier)
				if err != nil {
					return fmt.Errorf("invalid multiplier %q", multiplier)
				}
				opts.Multiplier = &m
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plan, err := e.PlanForAsset(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				fmt.Printf("%s (%s), multiplier %s: %d occurrences in horizon\n",
					plan.AssetName, plan.Template.Name, plan.Multiplier.String(), plan.TotalScheduled)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Due", "In days", "Task", "Priority"})
				for _, s := range plan.Schedule {
					tw.AppendRow(table.Row{s.DueDateReadable, s.DaysFromNow, s.TaskName, s.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&assetName, "asset-name", "", "name of the prospective asset")
	cmd.Flags().StringVar(&multiplier, "multiplier", "", "cadence multiplier, 2 means twice as often")
	_ = cmd.MarkFlagRequired("asset-name")
	return cmd
}

// --- work orders ---

func workOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo"},
		Short:   "Manage work orders",
	}
	cmd.AddCommand(workOrderCreateCmd())
	cmd.AddCommand(workOrderListCmd())
	cmd.AddCommand(workOrderShowCmd())
	cmd.AddCommand(workOrderStatusCmd())
	cmd.AddCommand(workOrderTaskCmd())
	cmd.AddCommand(workOrderDeleteCmd())
	return cmd
}

func workOrderCreateCmd() *cobra.Command {
	var opts engine.WorkOrderCreateOptions
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				opts.AccountID = acct.ID
				opts.Title = args[0]
				wo, err := e.CreateWorkOrder(ctx, opts)
				if err != nil {
					return err
				}
				return printWorkOrder(wo)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssetID, "asset", "", "asset id")
	cmd.Flags().StringVar(&opts.ChecklistTemplateID, "template", "", "checklist template id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "Low, Normal, High or Critical")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringArrayVar(&opts.Tasks, "task", nil, "task text (repeatable)")
	return cmd
}

func workOrderListCmd() *cobra.Command {
	var f repo.WorkOrderFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				f.AccountID = acct.ID
				page, err := e.ListWorkOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Asset", "Due"})
				for _, wo := range page.Items {
					tw.AppendRow(table.Row{wo.ID, wo.Title, wo.Status, wo.Priority, wo.AssetName, deref(wo.DueDate)})
				}
				tw.AppendFooter(table.Row{"", fmt.Sprintf("%d total", page.Total)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssetID, "asset", "", "asset filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

func workOrderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work order with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				wo, err := e.GetWorkOrder(ctx, acct.ID, args[0])
				if err != nil {
					return err
				}
				return printWorkOrder(wo)
			})
		},
	}
}

func workOrderStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set work order status (Open, In Progress, Completed, Cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				wo, err := e.SetWorkOrderStatus(ctx, acct.ID, args[0], args[1])
				if err != nil {
					return err
				}
				return printWorkOrder(wo)
			})
		},
	}
}

func workOrderTaskCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "task <work-order-id> <task-id>",
		Short: "Mark a task done (or not done with --undo)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			completed := !undo
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				res, err := e.ToggleTask(ctx, engine.TaskToggleOptions{
					AccountID:   acct.ID,
					WorkOrderID: args[0],
					TaskID:      args[1],
					Completed:   &completed,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.AutoCompleted {
					fmt.Println("All tasks done; work order completed.")
				}
				return printWorkOrder(res.WorkOrder)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task as not done")
	return cmd
}

func workOrderDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a work order and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				if err := e.DeleteWorkOrder(ctx, acct.ID, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted work order %s\n", args[0])
				return nil
			})
		},
	}
}

func printWorkOrder(wo domain.WorkOrder) error {
	if viper.GetBool("json") {
		return printJSON(wo)
	}
	fmt.Printf("%s  %s  [%s, %s]\n", wo.ID, wo.Title, wo.Status, wo.Priority)
	if wo.CompletedAt != nil {
		fmt.Printf("completed at %s\n", *wo.CompletedAt)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "Task ID", "Task", "Done"})
	for _, t := range wo.Tasks {
		done := ""
		if t.IsCompleted {
			done = "x"
		}
		tw.AppendRow(table.Row{t.OrderIndex + 1, t.ID, t.TaskText, done})
	}
	tw.Render()
	return nil
}

// --- events and api keys ---

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				events, err := e.ListEvents(ctx, acct.ID, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyListCmd())
	cmd.AddCommand(apiKeyDeleteCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the raw key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				key, err := e.CreateAPIKey(ctx, acct.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(key)
				}
				fmt.Printf("Created API key %s for account %s\n%s\n", key.ID, key.AccountID, key.Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				keys, err := e.ListAPIKeys(ctx, acct.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccount(cmd.Context(), func(ctx context.Context, e engine.Engine, acct domain.Account) error {
				return e.DeleteAPIKey(ctx, acct.ID, args[0])
			})
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			logger := newLogger()
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			e.Logger = logger
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), DevLogin: devLogin}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("UPKEEP_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:    e,
				BasePath:  basePath,
				Auth:      authCfg,
				Logger:    logger,
				RateLimit: cfg.RateLimit,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if d := server.NewWebhookDispatcher(e, logger); d != nil {
				go d.Run(ctx)
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Upkeep API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (never in production)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	e.Logger = newLogger()
	return fn(engine.WithLogger(ctx, e.Logger), e)
}

func withAccount(ctx context.Context, fn func(context.Context, engine.Engine, domain.Account) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		acct, err := app.ResolveAccount(ctx, e, strings.TrimSpace(viper.GetString("account")))
		if err != nil {
			return err
		}
		return fn(ctx, e, acct)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
