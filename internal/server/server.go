package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"upkeep/internal/domain"
	"upkeep/internal/engine"
	"upkeep/internal/quota"
	"upkeep/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
	// RateLimit is a formatted rate such as "100-M". Empty disables it.
	RateLimit string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"quota_exceeded"`
	Message string         `json:"message" example:"asset limit reached (3/3) on the starter plan"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"limit\":3,\"current\":3,\"upgrade_required\":true}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Upkeep API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	limiter, err := newRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", cfg.RateLimit, err)
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	router.Use(rateLimit(limiter))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Upkeep API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAccount(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerWorkOrders(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the envelope. Anything unrecognized
// is reported as an internal error without detail.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if qe, ok := engine.IsQuotaExceeded(err); ok {
		return newAPIError(http.StatusPaymentRequired, "quota_exceeded", qe.Error(), map[string]any{
			"plan_type":        qe.Plan,
			"limit":            qe.Limit,
			"current":          qe.Current,
			"upgrade_required": qe.UpgradeRequired,
		})
	}
	var verr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrInvalidStatus):
		return newAPIError(http.StatusBadRequest, "invalid_status", err.Error(), map[string]any{"allowed": domain.WorkOrderStatuses})
	case errors.As(err, &verr):
		var details map[string]any
		if verr.Field != "" {
			details = map[string]any{"field": verr.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", verr.Error(), details)
	case errors.Is(err, engine.ErrNotFoundOrForbidden), errors.Is(err, engine.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "quota_exceeded"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Upkeep API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAccount(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		acct, err := e.GetAccount(ctx, principal.AccountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			Account: acct,
			Quota:   e.Quota.Evaluate(acct.Plan, acct.AssetCount),
			Source:  principal.Source,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update the current account's email or company name",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		acct, err := e.UpdateAccountProfile(ctx, engine.AccountProfileUpdate{
			AccountID:   principal.AccountID,
			Email:       input.Body.Email,
			CompanyName: input.Body.CompanyName,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			Account: acct,
			Quota:   e.Quota.Evaluate(acct.Plan, acct.AssetCount),
			Source:  principal.Source,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "quota",
		Method:      http.MethodGet,
		Path:        "/quota",
		Summary:     "Asset quota for the current account",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body quota.Status `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.QuotaStatus(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body quota.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upgrade-plan",
		Method:      http.MethodPost,
		Path:        "/account/plan",
		Summary:     "Change the account plan",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpgradePlanRequest `json:"body"`
	}) (*struct {
		Body domain.Account `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		acct, err := e.UpgradePlan(ctx, accountID, input.Body.Plan)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Account `json:"body"`
		}{Body: acct}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Account dashboard",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Dashboard(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Create asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusPaymentRequired,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
			AccountID:    accountID,
			Name:         input.Body.Name,
			Model:        input.Body.Model,
			SerialNumber: input.Body.SerialNumber,
			Location:     input.Body.Location,
			Status:       input.Body.Status,
			HealthScore:  input.Body.HealthScore,
			TemplateID:   input.Body.TemplateID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit  int `query:"limit" default:"50"`
		Offset int `query:"offset" minimum:"0"`
	}) (*struct {
		Body AssetListResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		page, err := e.ListAssets(ctx, accountID, limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetListResponse `json:"body"`
		}{Body: AssetListResponse{Items: page.Items, Total: page.Total, HasMore: page.HasMore, Limit: limit, Offset: input.Offset}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/assets/{id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAsset(ctx, accountID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPatch,
		Path:        "/assets/{id}",
		Summary:     "Update asset",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAsset(ctx, engine.AssetUpdateOptions{
			AccountID:    accountID,
			ID:           input.ID,
			Name:         input.Body.Name,
			Model:        input.Body.Model,
			SerialNumber: input.Body.SerialNumber,
			Location:     input.Body.Location,
			Status:       input.Body.Status,
			HealthScore:  input.Body.HealthScore,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-asset",
		Method:        http.MethodDelete,
		Path:          "/assets/{id}",
		Summary:       "Delete asset with its work orders",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAsset(ctx, accountID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	type templateList struct {
		Body []domain.EquipmentTemplate `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List equipment templates",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
	}) (*templateList, error) {
		items, err := e.SearchTemplates(ctx, "", input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateList{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-templates",
		Method:      http.MethodGet,
		Path:        "/templates/search",
		Summary:     "Search equipment templates by name or description",
	}, func(ctx context.Context, input *struct {
		Q        string `query:"q"`
		Category string `query:"category"`
	}) (*templateList, error) {
		items, err := e.SearchTemplates(ctx, input.Q, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateList{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "template-categories",
		Method:      http.MethodGet,
		Path:        "/templates/categories",
		Summary:     "List template categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		items, err := e.TemplateCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get equipment template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.EquipmentTemplate `json:"body"`
	}, error) {
		tpl, err := e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EquipmentTemplate `json:"body"`
		}{Body: tpl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklist",
		Method:      http.MethodGet,
		Path:        "/templates/{id}/checklist",
		Summary:     "Active checklist items of a template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ChecklistItem `json:"body"`
	}, error) {
		items, err := e.ListChecklist(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-schedule",
		Method:      http.MethodPost,
		Path:        "/templates/{id}/schedule",
		Summary:     "Plan maintenance occurrences for a prospective asset",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body ScheduleRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		opts := engine.PlanOptions{TemplateID: input.ID, AssetName: input.Body.AssetName}
		if input.Body.Multiplier != nil {
			m := decimal.NewFromFloat(*input.Body.Multiplier)
			opts.Multiplier = &m
		}
		plan, err := e.PlanForAsset(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(plan)}, nil
	})
}

func registerWorkOrders(api huma.API, e engine.Engine) {
	type workOrderBody struct {
		Body domain.WorkOrder `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-work-order",
		Method:        http.MethodPost,
		Path:          "/work-orders",
		Summary:       "Create work order with tasks",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkOrderRequest `json:"body"`
	}) (*workOrderBody, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wo, err := e.CreateWorkOrder(ctx, engine.WorkOrderCreateOptions{
			AccountID:           accountID,
			AssetID:             input.Body.AssetID,
			ChecklistTemplateID: input.Body.ChecklistTemplateID,
			Title:               input.Body.Title,
			Description:         input.Body.Description,
			Priority:            input.Body.Priority,
			DueDate:             input.Body.DueDate,
			Tasks:               input.Body.Tasks,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &workOrderBody{Body: wo}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-orders",
		Method:      http.MethodGet,
		Path:        "/work-orders",
		Summary:     "List work orders, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		AssetID  string `query:"asset_id"`
		Priority string `query:"priority"`
		Limit    int    `query:"limit" default:"50"`
		Offset   int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body engine.WorkOrderPage `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListWorkOrders(ctx, repo.WorkOrderFilters{
			AccountID: accountID,
			Status:    input.Status,
			AssetID:   input.AssetID,
			Priority:  input.Priority,
			Limit:     normalizeLimit(input.Limit),
			Offset:    input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WorkOrderPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-order",
		Method:      http.MethodGet,
		Path:        "/work-orders/{id}",
		Summary:     "Get work order with tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*workOrderBody, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wo, err := e.GetWorkOrder(ctx, accountID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &workOrderBody{Body: wo}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-order",
		Method:        http.MethodDelete,
		Path:          "/work-orders/{id}",
		Summary:       "Delete work order",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkOrder(ctx, accountID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-work-order-status",
		Method:      http.MethodPatch,
		Path:        "/work-orders/{id}/status",
		Summary:     "Set work order status",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*workOrderBody, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wo, err := e.SetWorkOrderStatus(ctx, accountID, input.ID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &workOrderBody{Body: wo}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-work-order-task",
		Method:      http.MethodPatch,
		Path:        "/work-orders/{id}/tasks/{task_id}",
		Summary:     "Mark a task complete or incomplete",
		Description: "Completing the last open task completes the work order.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string            `path:"id"`
		TaskID string            `path:"task_id"`
		Body   ToggleTaskRequest `json:"body"`
	}) (*struct {
		Body engine.ToggleResult `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ToggleTask(ctx, engine.TaskToggleOptions{
			AccountID:   accountID,
			WorkOrderID: input.ID,
			TaskID:      input.TaskID,
			Completed:   input.Body.IsCompleted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ToggleResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events of the current account",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"account,asset,work_order,work_order_task,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, accountID, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: items}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key; the raw key is only returned here",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body engine.CreatedAPIKey `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := e.CreateAPIKey(ctx, accountID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CreatedAPIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, accountID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Delete API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		accountID, authErr := accountIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, accountID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		account := strings.TrimSpace(input.Body.AccountID)
		if account == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "account_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, account, input.Body.Email, input.Body.CompanyName, time.Now())
		if err != nil {
			engine.LoggerFrom(ctx).Error("sign dev token", slog.String("error", err.Error()))
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
