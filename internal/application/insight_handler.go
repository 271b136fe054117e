package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
	"github.com/SmartBear/smartbear-mcp-sub003/internal/infrastructure"
)

// InsightHandler implements ToolHandler for Insight Hub operations.
// It routes MCP tool calls through the ProjectResolver for cache-first
// context resolution, validates filters against the project's event
// field vocabulary before any network call, and annotates build and
// release records with derived stability data.
type InsightHandler struct {
	client      *infrastructure.InsightClient
	resolver    *ProjectResolver
	cache       domain.Cache
	mapper      domain.ResponseMapper
	input       domain.InputProvider
	appEndpoint string
	logger      *StructuredLogger
}

// NewInsightHandler creates a new InsightHandler instance.
// appEndpoint is the dashboard base URL used to compose human-facing
// error links.
func NewInsightHandler(client *infrastructure.InsightClient, resolver *ProjectResolver, cache domain.Cache, mapper domain.ResponseMapper, appEndpoint string) *InsightHandler {
	return &InsightHandler{
		client:      client,
		resolver:    resolver,
		cache:       cache,
		mapper:      mapper,
		appEndpoint: appEndpoint,
		logger:      NewStructuredLogger(),
	}
}

// SetInputProvider wires the elicitation provider used by the severity
// override flow. Set after server construction because the server is
// both the provider and the consumer of this handler.
func (h *InsightHandler) SetInputProvider(input domain.InputProvider) {
	h.input = input
}

// Tool name constants for Insight Hub operations
const (
	ToolInsightListProjects     = "insight_list_projects"
	ToolInsightGetProject       = "insight_get_project"
	ToolInsightCurrentProject   = "insight_current_project"
	ToolInsightListEventFilters = "insight_list_event_filters"
	ToolInsightListErrors       = "insight_list_errors"
	ToolInsightGetError         = "insight_get_error"
	ToolInsightUpdateError      = "insight_update_error"
	ToolInsightGetEvent         = "insight_get_event"
	ToolInsightListBuilds       = "insight_list_builds"
	ToolInsightGetBuild         = "insight_get_build"
	ToolInsightListReleases     = "insight_list_releases"
	ToolInsightGetRelease       = "insight_get_release"
)

// severityLevels enumerates the values accepted by override_severity.
var severityLevels = []string{"error", "warning", "info"}

// ToolName returns the identifier for this handler.
func (h *InsightHandler) ToolName() string {
	return "insight"
}

// projectIDSchema is the shared schema fragment for the optional
// projectId argument.
func projectIDSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "The project ID (optional when the server is configured with a project API key)",
	}
}

// filtersSchema is the shared schema fragment for the optional filters
// argument.
func filtersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Filters keyed by event field display_id, each an array of {type, value} predicates combined with AND semantics (e.g. {\"error.status\": [{\"type\": \"eq\", \"value\": \"open\"}]})",
	}
}

// ListTools returns available tools for Insight Hub operations.
func (h *InsightHandler) ListTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        ToolInsightListProjects,
			Description: "List all Insight Hub projects in the organization",
			InputSchema: domain.JSONSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
				Required:   []string{},
			},
		},
		{
			Name:        ToolInsightGetProject,
			Description: "Retrieve an Insight Hub project by its ID",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": map[string]interface{}{
						"type":        "string",
						"description": "The project ID",
					},
				},
				Required: []string{"projectId"},
			},
		},
		{
			Name:        ToolInsightCurrentProject,
			Description: "Retrieve the project bound to the configured project API key",
			InputSchema: domain.JSONSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
				Required:   []string{},
			},
		},
		{
			Name:        ToolInsightListEventFilters,
			Description: "List the event field names usable as filter keys for a project",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
				},
				Required: []string{},
			},
		},
		{
			Name:        ToolInsightListErrors,
			Description: "List a project's errors with optional filters, sorting, and cursor pagination",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"filters":   filtersSchema(),
					"sort": map[string]interface{}{
						"type":        "string",
						"description": "Sort field (e.g. last_seen, events, users)",
					},
					"direction": map[string]interface{}{
						"type":        "string",
						"description": "Sort direction: 'asc' or 'desc' (default 'desc')",
						"enum":        []string{"asc", "desc"},
					},
					"per_page": map[string]interface{}{
						"type":        "integer",
						"description": "Page size",
					},
					"next": map[string]interface{}{
						"type":        "string",
						"description": "Opaque continuation token echoed from a prior response; pass back unmodified",
					},
				},
				Required: []string{},
			},
		},
		{
			Name:        ToolInsightGetError,
			Description: "Retrieve an error's aggregate details, its most recent event, pivot summaries, and a dashboard link",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"errorId": map[string]interface{}{
						"type":        "string",
						"description": "The error ID",
					},
					"filters": filtersSchema(),
				},
				Required: []string{"errorId"},
			},
		},
		{
			Name:        ToolInsightUpdateError,
			Description: "Apply a workflow operation to an error (override_severity, open, fix, ignore, discard, undiscard)",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"errorId": map[string]interface{}{
						"type":        "string",
						"description": "The error ID",
					},
					"operation": map[string]interface{}{
						"type":        "string",
						"description": "The operation to apply",
						"enum":        []string{"override_severity", "open", "fix", "ignore", "discard", "undiscard"},
					},
				},
				Required: []string{"errorId", "operation"},
			},
		},
		{
			Name:        ToolInsightGetEvent,
			Description: "Retrieve a single event by ID, searching every project when no project is specified",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"eventId": map[string]interface{}{
						"type":        "string",
						"description": "The event ID",
					},
				},
				Required: []string{"eventId"},
			},
		},
		{
			Name:        ToolInsightListBuilds,
			Description: "List a project's builds with derived stability data",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
				},
				Required: []string{},
			},
		},
		{
			Name:        ToolInsightGetBuild,
			Description: "Retrieve a build by ID with derived stability data",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"buildId": map[string]interface{}{
						"type":        "string",
						"description": "The build ID",
					},
				},
				Required: []string{"buildId"},
			},
		},
		{
			Name:        ToolInsightListReleases,
			Description: "List a project's releases with derived stability data",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
				},
				Required: []string{},
			},
		},
		{
			Name:        ToolInsightGetRelease,
			Description: "Retrieve a release by ID with derived stability data",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"projectId": projectIDSchema(),
					"releaseId": map[string]interface{}{
						"type":        "string",
						"description": "The release ID",
					},
				},
				Required: []string{"releaseId"},
			},
		},
	}
}

// Handle processes an MCP tool call request for Insight Hub operations.
func (h *InsightHandler) Handle(ctx context.Context, req *domain.ToolRequest) (*domain.ToolResponse, error) {
	// Validate that we have arguments
	if req.Arguments == nil {
		req.Arguments = make(map[string]interface{})
	}

	// Route to the appropriate handler based on tool name
	switch req.Name {
	case ToolInsightListProjects:
		return h.handleListProjects(ctx, req.Arguments)
	case ToolInsightGetProject:
		return h.handleGetProject(ctx, req.Arguments)
	case ToolInsightCurrentProject:
		return h.handleCurrentProject(ctx, req.Arguments)
	case ToolInsightListEventFilters:
		return h.handleListEventFilters(ctx, req.Arguments)
	case ToolInsightListErrors:
		return h.handleListErrors(ctx, req.Arguments)
	case ToolInsightGetError:
		return h.handleGetError(ctx, req.Arguments)
	case ToolInsightUpdateError:
		return h.handleUpdateError(ctx, req.Arguments)
	case ToolInsightGetEvent:
		return h.handleGetEvent(ctx, req.Arguments)
	case ToolInsightListBuilds:
		return h.handleListBuilds(ctx, req.Arguments)
	case ToolInsightGetBuild:
		return h.handleGetBuild(ctx, req.Arguments)
	case ToolInsightListReleases:
		return h.handleListReleases(ctx, req.Arguments)
	case ToolInsightGetRelease:
		return h.handleGetRelease(ctx, req.Arguments)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown Insight Hub tool: %s", req.Name),
		}
	}
}

// handleListProjects handles the insight_list_projects tool call.
func (h *InsightHandler) handleListProjects(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projects, err := h.resolver.Projects()
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(projects)
}

// handleGetProject handles the insight_get_project tool call.
func (h *InsightHandler) handleGetProject(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", true)
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(project)
}

// handleCurrentProject handles the insight_current_project tool call.
func (h *InsightHandler) handleCurrentProject(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	project, err := h.resolver.CurrentProject()
	if err != nil {
		return nil, h.mapper.MapError(err)
	}
	if project == nil {
		return h.mapper.MapToToolResponse(map[string]interface{}{
			"message": "no project API key configured; specify projectId on individual tool calls",
		})
	}

	return h.mapper.MapToToolResponse(project)
}

// handleListEventFilters handles the insight_list_event_filters tool call.
func (h *InsightHandler) handleListEventFilters(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	fields, err := h.resolver.EventFilters(project)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(fields)
}

// handleListErrors handles the insight_list_errors tool call.
// Filter keys are validated against the project's event field
// vocabulary before any network call is issued.
func (h *InsightHandler) handleListErrors(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	filters, err := getFilterParam(args, "filters")
	if err != nil {
		return nil, err
	}
	sortField, err := getStringParam(args, "sort", false)
	if err != nil {
		return nil, err
	}
	direction, err := getStringParam(args, "direction", false)
	if err != nil {
		return nil, err
	}
	perPage, err := getIntParam(args, "per_page", false)
	if err != nil {
		return nil, err
	}
	next, err := getStringParam(args, "next", false)
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	if filters != nil {
		if err := h.validateFilters(project, filters); err != nil {
			return nil, h.mapper.MapError(err)
		}
	}

	result, err := h.client.ListErrors(project.ID, &infrastructure.ErrorQuery{
		Filters:   filters,
		Sort:      sortField,
		Direction: direction,
		PerPage:   perPage,
		Next:      next,
	})
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	return h.mapper.MapToToolResponse(result)
}

// validateFilters checks every filter key against the project's usable
// event field set. Keys are checked in sorted order so the first
// rejected key is deterministic.
func (h *InsightHandler) validateFilters(project *domain.Project, filters domain.FilterObject) error {
	fields, err := h.resolver.EventFilters(project)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(fields))
	for _, field := range fields {
		known[field.DisplayID] = true
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !known[key] {
			return domain.InvalidArgumentError("Invalid filter key: %s", key)
		}
	}

	return nil
}

// handleGetError handles the insight_get_error tool call.
// The latest-event and pivot sub-fetches are best-effort enrichment:
// their failures are logged and downgraded, never propagated, because
// partial data is preferred over total failure.
func (h *InsightHandler) handleGetError(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	errorID, err := getStringParam(args, "errorId", true)
	if err != nil {
		return nil, err
	}
	filters, err := getFilterParam(args, "filters")
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	errorDetails, err := h.client.GetError(project.ID, errorID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	var latestEvent json.RawMessage
	if event, err := h.client.LatestErrorEvent(project.ID, errorID, filters); err != nil {
		h.logger.LogError("failed to fetch latest event for error", err, map[string]interface{}{
			"project_id": project.ID,
			"error_id":   errorID,
		})
	} else {
		latestEvent = event
	}

	pivots, err := h.client.ListPivots(project.ID, errorID, filters)
	if err != nil {
		h.logger.LogError("failed to fetch pivots for error", err, map[string]interface{}{
			"project_id": project.ID,
			"error_id":   errorID,
		})
		pivots = []json.RawMessage{}
	}

	org, err := h.resolver.Organization()
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	values := url.Values{}
	if filters != nil {
		filters.Encode(values)
	}

	result := &domain.ErrorDetailsResult{
		ErrorDetails: errorDetails,
		LatestEvent:  latestEvent,
		Pivots:       pivots,
		URL:          domain.DashboardErrorURL(h.appEndpoint, org.Slug, project.Slug, errorID, values.Encode()),
	}

	return h.mapper.MapToToolResponse(result)
}

// handleUpdateError handles the insight_update_error tool call.
// The operation is validated before any network call; override_severity
// additionally elicits the new severity from the client. The result
// reports the true outcome of the mutation.
func (h *InsightHandler) handleUpdateError(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	errorID, err := getStringParam(args, "errorId", true)
	if err != nil {
		return nil, err
	}
	operation, err := getStringParam(args, "operation", true)
	if err != nil {
		return nil, err
	}

	if !domain.ValidErrorOperation(operation) {
		return nil, h.mapper.MapError(domain.InvalidArgumentError("invalid operation: %s", operation))
	}

	update := &infrastructure.ErrorUpdate{Operation: operation}

	if operation == string(domain.OpOverrideSeverity) {
		severity, resp, err := h.elicitSeverity(ctx)
		if err != nil {
			return nil, h.mapper.MapError(err)
		}
		if resp != nil {
			return resp, nil
		}
		update.Severity = severity
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	success, err := h.client.UpdateError(project.ID, errorID, update)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	message := fmt.Sprintf("Error %s updated successfully", errorID)
	if !success {
		message = fmt.Sprintf("Error %s update was rejected by the API", errorID)
	}

	return h.mapper.MapToToolResponse(map[string]interface{}{
		"success": success,
		"message": message,
	})
}

// elicitSeverity asks the connected client for the new severity value.
// Returns a non-nil ToolResponse when the client declined, in which
// case no update call must be made.
func (h *InsightHandler) elicitSeverity(ctx context.Context) (string, *domain.ToolResponse, error) {
	if h.input == nil {
		return "", nil, domain.InvalidConfigurationError("severity override requires an elicitation-capable client")
	}

	result, err := h.input.GetInput(ctx, "Select the new severity for this error", domain.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"severity": map[string]interface{}{
				"type":        "string",
				"description": "The new severity",
				"enum":        severityLevels,
			},
		},
		Required: []string{"severity"},
	})
	if err != nil {
		return "", nil, fmt.Errorf("severity elicitation failed: %w", err)
	}

	if result.Action != domain.InputAccept {
		resp, err := h.mapper.MapToToolResponse(map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("Severity override %sed by the client", result.Action),
		})
		return "", resp, err
	}

	severity, _ := result.Content["severity"].(string)
	for _, level := range severityLevels {
		if severity == level {
			return severity, nil, nil
		}
	}

	return "", nil, domain.InvalidArgumentError("invalid severity: %s", severity)
}

// handleGetEvent handles the insight_get_event tool call.
// With no project specified, the lookup fans out concurrently across
// every known project and the first hit wins; individual per-project
// failures mean "not found in that project" and are never propagated.
func (h *InsightHandler) handleGetEvent(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	eventID, err := getStringParam(args, "eventId", true)
	if err != nil {
		return nil, err
	}

	if projectID != "" {
		project, err := h.resolver.InputProject(projectID)
		if err != nil {
			return nil, h.mapper.MapError(err)
		}

		event, err := h.client.GetEvent(project.ID, eventID)
		if err != nil {
			return nil, h.mapper.MapError(err)
		}

		return h.mapper.MapToToolResponse(event)
	}

	projects, err := h.resolver.Projects()
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	var mu sync.Mutex
	var found json.RawMessage

	p := pool.New().WithMaxGoroutines(8)
	for i := range projects {
		project := projects[i]
		p.Go(func() {
			event, err := h.client.GetEvent(project.ID, eventID)
			if err != nil {
				// Not found in that project, or that project was
				// unreachable; neither fails the overall lookup.
				return
			}
			mu.Lock()
			if found == nil {
				found = event
			}
			mu.Unlock()
		})
	}
	p.Wait()

	if found == nil {
		return nil, h.mapper.MapError(domain.NotFoundError("event %s not found in any project", eventID))
	}

	return h.mapper.MapToToolResponse(found)
}

// handleListBuilds handles the insight_list_builds tool call.
// Builds are fetched fresh each call; only the stability targets lookup
// is cached.
func (h *InsightHandler) handleListBuilds(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	targets, err := h.resolver.StabilityTargets(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	builds, err := h.client.ListBuilds(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	annotated := make([]domain.AnnotatedBuild, 0, len(builds))
	for _, build := range builds {
		annotated = append(annotated, domain.AnnotateBuild(build, *targets))
	}

	return h.mapper.MapToToolResponse(annotated)
}

// handleGetBuild handles the insight_get_build tool call.
// The annotated record is cached with a short TTL because build
// counters keep changing while sessions are reported.
func (h *InsightHandler) handleGetBuild(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	buildID, err := getStringParam(args, "buildId", true)
	if err != nil {
		return nil, err
	}

	if cached, ok := h.cache.Get(domain.BuildKey(buildID)); ok {
		if build, ok := cached.(domain.AnnotatedBuild); ok {
			return h.mapper.MapToToolResponse(build)
		}
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	build, err := h.client.GetBuild(project.ID, buildID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	targets, err := h.resolver.StabilityTargets(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	annotated := domain.AnnotateBuild(*build, *targets)
	h.cache.Set(domain.BuildKey(buildID), annotated, domain.ShortTTL)

	return h.mapper.MapToToolResponse(annotated)
}

// handleListReleases handles the insight_list_releases tool call.
func (h *InsightHandler) handleListReleases(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	targets, err := h.resolver.StabilityTargets(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	releases, err := h.client.ListReleases(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	annotated := make([]domain.AnnotatedRelease, 0, len(releases))
	for _, release := range releases {
		annotated = append(annotated, domain.AnnotateRelease(release, *targets))
	}

	return h.mapper.MapToToolResponse(annotated)
}

// handleGetRelease handles the insight_get_release tool call.
func (h *InsightHandler) handleGetRelease(ctx context.Context, args map[string]interface{}) (*domain.ToolResponse, error) {
	projectID, err := getStringParam(args, "projectId", false)
	if err != nil {
		return nil, err
	}
	releaseID, err := getStringParam(args, "releaseId", true)
	if err != nil {
		return nil, err
	}

	if cached, ok := h.cache.Get(domain.ReleaseKey(releaseID)); ok {
		if release, ok := cached.(domain.AnnotatedRelease); ok {
			return h.mapper.MapToToolResponse(release)
		}
	}

	project, err := h.resolver.InputProject(projectID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	release, err := h.client.GetRelease(project.ID, releaseID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	targets, err := h.resolver.StabilityTargets(project.ID)
	if err != nil {
		return nil, h.mapper.MapError(err)
	}

	annotated := domain.AnnotateRelease(*release, *targets)
	h.cache.Set(domain.ReleaseKey(releaseID), annotated, domain.ShortTTL)

	return h.mapper.MapToToolResponse(annotated)
}
