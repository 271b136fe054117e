package application

import (
	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
	"github.com/SmartBear/smartbear-mcp-sub003/internal/infrastructure"
)

// ProjectResolver resolves the organization and project context for
// Insight Hub tool calls, backed by the shared cache. The organization
// is always the first one visible to the credential; the "current
// project" is the one whose notifier API key matches the configured
// project API key.
//
// The resolver does not guarantee at-most-once population: two
// concurrent misses may both fetch and both write. The fetched values
// are re-derivable from the upstream source of truth, so last write
// wins is acceptable.
type ProjectResolver struct {
	client        *infrastructure.InsightClient
	cache         domain.Cache
	projectAPIKey string
	logger        *StructuredLogger
}

// NewProjectResolver creates a ProjectResolver.
// projectAPIKey may be empty, in which case no current project is
// resolvable and every tool call must name an explicit project id.
func NewProjectResolver(client *infrastructure.InsightClient, cache domain.Cache, projectAPIKey string) *ProjectResolver {
	return &ProjectResolver{
		client:        client,
		cache:         cache,
		projectAPIKey: projectAPIKey,
		logger:        NewStructuredLogger(),
	}
}

// Organization resolves the organization for the configured credential,
// cache-first with a long TTL. Fails with NotFound when the credential
// sees no organizations.
func (r *ProjectResolver) Organization() (*domain.Organization, error) {
	if cached, ok := r.cache.Get(domain.OrgKey()); ok {
		if org, ok := cached.(*domain.Organization); ok {
			return org, nil
		}
	}

	orgs, err := r.client.ListOrganizations()
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, domain.NotFoundError("no organizations visible to this credential")
	}

	// First organization wins; the server assumes a single-org account.
	org := &orgs[0]
	r.cache.Set(domain.OrgKey(), org, domain.LongTTL)

	return org, nil
}

// Projects resolves the full project list for the organization,
// cache-first with a medium TTL. On a miss the remote pagination is
// drained into one list and per-id lookup entries are populated
// opportunistically.
func (r *ProjectResolver) Projects() ([]domain.Project, error) {
	if cached, ok := r.cache.Get(domain.ProjectsKey()); ok {
		if projects, ok := cached.([]domain.Project); ok {
			return projects, nil
		}
	}

	org, err := r.Organization()
	if err != nil {
		return nil, err
	}

	projects, err := r.client.ListProjects(org.ID)
	if err != nil {
		return nil, err
	}

	r.cache.Set(domain.ProjectsKey(), projects, domain.MediumTTL)
	for i := range projects {
		project := projects[i]
		r.cache.Set(domain.ProjectLookupKey(project.ID), &project, domain.MediumTTL)
	}

	return projects, nil
}

// Project resolves one project by id. Returns nil (not an error) when
// no project with that id exists in the organization.
func (r *ProjectResolver) Project(projectID string) (*domain.Project, error) {
	if cached, ok := r.cache.Get(domain.ProjectLookupKey(projectID)); ok {
		if project, ok := cached.(*domain.Project); ok {
			return project, nil
		}
	}

	projects, err := r.Projects()
	if err != nil {
		return nil, err
	}

	for i := range projects {
		if projects[i].ID == projectID {
			project := projects[i]
			r.cache.Set(domain.ProjectLookupKey(projectID), &project, domain.MediumTTL)
			return &project, nil
		}
	}

	return nil, nil
}

// CurrentProject resolves the project bound to the configured project
// API key, cache-first with a long TTL. Returns nil when no project API
// key is configured. Fails with NotFound when a key is configured but
// matches no visible project - that is a hard configuration error, not
// a soft null.
func (r *ProjectResolver) CurrentProject() (*domain.Project, error) {
	if r.projectAPIKey == "" {
		return nil, nil
	}

	if cached, ok := r.cache.Get(domain.CurrentProjectKey()); ok {
		if project, ok := cached.(*domain.Project); ok {
			return project, nil
		}
	}

	projects, err := r.Projects()
	if err != nil {
		return nil, err
	}

	var current *domain.Project
	for i := range projects {
		if projects[i].APIKey == r.projectAPIKey {
			project := projects[i]
			current = &project
			break
		}
	}
	if current == nil {
		return nil, domain.NotFoundError("no project matches the configured project API key")
	}

	r.cache.Set(domain.CurrentProjectKey(), current, domain.LongTTL)

	// Eagerly resolve the project's event filter set so the first error
	// query does not pay for the metadata fetch. This is an
	// optimization, not a correctness requirement: failures are logged
	// and never propagated.
	if fields, err := r.fetchEventFilters(current); err != nil {
		r.logger.LogError("failed to pre-cache event filters for current project", err, map[string]interface{}{
			"project_id": current.ID,
		})
	} else {
		r.cache.Set(domain.CurrentProjectEventFiltersKey(), fields, domain.MediumTTL)
	}

	return current, nil
}

// InputProject resolves the project a tool call targets. An explicit id
// must name a visible project (NotFound otherwise); with no id the
// current project binding is used, and its absence is an
// InvalidConfiguration error.
func (r *ProjectResolver) InputProject(projectID string) (*domain.Project, error) {
	if projectID != "" {
		project, err := r.Project(projectID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, domain.NotFoundError("project %s not found in organization", projectID)
		}
		return project, nil
	}

	project, err := r.CurrentProject()
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.InvalidConfigurationError("no projectId specified and no project API key configured; supply projectId or configure project_api_key")
	}

	return project, nil
}

// EventFilters returns the usable filter field set for a project.
// Filter validation always runs against the target project's own field
// set; the cached vocabulary is only consulted (and refreshed) when the
// target is the current project.
func (r *ProjectResolver) EventFilters(project *domain.Project) ([]domain.EventField, error) {
	current := r.isCurrentProject(project)

	if current {
		if cached, ok := r.cache.Get(domain.CurrentProjectEventFiltersKey()); ok {
			if fields, ok := cached.([]domain.EventField); ok {
				return fields, nil
			}
		}
	}

	fields, err := r.fetchEventFilters(project)
	if err != nil {
		return nil, err
	}

	if current {
		r.cache.Set(domain.CurrentProjectEventFiltersKey(), fields, domain.MediumTTL)
	}

	return fields, nil
}

// fetchEventFilters fetches the field list for a project and removes
// the fields unsuitable for programmatic filtering. A project with zero
// usable fields is a data error: the remote API always exposes the
// standard fields.
func (r *ProjectResolver) fetchEventFilters(project *domain.Project) ([]domain.EventField, error) {
	fields, err := r.client.ListEventFields(project.ID)
	if err != nil {
		return nil, err
	}

	filtered := domain.FilterEventFields(fields)
	if len(filtered) == 0 {
		return nil, domain.NotFoundError("no usable event filter fields for project %s", project.ID)
	}

	return filtered, nil
}

// StabilityTargets returns a project's stability target configuration,
// cache-first with a medium TTL.
func (r *ProjectResolver) StabilityTargets(projectID string) (*domain.StabilityTargets, error) {
	if cached, ok := r.cache.Get(domain.StabilityTargetsKey(projectID)); ok {
		if targets, ok := cached.(*domain.StabilityTargets); ok {
			return targets, nil
		}
	}

	targets, err := r.client.GetStabilityTargets(projectID)
	if err != nil {
		return nil, err
	}

	r.cache.Set(domain.StabilityTargetsKey(projectID), targets, domain.MediumTTL)

	return targets, nil
}

// isCurrentProject reports whether project is the one bound to the
// configured project API key.
func (r *ProjectResolver) isCurrentProject(project *domain.Project) bool {
	return r.projectAPIKey != "" && project.APIKey == r.projectAPIKey
}
