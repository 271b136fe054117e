package infrastructure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
)

// InsightClient handles Insight Hub data access API interactions.
// It implements the ProductClient interface and provides methods for
// all Insight Hub operations required by the MCP server: organization
// and project listing, event field metadata, error and event queries,
// error updates, and build/release/stability lookups.
type InsightClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInsightClient creates a new Insight Hub API client.
// The baseURL should be the root URL of the data access API
// (e.g. "https://api.insighthub.smartbear.com").
// The httpClient should be an authenticated client from the AuthenticationManager.
func NewInsightClient(baseURL string, httpClient *http.Client) *InsightClient {
	return &InsightClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// BaseURL returns the configured base URL for the Insight Hub API.
func (c *InsightClient) BaseURL() string {
	return c.baseURL
}

// Do executes an HTTP request with authentication.
// This method is part of the ProductClient interface.
func (c *InsightClient) Do(req *http.Request) (*http.Response, error) {
	// Set common headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Execute the request using the authenticated HTTP client
	return c.httpClient.Do(req)
}

// getJSON issues a GET request and decodes a 200 response into out.
// Non-200 statuses are returned as HTTPError.
func (c *InsightClient) getJSON(endpoint string, out interface{}) error {
	resp, err := c.get(endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// get issues a GET request against an absolute endpoint URL.
func (c *InsightClient) get(endpoint string) (*http.Response, error) {
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	return resp, nil
}

// ListOrganizations retrieves the organizations visible to the
// configured credential.
func (c *InsightClient) ListOrganizations() ([]domain.Organization, error) {
	endpoint := fmt.Sprintf("%s/user/organizations", c.baseURL)

	var orgs []domain.Organization
	if err := c.getJSON(endpoint, &orgs); err != nil {
		return nil, err
	}

	return orgs, nil
}

// ListProjects retrieves all projects in an organization.
// The remote API paginates with Link headers; this method drains every
// page into one in-memory list.
func (c *InsightClient) ListProjects(orgID string) ([]domain.Project, error) {
	endpoint := fmt.Sprintf("%s/organizations/%s/projects?per_page=100", c.baseURL, orgID)

	var projects []domain.Project
	for endpoint != "" {
		resp, err := c.get(endpoint)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
		}

		var page []domain.Project
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		resp.Body.Close()

		projects = append(projects, page...)
		endpoint = nextPageLink(resp.Header)
	}

	return projects, nil
}

// ListEventFields retrieves the full filterable field list for a project.
// The caller is responsible for applying the exclusion set.
func (c *InsightClient) ListEventFields(projectID string) ([]domain.EventField, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/event_fields", c.baseURL, projectID)

	var fields []domain.EventField
	if err := c.getJSON(endpoint, &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

// ErrorQuery contains options for error list operations.
type ErrorQuery struct {
	Filters   domain.FilterObject // Validated filter predicates (optional)
	Sort      string              // Sort field (optional)
	Direction string              // "asc" or "desc"; defaults to "desc"
	PerPage   int                 // Page size (optional)
	Next      string              // Opaque continuation URL from a prior response
}

// encode builds the query string for an error list request.
func (q *ErrorQuery) encode() string {
	values := url.Values{}
	if q.Filters != nil {
		q.Filters.Encode(values)
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
	}
	direction := q.Direction
	if direction == "" {
		direction = "desc"
	}
	values.Set("direction", direction)
	if q.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return values.Encode()
}

// ListErrors retrieves one page of a project's errors.
// When query.Next is set it is used verbatim as the page URL; the
// continuation token is opaque and must be echoed back unmodified.
// Total is populated from the X-Total-Count header and Next from the
// Link header when present.
func (c *InsightClient) ListErrors(projectID string, query *ErrorQuery) (*domain.ErrorListResult, error) {
	var endpoint string
	if query != nil && query.Next != "" {
		endpoint = query.Next
	} else {
		endpoint = fmt.Sprintf("%s/projects/%s/errors", c.baseURL, projectID)
		if query != nil {
			if qs := query.encode(); qs != "" {
				endpoint = endpoint + "?" + qs
			}
		}
	}

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	var data []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := &domain.ErrorListResult{
		Data:  data,
		Count: len(data),
		Next:  nextPageLink(resp.Header),
	}

	if totalHeader := resp.Header.Get("X-Total-Count"); totalHeader != "" {
		if total, err := strconv.Atoi(totalHeader); err == nil {
			result.Total = &total
		}
	}

	return result, nil
}

// GetError retrieves the aggregate record for one error.
// Returns a NotFound client error when the error does not exist.
func (c *InsightClient) GetError(projectID, errorID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/errors/%s", c.baseURL, projectID, errorID)

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NotFoundError("error %s not found in project %s", errorID, projectID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return json.RawMessage(body), nil
}

// LatestErrorEvent retrieves the single most recent event for an error,
// honoring the caller's filters. The query is forced to sort by
// timestamp descending with a page size of one and full event detail.
func (c *InsightClient) LatestErrorEvent(projectID, errorID string, filters domain.FilterObject) (json.RawMessage, error) {
	values := url.Values{}
	if filters != nil {
		filters.Encode(values)
	}
	values.Set("filters[error][0][type]", "eq")
	values.Set("filters[error][0][value]", errorID)
	values.Set("sort", "timestamp")
	values.Set("direction", "desc")
	values.Set("per_page", "1")
	values.Set("full_reports", "true")

	endpoint := fmt.Sprintf("%s/projects/%s/events?%s", c.baseURL, projectID, values.Encode())

	var events []json.RawMessage
	if err := c.getJSON(endpoint, &events); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.NotFoundError("no events found for error %s", errorID)
	}

	return events[0], nil
}

// GetEvent retrieves a single event by id within a project.
// Returns a NotFound client error when the event does not exist.
func (c *InsightClient) GetEvent(projectID, eventID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/events/%s", c.baseURL, projectID, eventID)

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NotFoundError("event %s not found in project %s", eventID, projectID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return json.RawMessage(body), nil
}

// ListPivots retrieves pivot summaries for an error.
// Absence of pivots is not an error; a 404 yields an empty list.
func (c *InsightClient) ListPivots(projectID, errorID string, filters domain.FilterObject) ([]json.RawMessage, error) {
	values := url.Values{}
	if filters != nil {
		filters.Encode(values)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/errors/%s/pivots", c.baseURL, projectID, errorID)
	if qs := values.Encode(); qs != "" {
		endpoint = endpoint + "?" + qs
	}

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []json.RawMessage{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	var pivots []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&pivots); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if pivots == nil {
		pivots = []json.RawMessage{}
	}

	return pivots, nil
}

// ErrorUpdate is the mutation body for UpdateError.
type ErrorUpdate struct {
	Operation string `json:"operation"`
	Severity  string `json:"severity,omitempty"`
}

// UpdateError applies a mutation to an error. Success is defined as
// HTTP 200 or 204; any other status yields success=false without an
// error, so the caller can report the true outcome. Transport-level
// failures are still returned as errors.
func (c *InsightClient) UpdateError(projectID, errorID string, update *ErrorUpdate) (bool, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/errors/%s", c.baseURL, projectID, errorID)

	body, err := json.Marshal(update)
	if err != nil {
		return false, fmt.Errorf("failed to marshal update: %w", err)
	}

	req, err := http.NewRequest("PATCH", endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent, nil
}

// ListBuilds retrieves the current page of builds for a project.
func (c *InsightClient) ListBuilds(projectID string) ([]domain.BuildSummary, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/builds", c.baseURL, projectID)

	var builds []domain.BuildSummary
	if err := c.getJSON(endpoint, &builds); err != nil {
		return nil, err
	}

	return builds, nil
}

// GetBuild retrieves one build by id.
// Returns a NotFound client error when the build does not exist.
func (c *InsightClient) GetBuild(projectID, buildID string) (*domain.BuildSummary, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/builds/%s", c.baseURL, projectID, buildID)

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NotFoundError("build %s not found in project %s", buildID, projectID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	var build domain.BuildSummary
	if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &build, nil
}

// ListReleases retrieves the current page of releases for a project.
func (c *InsightClient) ListReleases(projectID string) ([]domain.ReleaseSummary, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/releases", c.baseURL, projectID)

	var releases []domain.ReleaseSummary
	if err := c.getJSON(endpoint, &releases); err != nil {
		return nil, err
	}

	return releases, nil
}

// GetRelease retrieves one release by id.
// Returns a NotFound client error when the release does not exist.
func (c *InsightClient) GetRelease(projectID, releaseID string) (*domain.ReleaseSummary, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/releases/%s", c.baseURL, projectID, releaseID)

	resp, err := c.get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NotFoundError("release %s not found in project %s", releaseID, projectID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, domain.NewHTTPError(resp.StatusCode, "API error", string(body))
	}

	var release domain.ReleaseSummary
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &release, nil
}

// GetStabilityTargets retrieves the stability target configuration for
// a project.
func (c *InsightClient) GetStabilityTargets(projectID string) (*domain.StabilityTargets, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/stability_targets", c.baseURL, projectID)

	var targets domain.StabilityTargets
	if err := c.getJSON(endpoint, &targets); err != nil {
		return nil, err
	}

	return &targets, nil
}

// nextPageLink extracts the continuation URL from a Link response
// header using the <...> bracket convention. Returns empty when no
// next page is advertised.
func nextPageLink(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}

	start := strings.Index(link, "<")
	end := strings.Index(link, ">")
	if start == -1 || end == -1 || end <= start {
		return ""
	}

	return link[start+1 : end]
}
