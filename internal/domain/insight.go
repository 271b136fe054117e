package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Organization is the top-level Insight Hub tenant grouping projects
// under one account. It is fetched once per cache window and is
// immutable while cached.
type Organization struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Project is a monitored application within an organization. The APIKey
// is the project-scoped notifier credential; at most one project matches
// the key configured on the server, and that project becomes the
// "current project" binding.
type Project struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// EventField is one filterable/pivotable dimension of event telemetry
// for a project. FilterOptions and PivotOptions are passed through
// opaquely; the core only depends on DisplayID.
type EventField struct {
	DisplayID     string          `json:"display_id"`
	Custom        bool            `json:"custom"`
	FilterOptions json.RawMessage `json:"filter_options,omitempty"`
	PivotOptions  json.RawMessage `json:"pivot_options,omitempty"`
}

// excludedEventFields lists display_ids that are unsuitable as
// structured filters and are removed from every fetched field set.
var excludedEventFields = map[string]bool{
	"search": true,
}

// FilterEventFields removes excluded display_ids from a fetched field
// list, preserving order.
func FilterEventFields(fields []EventField) []EventField {
	filtered := make([]EventField, 0, len(fields))
	for _, f := range fields {
		if excludedEventFields[f.DisplayID] {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}

// FilterPredicate is one predicate applied to a filter field.
type FilterPredicate struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// FilterObject maps filter field display_ids to ordered predicate
// sequences. Multiple entries combine with AND semantics on the remote
// API. Keys are validated against the project's EventField set before
// any network call.
type FilterObject map[string][]FilterPredicate

// Encode serializes the filter object into query parameters using the
// filters[key][i][type|value] convention expected by the Insight Hub
// API. Keys are encoded in sorted order so the output is deterministic.
func (f FilterObject) Encode(values url.Values) {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for i, pred := range f[key] {
			prefix := fmt.Sprintf("filters[%s][%s]", key, strconv.Itoa(i))
			values.Set(prefix+"[type]", pred.Type)
			values.Set(prefix+"[value]", pred.Value)
		}
	}
}

// StabilityValue wraps a stability threshold.
type StabilityValue struct {
	Value float64 `json:"value"`
}

// StabilityTargets is the project-scoped stability configuration used
// to annotate builds and releases.
type StabilityTargets struct {
	StabilityTargetType string         `json:"stability_target_type"` // "user" or "session"
	TargetStability     StabilityValue `json:"target_stability"`
	CriticalStability   StabilityValue `json:"critical_stability"`
}

// BuildSummary is a raw build record. Only the stability counters are
// interpreted; identity fields are carried for the caller.
type BuildSummary struct {
	ID                                 string `json:"id"`
	AppVersion                         string `json:"app_version,omitempty"`
	ReleaseStage                       string `json:"release_stage,omitempty"`
	AccumulativeDailyUsersSeen         int64  `json:"accumulative_daily_users_seen"`
	AccumulativeDailyUsersWithUnhandled int64 `json:"accumulative_daily_users_with_unhandled"`
	TotalSessionsCount                 int64  `json:"total_sessions_count"`
	UnhandledSessionsCount             int64  `json:"unhandled_sessions_count"`
}

// ReleaseSummary is a raw release record with the same stability
// counters as a build.
type ReleaseSummary struct {
	ID                                 string `json:"id"`
	AppVersion                         string `json:"app_version,omitempty"`
	ReleaseStage                       string `json:"release_stage,omitempty"`
	AccumulativeDailyUsersSeen         int64  `json:"accumulative_daily_users_seen"`
	AccumulativeDailyUsersWithUnhandled int64 `json:"accumulative_daily_users_with_unhandled"`
	TotalSessionsCount                 int64  `json:"total_sessions_count"`
	UnhandledSessionsCount             int64  `json:"unhandled_sessions_count"`
}

// ErrorListResult is the shaped result of a paginated error query.
// Total is present only when the remote API reported X-Total-Count;
// Next is present only when a Link header advertised a next page.
type ErrorListResult struct {
	Data  []json.RawMessage `json:"data"`
	Count int               `json:"count"`
	Total *int              `json:"total,omitempty"`
	Next  string            `json:"next,omitempty"`
}

// ErrorDetailsResult aggregates the detail view of one error: the
// aggregate record, the most recent matching event (nil when the
// enrichment fetch failed), pivot summaries, and the dashboard URL a
// human reviewer uses to act on the error.
type ErrorDetailsResult struct {
	ErrorDetails json.RawMessage   `json:"error_details"`
	LatestEvent  json.RawMessage   `json:"latest_event"`
	Pivots       []json.RawMessage `json:"pivots"`
	URL          string            `json:"url"`
}

// ErrorOperation enumerates the mutations accepted by UpdateError.
type ErrorOperation string

const (
	OpOverrideSeverity ErrorOperation = "override_severity"
	OpOpen             ErrorOperation = "open"
	OpFix              ErrorOperation = "fix"
	OpIgnore           ErrorOperation = "ignore"
	OpDiscard          ErrorOperation = "discard"
	OpUndiscard        ErrorOperation = "undiscard"
)

// ValidErrorOperation reports whether op is a member of the accepted
// operation set.
func ValidErrorOperation(op string) bool {
	switch ErrorOperation(op) {
	case OpOverrideSeverity, OpOpen, OpFix, OpIgnore, OpDiscard, OpUndiscard:
		return true
	default:
		return false
	}
}

// DashboardErrorURL composes the human-navigable dashboard link for an
// error. The format must be reproduced exactly for links to resolve in
// the product UI.
func DashboardErrorURL(appBase string, orgSlug, projectSlug, errorID, queryString string) string {
	u := fmt.Sprintf("%s/%s/%s/errors/%s", appBase, orgSlug, projectSlug, errorID)
	if queryString != "" {
		u += "?" + queryString
	}
	return u
}
