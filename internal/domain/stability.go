package domain

// StabilityData is derived stability information attached to a build or
// release summary before it is returned to the caller. It is pure
// derived data: recomputing from the same inputs always yields the same
// result, and it is never cached independently of its source record.
type StabilityData struct {
	UserStability          float64 `json:"user_stability"`
	SessionStability       float64 `json:"session_stability"`
	StabilityTargetType    string  `json:"stability_target_type"`
	TargetStability        float64 `json:"target_stability"`
	CriticalStability      float64 `json:"critical_stability"`
	MeetsTargetStability   bool    `json:"meets_target_stability"`
	MeetsCriticalStability bool    `json:"meets_critical_stability"`
}

// AnnotatedBuild is a build summary with stability annotations.
type AnnotatedBuild struct {
	BuildSummary
	StabilityData
}

// AnnotatedRelease is a release summary with stability annotations.
type AnnotatedRelease struct {
	ReleaseSummary
	StabilityData
}

// computeStability derives stability ratios and target compliance from
// raw counters. Zero denominators yield zero stability: the absence of
// observed users or sessions must not read as perfectly stable.
func computeStability(seen, withUnhandled, totalSessions, unhandledSessions int64, targets StabilityTargets) StabilityData {
	var userStability, sessionStability float64
	if seen > 0 {
		userStability = float64(seen-withUnhandled) / float64(seen)
	}
	if totalSessions > 0 {
		sessionStability = float64(totalSessions-unhandledSessions) / float64(totalSessions)
	}

	metric := sessionStability
	if targets.StabilityTargetType == "user" {
		metric = userStability
	}

	return StabilityData{
		UserStability:          userStability,
		SessionStability:       sessionStability,
		StabilityTargetType:    targets.StabilityTargetType,
		TargetStability:        targets.TargetStability.Value,
		CriticalStability:      targets.CriticalStability.Value,
		MeetsTargetStability:   metric >= targets.TargetStability.Value,
		MeetsCriticalStability: metric >= targets.CriticalStability.Value,
	}
}

// AnnotateBuild attaches derived stability data to a raw build summary.
func AnnotateBuild(build BuildSummary, targets StabilityTargets) AnnotatedBuild {
	return AnnotatedBuild{
		BuildSummary: build,
		StabilityData: computeStability(
			build.AccumulativeDailyUsersSeen,
			build.AccumulativeDailyUsersWithUnhandled,
			build.TotalSessionsCount,
			build.UnhandledSessionsCount,
			targets,
		),
	}
}

// AnnotateRelease attaches derived stability data to a raw release summary.
func AnnotateRelease(release ReleaseSummary, targets StabilityTargets) AnnotatedRelease {
	return AnnotatedRelease{
		ReleaseSummary: release,
		StabilityData: computeStability(
			release.AccumulativeDailyUsersSeen,
			release.AccumulativeDailyUsersWithUnhandled,
			release.TotalSessionsCount,
			release.UnhandledSessionsCount,
			targets,
		),
	}
}
