package domain

import (
	"net/url"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFilterEncodingProperties verifies structural properties of the
// filters[key][i][type|value] query encoding.
func TestFilterEncodingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genKey := gen.OneConstOf("error.status", "app.release_stage", "user.email", "event.severity")
	genPredType := gen.OneConstOf("eq", "ne")

	// Property: every predicate contributes exactly one type and one
	// value parameter
	properties.Property("Every predicate encodes to a type/value pair", prop.ForAll(
		func(key string, predType string, predValue string) bool {
			filters := FilterObject{
				key: []FilterPredicate{{Type: predType, Value: predValue}},
			}

			values := url.Values{}
			filters.Encode(values)

			return len(values) == 2 &&
				values.Get("filters["+key+"][0][type]") == predType &&
				values.Get("filters["+key+"][0][value]") == predValue
		},
		genKey,
		genPredType,
		gen.AlphaString(),
	))

	// Property: encoding is deterministic regardless of map iteration order
	properties.Property("Encoding is deterministic", prop.ForAll(
		func(v1, v2, v3 string) bool {
			filters := FilterObject{
				"error.status":      []FilterPredicate{{Type: "eq", Value: v1}},
				"app.release_stage": []FilterPredicate{{Type: "eq", Value: v2}},
				"user.email":        []FilterPredicate{{Type: "eq", Value: v3}},
			}

			first := url.Values{}
			filters.Encode(first)

			for i := 0; i < 5; i++ {
				again := url.Values{}
				filters.Encode(again)
				if again.Encode() != first.Encode() {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	// Property: predicate order within a key is preserved by index
	properties.Property("Predicate order is preserved by index", prop.ForAll(
		func(key string, first string, second string) bool {
			filters := FilterObject{
				key: []FilterPredicate{
					{Type: "eq", Value: first},
					{Type: "ne", Value: second},
				},
			}

			values := url.Values{}
			filters.Encode(values)

			return values.Get("filters["+key+"][0][value]") == first &&
				values.Get("filters["+key+"][1][value]") == second
		},
		genKey,
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestStabilityProperties verifies invariants of the stability derivation.
func TestStabilityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genCounter := gen.Int64Range(0, 1_000_000)
	genThreshold := gen.Float64Range(0, 1)
	genTargetType := gen.OneConstOf("user", "session")

	// Property: stability ratios stay within [0, 1] for consistent counters
	properties.Property("Stability ratios are within [0,1]", prop.ForAll(
		func(seen int64, unhandledFraction int64, sessions int64, sessionUnhandledFraction int64, targetType string) bool {
			withUnhandled := int64(0)
			if seen > 0 {
				withUnhandled = unhandledFraction % (seen + 1)
			}
			unhandledSessions := int64(0)
			if sessions > 0 {
				unhandledSessions = sessionUnhandledFraction % (sessions + 1)
			}

			targets := StabilityTargets{
				StabilityTargetType: targetType,
				TargetStability:     StabilityValue{Value: 0.99},
				CriticalStability:   StabilityValue{Value: 0.95},
			}

			data := computeStability(seen, withUnhandled, sessions, unhandledSessions, targets)
			return data.UserStability >= 0 && data.UserStability <= 1 &&
				data.SessionStability >= 0 && data.SessionStability <= 1
		},
		genCounter,
		genCounter,
		genCounter,
		genCounter,
		genTargetType,
	))

	// Property: more unhandled users never raises user stability
	properties.Property("User stability is monotone in unhandled count", prop.ForAll(
		func(seen int64, unhandled int64) bool {
			if seen == 0 {
				return true
			}
			unhandled = unhandled % (seen + 1)

			targets := StabilityTargets{StabilityTargetType: "user"}
			base := computeStability(seen, unhandled, 0, 0, targets)

			if unhandled < seen {
				worse := computeStability(seen, unhandled+1, 0, 0, targets)
				return worse.UserStability <= base.UserStability
			}
			return true
		},
		gen.Int64Range(0, 100_000),
		gen.Int64Range(0, 100_000),
	))

	// Property: meeting the target implies meeting the critical threshold
	// whenever critical <= target
	properties.Property("Meets-target implies meets-critical when critical <= target", prop.ForAll(
		func(seen int64, unhandledFraction int64, target float64, critical float64, targetType string) bool {
			if critical > target {
				target, critical = critical, target
			}

			withUnhandled := int64(0)
			if seen > 0 {
				withUnhandled = unhandledFraction % (seen + 1)
			}

			targets := StabilityTargets{
				StabilityTargetType: targetType,
				TargetStability:     StabilityValue{Value: target},
				CriticalStability:   StabilityValue{Value: critical},
			}

			data := computeStability(seen, withUnhandled, seen, withUnhandled, targets)
			if data.MeetsTargetStability && !data.MeetsCriticalStability {
				return false
			}
			return true
		},
		genCounter,
		genCounter,
		genThreshold,
		genThreshold,
		genTargetType,
	))

	// Property: zero denominators always yield zero stability
	properties.Property("Zero denominators yield zero stability", prop.ForAll(
		func(targetType string, target float64) bool {
			targets := StabilityTargets{
				StabilityTargetType: targetType,
				TargetStability:     StabilityValue{Value: target},
			}
			data := computeStability(0, 0, 0, 0, targets)
			return data.UserStability == 0 && data.SessionStability == 0
		},
		genTargetType,
		genThreshold,
	))

	properties.TestingRun(t)
}

// TestCacheProperties verifies invariants of the in-memory cache.
func TestCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: a value read back within its TTL equals the last write
	properties.Property("Read-back within TTL returns last write", prop.ForAll(
		func(id string, first string, second string) bool {
			cache := NewMemoryCache()
			key := ProjectLookupKey(id)

			cache.Set(key, first, MediumTTL)
			cache.Set(key, second, MediumTTL)

			value, ok := cache.Get(key)
			return ok && value == second
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	// Property: keys of different kinds never alias
	properties.Property("Different key kinds never alias", prop.ForAll(
		func(id string) bool {
			cache := NewMemoryCache()

			cache.Set(BuildKey(id), "build", MediumTTL)
			cache.Set(ReleaseKey(id), "release", MediumTTL)

			buildValue, buildOK := cache.Get(BuildKey(id))
			releaseValue, releaseOK := cache.Get(ReleaseKey(id))

			return buildOK && releaseOK && buildValue == "build" && releaseValue == "release"
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// TestConfigValidationProperties verifies required-field validation over
// generated configurations.
func TestConfigValidationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: missing transport type always fails validation
	properties.Property("Missing transport type fails validation", prop.ForAll(
		func(token string) bool {
			config := validInsightConfig()
			config.Transport.Type = ""
			config.Products.InsightHub.Auth.Token = token

			err := config.Validate()
			return err != nil && contains(err.Error(), "transport type is required")
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	// Property: missing auth token always fails validation
	properties.Property("Missing auth token fails validation", prop.ForAll(
		func(transportType string) bool {
			config := validInsightConfig()
			config.Transport.Type = transportType
			if transportType == "http" {
				config.Transport.HTTP = HTTPConfig{Host: "localhost", Port: 8080}
			}
			config.Products.InsightHub.Auth.Token = ""

			err := config.Validate()
			return err != nil && contains(err.Error(), "auth token is required")
		},
		gen.OneConstOf("stdio", "http"),
	))

	// Property: validation errors never expose the configured token
	properties.Property("Validation errors do not expose the token", prop.ForAll(
		func(token string) bool {
			config := validInsightConfig()
			config.Transport.Type = ""
			config.Products.InsightHub.Auth.Token = token

			err := config.Validate()
			if err == nil {
				return false
			}
			return !contains(err.Error(), token)
		},
		gen.AlphaString().
			SuchThat(func(s string) bool { return len(s) >= 16 }).
			Map(func(s string) string { return "TOKEN_" + s }),
	))

	// Property: a fully valid configuration passes validation
	properties.Property("Valid configuration passes validation", prop.ForAll(
		func(transportType string, authType string, projectAPIKey string) bool {
			config := validInsightConfig()
			config.Transport.Type = transportType
			if transportType == "http" {
				config.Transport.HTTP = HTTPConfig{Host: "localhost", Port: 8080}
			}
			config.Products.InsightHub.Auth.Type = authType
			config.Products.InsightHub.ProjectAPIKey = projectAPIKey

			return config.Validate() == nil
		},
		gen.OneConstOf("stdio", "http"),
		gen.OneConstOf("token", "bearer"),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
