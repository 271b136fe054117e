package application

import (
	"fmt"

	"github.com/SmartBear/smartbear-mcp-sub003/internal/domain"
)

// getStringParam extracts a string parameter from the arguments map.
// Returns an error if the parameter is required but missing or not a string.
func getStringParam(args map[string]interface{}, name string, required bool) (string, error) {
	value, exists := args[name]
	if !exists {
		if required {
			return "", &domain.Error{
				Code:    domain.InvalidParams,
				Message: fmt.Sprintf("missing required parameter: %s", name),
			}
		}
		return "", nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("parameter %s must be a string", name),
		}
	}

	return strValue, nil
}

// getIntParam extracts an integer parameter from the arguments map.
// Returns an error if the parameter is required but missing or not a number.
// Also returns an error if the parameter exists but is not a valid number type.
func getIntParam(args map[string]interface{}, name string, required bool) (int, error) {
	value, exists := args[name]
	if !exists {
		if required {
			return 0, &domain.Error{
				Code:    domain.InvalidParams,
				Message: fmt.Sprintf("missing required parameter: %s", name),
			}
		}
		return 0, nil
	}

	// Handle both float64 (from JSON) and int
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		// If the parameter exists but is not a valid type, return an error
		// even if it's not required
		return 0, &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("parameter %s must be an integer", name),
		}
	}
}

// getFilterParam extracts an optional filter object from the arguments
// map. The JSON shape is a map from filter field display_id to an array
// of {type, value} predicate objects. Returns nil when no filters were
// supplied.
func getFilterParam(args map[string]interface{}, name string) (domain.FilterObject, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return nil, nil
	}

	rawFilters, ok := value.(map[string]interface{})
	if !ok {
		return nil, &domain.Error{
			Code:    domain.InvalidParams,
			Message: fmt.Sprintf("parameter %s must be an object", name),
		}
	}

	filters := make(domain.FilterObject, len(rawFilters))
	for key, rawPredicates := range rawFilters {
		predicateList, ok := rawPredicates.([]interface{})
		if !ok {
			return nil, &domain.Error{
				Code:    domain.InvalidParams,
				Message: fmt.Sprintf("filter %s must be an array of predicates", key),
			}
		}

		predicates := make([]domain.FilterPredicate, 0, len(predicateList))
		for _, rawPredicate := range predicateList {
			predicateMap, ok := rawPredicate.(map[string]interface{})
			if !ok {
				return nil, &domain.Error{
					Code:    domain.InvalidParams,
					Message: fmt.Sprintf("filter %s predicates must be objects with type and value", key),
				}
			}

			predType, _ := predicateMap["type"].(string)
			if predType == "" {
				predType = "eq"
			}
			predValue, ok := predicateMap["value"].(string)
			if !ok {
				return nil, &domain.Error{
					Code:    domain.InvalidParams,
					Message: fmt.Sprintf("filter %s predicate value must be a string", key),
				}
			}

			predicates = append(predicates, domain.FilterPredicate{
				Type:  predType,
				Value: predValue,
			})
		}

		filters[key] = predicates
	}

	return filters, nil
}
