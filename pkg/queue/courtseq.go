// pkg/queue/courtseq.go
package queue

import "strconv"

// NormalizeCourtSequence turns a raw candidate list (possibly containing
// nils, strings, duplicates and unknown courts) into an ordered, de-duplicated
// preference list. First occurrence wins; original order is preserved. When
// allowed is non-nil only those court numbers survive.
func NormalizeCourtSequence(raw []any, allowed []int) []int {
	var allowedSet map[int]struct{}
	if allowed != nil {
		allowedSet = make(map[int]struct{}, len(allowed))
		for _, court := range allowed {
			allowedSet[court] = struct{}{}
		}
	}

	seen := make(map[int]struct{})
	var ordered []int
	for _, value := range raw {
		court, ok := coerceCourtNumber(value)
		if !ok {
			continue
		}
		if allowedSet != nil {
			if _, permitted := allowedSet[court]; !permitted {
				continue
			}
		}
		if _, duplicate := seen[court]; duplicate {
			continue
		}
		seen[court] = struct{}{}
		ordered = append(ordered, court)
	}
	return ordered
}

func coerceCourtNumber(value any) (int, bool) {
	switch typed := value.(type) {
	case nil:
		return 0, false
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case string:
		parsed, parseError := strconv.Atoi(typed)
		if parseError != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
