package validate

import (
	"errors"
	"fmt"
)

// snippetFields are the string fields every snippet must carry, in check order
var snippetFields = []string{"content", "sourceId", "sourceTitle", "sourceLocation", "relevance"}

// ResearchResponse checks that candidate, a value decoded from JSON into
// interface{}, has the exact research result shape. It returns nil when valid,
// otherwise an error describing the first problem found.
func ResearchResponse(candidate interface{}) error {
	obj, ok := candidate.(map[string]interface{})
	if !ok || obj == nil {
		return errors.New("response is not a JSON object")
	}

	snippets, ok := obj["snippets"].([]interface{})
	if !ok {
		return errors.New("missing or invalid 'snippets' array")
	}
	if _, ok := obj["summary"].(string); !ok {
		return errors.New("missing or invalid 'summary' string")
	}
	if _, ok := obj["noResults"].(bool); !ok {
		return errors.New("missing or invalid 'noResults' boolean")
	}

	for i, raw := range snippets {
		snippet, ok := raw.(map[string]interface{})
		if !ok || snippet == nil {
			return fmt.Errorf("snippets[%d]: not an object", i)
		}
		for _, field := range snippetFields {
			if _, ok := snippet[field].(string); !ok {
				return fmt.Errorf("snippets[%d]: missing or invalid '%s' string", i, field)
			}
		}
	}

	return nil
}
