// -----------------------------------------------------------------------
// Source Validation - required config fields per source type
// -----------------------------------------------------------------------

package sources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// atsTypes are the provider-shorthand source types, addressed by a board
// token or a board URL rather than a full adapter configuration.
var atsTypes = map[string]bool{
	models.SourceTypeGreenhouse:      true,
	models.SourceTypeLever:           true,
	models.SourceTypeAshby:           true,
	models.SourceTypeSmartRecruiters: true,
	models.SourceTypeRecruitee:       true,
	models.SourceTypeBreezy:          true,
	models.SourceTypeWorkable:        true,
	models.SourceTypeWorkday:         true,
}

// ValidateConfig checks that a config carries the required fields for its
// source type. Recovery proposals run through this before being probed.
func ValidateConfig(sourceType string, config map[string]interface{}) error {
	switch {
	case sourceType == models.SourceTypeHTML:
		return validateHTMLConfig(config)
	case sourceType == models.SourceTypeAPI:
		return validateAPIConfig(config)
	case sourceType == models.SourceTypeRSS:
		return validateRSSConfig(config)
	case atsTypes[sourceType]:
		return validateATSConfig(config)
	case sourceType == "":
		return fmt.Errorf("source type is required")
	default:
		return fmt.Errorf("unknown source type %q", sourceType)
	}
}

func configString(config map[string]interface{}, key string) string {
	if config == nil {
		return ""
	}
	v, _ := config[key].(string)
	return strings.TrimSpace(v)
}

func configFields(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	fields, _ := config["fields"].(map[string]interface{})
	return fields
}

func requireURL(config map[string]interface{}) error {
	raw := configString(config, "url")
	if raw == "" {
		return fmt.Errorf("config requires url")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("config url %q is not a valid http(s) url", raw)
	}
	return nil
}

func validateHTMLConfig(config map[string]interface{}) error {
	if err := requireURL(config); err != nil {
		return err
	}
	if configString(config, "job_selector") == "" {
		return fmt.Errorf("html config requires job_selector")
	}
	fields := configFields(config)
	if fields == nil {
		return fmt.Errorf("html config requires fields")
	}
	for _, key := range []string{"title", "url"} {
		if v, _ := fields[key].(string); strings.TrimSpace(v) == "" {
			return fmt.Errorf("html config requires fields.%s", key)
		}
	}
	return nil
}

func validateAPIConfig(config map[string]interface{}) error {
	if err := requireURL(config); err != nil {
		return err
	}
	if configString(config, "response_path") == "" {
		return fmt.Errorf("api config requires response_path")
	}
	fields := configFields(config)
	if len(fields) == 0 {
		return fmt.Errorf("api config requires fields")
	}
	if v, _ := fields["title"].(string); strings.TrimSpace(v) == "" {
		return fmt.Errorf("api config requires fields.title")
	}
	if pagination, ok := config["pagination"].(map[string]interface{}); ok {
		pType, _ := pagination["type"].(string)
		switch pType {
		case "offset", "page_num":
		default:
			return fmt.Errorf("api pagination type %q must be offset or page_num", pType)
		}
		if v, _ := pagination["param"].(string); strings.TrimSpace(v) == "" {
			return fmt.Errorf("api pagination requires param")
		}
	}
	return nil
}

func validateRSSConfig(config map[string]interface{}) error {
	return requireURL(config)
}

func validateATSConfig(config map[string]interface{}) error {
	if configString(config, "board_token") != "" {
		return nil
	}
	if configString(config, "url") != "" {
		return requireURL(config)
	}
	return fmt.Errorf("ats config requires board_token or url")
}
