package registry

import (
	"fmt"
	"strconv"
)

// Settings are the build-time knobs parsed from the configuration
// document's settings element.
type Settings struct {
	CacheEnabled             bool
	LazyLoadingEnabled       bool
	UseGeneratedKeys         bool
	MapUnderscoreToCamelCase bool
	DefaultStatementTimeout  int
	DefaultFetchSize         int
}

// DefaultSettings returns the values used when the configuration document
// declares nothing.
func DefaultSettings() Settings {
	return Settings{CacheEnabled: true}
}

// Apply overlays named setting values onto s. An unknown setting name or a
// malformed value is fatal.
func (s *Settings) Apply(props map[string]string) error {
	for name, value := range props {
		var err error
		switch name {
		case "cacheEnabled":
			s.CacheEnabled, err = strconv.ParseBool(value)
		case "lazyLoadingEnabled":
			s.LazyLoadingEnabled, err = strconv.ParseBool(value)
		case "useGeneratedKeys":
			s.UseGeneratedKeys, err = strconv.ParseBool(value)
		case "mapUnderscoreToCamelCase":
			s.MapUnderscoreToCamelCase, err = strconv.ParseBool(value)
		case "defaultStatementTimeout":
			s.DefaultStatementTimeout, err = strconv.Atoi(value)
		case "defaultFetchSize":
			s.DefaultFetchSize, err = strconv.Atoi(value)
		default:
			return fmt.Errorf("unknown setting %q", name)
		}
		if err != nil {
			return fmt.Errorf("setting %q: %w", name, err)
		}
	}
	return nil
}
