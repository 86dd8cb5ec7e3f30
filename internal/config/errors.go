package config

import (
	"fmt"

	"github.com/fledgehq/fledge/pkg/classify"
)

// ConfigError reports a static validation failure. It is fatal before
// any side effects: the Coordinator aborts the build without booting a
// supervisor or touching outputDir.
type ConfigError struct {
	Field string
	Cause string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Cause)
}

func (e *ConfigError) Severity() classify.Severity { return classify.SeverityFatal }

var _ classify.ClassifiedError = (*ConfigError)(nil)

// Sentinel causes, so callers can errors.Is against a cause class
// rather than parsing Error() strings.
var (
	ErrFileDoesNotExist  = fmt.Errorf("config file does not exist")
	ErrReadConfigFail    = fmt.Errorf("failed to read config file")
	ErrConfigParsingFail = fmt.Errorf("failed to parse config file")
)
