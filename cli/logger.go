package cli

import (
	"github.com/sirupsen/logrus"

	"github.com/sheetflow/sheetflow/common"
	"github.com/sheetflow/sheetflow/config"
)

// newEntry builds the *logrus.Entry the domain packages (worker, gateway,
// pipeline, api, autoscaler) take as their logger, configured from
// cfg.Service's level/format via the same common.NewLogger the ambient
// HTTP layer uses, and tagged with component and service name.
func newEntry(cfg config.PipelineConfig, component string) *logrus.Entry {
	logger := common.NewLogger(common.LoggerConfig{
		Level:   common.LogLevel(cfg.Service.LogLevel),
		Format:  cfg.Service.LogFormat,
		Service: cfg.Service.Name,
		Version: cfg.Service.Version,
	})
	return logger.WithFields(logrus.Fields{
		"service":   cfg.Service.Name,
		"component": component,
	})
}
