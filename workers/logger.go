package workers

import (
	"gramscout/models"
	"gramscout/storage"
)

// LogFunc mirrors a worker's notable lines somewhere visible, tagged with
// the worker name.
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// OpsLogger mirrors worker lines into the ops store's crawl_logs table so
// they show up on the dashboard.
func OpsLogger(ops *storage.OpsStore) LogFunc {
	return func(level models.LogLevel, source, message string) {
		ops.Log(nil, level, message, source)
	}
}
