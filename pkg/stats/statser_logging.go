package stats

import (
	"github.com/sirupsen/logrus"
)

// LoggingStatser is a Statser which emits logs
type LoggingStatser struct {
	flushNotifier

	tags   Tags
	logger logrus.FieldLogger
}

// NewLoggingStatser creates a new Statser which sends metrics to the
// supplied logger.
func NewLoggingStatser(tags Tags, logger logrus.FieldLogger) *LoggingStatser {
	return &LoggingStatser{
		tags:   tags,
		logger: logger,
	}
}

// Gauge sends a gauge metric
func (ls *LoggingStatser) Gauge(name string, value float64, tags Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name":  name,
		"tags":  ls.tags.Concat(tags),
		"value": value,
	}).Info("gauge")
}

// Count sends a counter metric
func (ls *LoggingStatser) Count(name string, amount float64, tags Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name":   name,
		"tags":   ls.tags.Concat(tags),
		"amount": amount,
	}).Info("count")
}

// Increment sends a counter metric with a value of 1
func (ls *LoggingStatser) Increment(name string, tags Tags) {
	ls.Count(name, 1, tags)
}

// WithTags creates a new Statser with additional tags
func (ls *LoggingStatser) WithTags(tags Tags) Statser {
	return NewTaggedStatser(ls, tags)
}
