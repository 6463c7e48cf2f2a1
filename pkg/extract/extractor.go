package extract

import (
	"github.com/sirupsen/logrus"

	"github.com/atlassian/gokairos"
)

// alwaysExcluded fields are never scanned as metrics.
var alwaysExcluded = map[string]struct{}{
	gokairos.FieldTimestamp: {},
	gokairos.FieldVersion:   {},
}

// Extractor turns events into metrics in either field-scan or explicit mode.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	logger   logrus.FieldLogger
	patterns *gokairos.PatternSet

	metrics          []MetricTemplate
	fieldsAreMetrics bool
	timestampField   string
	separator        string
}

// New validates the configuration and compiles its patterns.
func New(cfg Config, logger logrus.FieldLogger) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	patterns, err := gokairos.NewPatternSet(cfg.IncludeMetrics, cfg.ExcludeMetrics)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		logger:           logger,
		patterns:         patterns,
		metrics:          append([]MetricTemplate(nil), cfg.Metrics...),
		fieldsAreMetrics: cfg.FieldsAreMetrics,
		timestampField:   cfg.TimestampField,
		separator:        cfg.Separator,
	}, nil
}

// Extract returns every metric of the event, in a deterministic order.
func (x *Extractor) Extract(e *gokairos.Event) []gokairos.Metric {
	var metrics []gokairos.Metric
	x.ExtractFunc(e, func(m gokairos.Metric) {
		metrics = append(metrics, m)
	})
	return metrics
}

// ExtractFunc calls emit for every metric of the event and returns how many were emitted.
func (x *Extractor) ExtractFunc(e *gokairos.Event, emit func(gokairos.Metric)) int {
	timestamp := x.timestamp(e)
	count := 0
	counting := func(m gokairos.Metric) {
		count++
		emit(m)
	}
	if x.fieldsAreMetrics {
		x.scanFields(e, timestamp, counting)
	} else {
		x.applyTemplates(e, timestamp, counting)
	}
	if count == 0 {
		x.logger.WithField("fields", e.Len()).Debug("Event produced no metrics")
	}
	return count
}

func (x *Extractor) timestamp(e *gokairos.Event) int64 {
	v, _ := e.Get(x.timestampField)
	return gokairos.CoerceTimestamp(v)
}

func (x *Extractor) scanFields(e *gokairos.Event, timestamp int64, emit func(gokairos.Metric)) {
	e.Each(func(name string, value interface{}) {
		if _, ok := alwaysExcluded[name]; ok {
			return
		}
		if !x.patterns.Match(name) {
			return
		}
		if m, ok := gokairos.AsMapping(value); ok {
			x.emitFlattened(m, name, timestamp, emit)
			return
		}
		// Only nested leaves are dropped for being sequences, a top-level one coerces to 0.
		emit(gokairos.Metric{
			Name:      name,
			Value:     gokairos.FloatValue(gokairos.CoerceFloat(value)),
			Timestamp: timestamp,
		})
	})
}

func (x *Extractor) applyTemplates(e *gokairos.Event, timestamp int64, emit func(gokairos.Metric)) {
	for _, tmpl := range x.metrics {
		name := e.Sprintf(tmpl.Name)
		if !x.patterns.Match(name) {
			continue
		}
		// The resolved name may address a nested structure of the event.
		if field, ok := e.Get(name); ok {
			if m, ok := gokairos.AsMapping(field); ok {
				x.emitFlattened(m, name, timestamp, emit)
				continue
			}
		}
		emit(gokairos.Metric{
			Name:      name,
			Value:     gokairos.FloatValue(gokairos.CoerceFloat(e.Sprintf(tmpl.Value))),
			Timestamp: timestamp,
		})
	}
}

func (x *Extractor) emitFlattened(node map[string]interface{}, prefix string, timestamp int64, emit func(gokairos.Metric)) {
	flat := Flatten(node, prefix, x.separator, x.warnSkipped)
	for _, key := range gokairos.SortedKeys(flat) {
		emit(gokairos.Metric{
			Name:      key,
			Value:     gokairos.NativeValue(flat[key]),
			Timestamp: timestamp,
		})
	}
}

func (x *Extractor) warnSkipped(key string, value interface{}) {
	x.logger.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Warn("Sequence values are not supported as metrics, ignoring")
}
