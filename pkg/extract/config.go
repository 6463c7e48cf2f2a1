package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/gokairos"
)

const (
	// DefaultSeparator joins parent and child keys when flattening.
	DefaultSeparator = "."
	// DefaultTimestampField is the event field supplying the timestamp.
	DefaultTimestampField = gokairos.FieldTimestamp
)

const (
	// ParamMetrics is the name of parameter with explicit name=value metric templates.
	ParamMetrics = "metrics"
	// ParamFieldsAreMetrics is the name of parameter selecting field-scan mode.
	ParamFieldsAreMetrics = "fields-are-metrics"
	// ParamIncludeMetrics is the name of parameter with metric name include patterns.
	ParamIncludeMetrics = "include-metrics"
	// ParamExcludeMetrics is the name of parameter with metric name exclude patterns.
	ParamExcludeMetrics = "exclude-metrics"
	// ParamTimestampField is the name of parameter with the timestamp field.
	ParamTimestampField = "timestamp-field"
	// ParamNestedObjectSeparator is the name of parameter with the flatten separator.
	ParamNestedObjectSeparator = "nested-object-separator"
)

var (
	ErrNoMode       = errors.New("either metrics or fields-are-metrics must be configured")
	ErrBothModes    = errors.New("metrics and fields-are-metrics are mutually exclusive")
	ErrNoSeparator  = errors.New("nested-object-separator must not be empty")
	ErrNoTimeSource = errors.New("timestamp-field must not be empty")
)

// MetricTemplate is one explicit metric: both fields may contain %{field} tokens.
type MetricTemplate struct {
	Name  string
	Value string
}

// Config selects and filters the metrics extracted from events.
type Config struct {
	// Metrics enables explicit mode.
	Metrics []MetricTemplate
	// FieldsAreMetrics enables field-scan mode.
	FieldsAreMetrics bool
	IncludeMetrics   []string
	ExcludeMetrics   []string
	TimestampField   string
	Separator        string
}

// DefaultConfig returns a Config with every default applied and no mode selected.
func DefaultConfig() Config {
	return Config{
		IncludeMetrics: append([]string(nil), gokairos.DefaultIncludeMetrics...),
		ExcludeMetrics: append([]string(nil), gokairos.DefaultExcludeMetrics...),
		TimestampField: DefaultTimestampField,
		Separator:      DefaultSeparator,
	}
}

// Validate checks that exactly one extraction mode is configured.
func (c Config) Validate() error {
	switch {
	case len(c.Metrics) == 0 && !c.FieldsAreMetrics:
		return ErrNoMode
	case len(c.Metrics) > 0 && c.FieldsAreMetrics:
		return ErrBothModes
	case c.Separator == "":
		return ErrNoSeparator
	case c.TimestampField == "":
		return ErrNoTimeSource
	}
	for _, m := range c.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric with value %q has an empty name", m.Value)
		}
	}
	return nil
}

// ParseMetricTemplates parses "name=value" pairs.  The name ends at the first '='.
func ParseMetricTemplates(pairs []string) ([]MetricTemplate, error) {
	templates := make([]MetricTemplate, 0, len(pairs))
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("metric %q is not of the form name=value", pair)
		}
		templates = append(templates, MetricTemplate{
			Name:  pair[:idx],
			Value: pair[idx+1:],
		})
	}
	return templates, nil
}

// metricTemplatesFromViper accepts either a name to value table, taken in name order, or a
// list of name=value pairs.  Table keys are lower cased by viper when read from a file.
func metricTemplatesFromViper(v *viper.Viper) ([]MetricTemplate, error) {
	if table := v.GetStringMapString(ParamMetrics); len(table) > 0 {
		names := make([]string, 0, len(table))
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		templates := make([]MetricTemplate, 0, len(names))
		for _, name := range names {
			templates = append(templates, MetricTemplate{Name: name, Value: table[name]})
		}
		return templates, nil
	}
	return ParseMetricTemplates(v.GetStringSlice(ParamMetrics))
}

// NewConfigFromViper reads and validates a Config.
func NewConfigFromViper(v *viper.Viper) (Config, error) {
	v.SetDefault(ParamMetrics, []string{})
	v.SetDefault(ParamFieldsAreMetrics, false)
	v.SetDefault(ParamIncludeMetrics, gokairos.DefaultIncludeMetrics)
	v.SetDefault(ParamExcludeMetrics, gokairos.DefaultExcludeMetrics)
	v.SetDefault(ParamTimestampField, DefaultTimestampField)
	v.SetDefault(ParamNestedObjectSeparator, DefaultSeparator)

	metrics, err := metricTemplatesFromViper(v)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Metrics:          metrics,
		FieldsAreMetrics: v.GetBool(ParamFieldsAreMetrics),
		IncludeMetrics:   v.GetStringSlice(ParamIncludeMetrics),
		ExcludeMetrics:   v.GetStringSlice(ParamExcludeMetrics),
		TimestampField:   v.GetString(ParamTimestampField),
		Separator:        v.GetString(ParamNestedObjectSeparator),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringSlice(ParamMetrics, nil, "Explicit metric as name=value, both sides may use %{field}. Values are comma separated, quote a metric containing a comma")
	fs.Bool(ParamFieldsAreMetrics, false, "Treat every event field as a metric")
	fs.StringSlice(ParamIncludeMetrics, gokairos.DefaultIncludeMetrics, "Only emit metric names matching one of these regexes")
	fs.StringSlice(ParamExcludeMetrics, gokairos.DefaultExcludeMetrics, "Never emit metric names matching one of these regexes")
	fs.String(ParamTimestampField, DefaultTimestampField, "Event field holding the metric timestamp")
	fs.String(ParamNestedObjectSeparator, DefaultSeparator, "Separator between parent and child keys of nested objects")
}
