// Package server assembles the extraction pipeline, its inputs and the KairosDB backend.
package server

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ash2k/stager"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atlassian/gokairos"
	"github.com/atlassian/gokairos/pkg/backends/kairosdb"
	"github.com/atlassian/gokairos/pkg/extract"
	"github.com/atlassian/gokairos/pkg/healthcheck"
	"github.com/atlassian/gokairos/pkg/inputs/lines"
	"github.com/atlassian/gokairos/pkg/inputs/redis"
	"github.com/atlassian/gokairos/pkg/pipeline"
	"github.com/atlassian/gokairos/pkg/stats"
	"github.com/atlassian/gokairos/pkg/web"
)

const (
	// ParamInputs is the list of enabled event inputs.
	ParamInputs = "inputs"
	// ParamStatsInterval is how often internal metrics are logged, 0 disables them.
	ParamStatsInterval = "stats-interval"
	// ParamBadLinesPerMinute is how many undecodable stdin lines are logged per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamHeartbeatEnabled enables the heartbeat internal metric.
	ParamHeartbeatEnabled = "heartbeat-enabled"
	// ParamInternalTags is a list of tags added to internal metrics.
	ParamInternalTags = "internal-tags"
)

const (
	InputStdin = "stdin"
	InputHTTP  = "http"
	InputRedis = "redis"
)

const (
	// DefaultStatsInterval disables internal metrics.
	DefaultStatsInterval = time.Duration(0)
	// DefaultHeartbeatEnabled is the default for ParamHeartbeatEnabled.
	DefaultHeartbeatEnabled = false
)

// DefaultInputs reads events from standard input.
var DefaultInputs = []string{InputStdin}

// AddFlags adds the flags of the server and every component it builds.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringSlice(ParamInputs, DefaultInputs, "Event inputs, any of stdin, http, redis")
	fs.Duration(ParamStatsInterval, DefaultStatsInterval, "Internal metrics logging interval, 0 to disable")
	fs.Float64(ParamBadLinesPerMinute, lines.DefaultBadLinesPerMinute, "Undecodable stdin lines to log per minute")
	fs.Bool(ParamHeartbeatEnabled, DefaultHeartbeatEnabled, "Emit a heartbeat internal metric")
	fs.StringSlice(ParamInternalTags, nil, "Tags added to internal metrics")
	extract.AddFlags(fs)
	kairosdb.AddFlags(fs)
}

// Input is a source of events.
type Input struct {
	Name   string
	Runner gokairos.Runner
	// Finite inputs end once their source is exhausted.  Their reads may ignore the
	// context, so shutdown does not wait for them.
	Finite bool
}

// Server runs the pipeline with its inputs until the context is done, or until every
// input is finite and exhausted.
type Server struct {
	Logger        logrus.FieldLogger
	Pipeline      *pipeline.Pipeline
	Backend       *kairosdb.Client
	Inputs        []Input
	StatsInterval time.Duration
	InternalTags  stats.Tags
	HeartbeatTags stats.Tags
	// Statser receives internal metrics, a LoggingStatser on Logger when nil.
	Statser stats.Statser
}

// NewServerFromViper builds a Server.  stdin is the reader of the stdin input.
func NewServerFromViper(v *viper.Viper, logger logrus.FieldLogger, stdin io.Reader, heartbeatTags stats.Tags) (*Server, error) {
	v.SetDefault(ParamInputs, DefaultInputs)
	v.SetDefault(ParamStatsInterval, DefaultStatsInterval)
	v.SetDefault(ParamBadLinesPerMinute, lines.DefaultBadLinesPerMinute)
	v.SetDefault(ParamHeartbeatEnabled, DefaultHeartbeatEnabled)

	cfg, err := extract.NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	extractor, err := extract.New(cfg, logger.WithField("component", "extract"))
	if err != nil {
		return nil, err
	}
	backend, err := kairosdb.NewClientFromViper(v, logger)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(logger.WithField("component", "pipeline"), extractor, backend)

	inputs, err := newInputs(v, logger, stdin, p, backend)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Logger:        logger,
		Pipeline:      p,
		Backend:       backend,
		Inputs:        inputs,
		StatsInterval: v.GetDuration(ParamStatsInterval),
		InternalTags:  v.GetStringSlice(ParamInternalTags),
	}
	if v.GetBool(ParamHeartbeatEnabled) {
		s.HeartbeatTags = heartbeatTags
		if s.HeartbeatTags == nil {
			s.HeartbeatTags = stats.Tags{}
		}
	}
	return s, nil
}

func newInputs(v *viper.Viper, logger logrus.FieldLogger, stdin io.Reader, handler gokairos.EventHandler, backend *kairosdb.Client) ([]Input, error) {
	names := v.GetStringSlice(ParamInputs)
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one input is required")
	}
	healthChecks, deepChecks := healthcheck.MaybeAppendHealthChecks(nil, nil, backend)

	seen := make(map[string]struct{}, len(names))
	inputs := make([]Input, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("input %q is configured more than once", name)
		}
		seen[name] = struct{}{}

		switch name {
		case InputStdin:
			inputs = append(inputs, Input{
				Name:   name,
				Runner: lines.New(logger, name, stdin, handler, v.GetFloat64(ParamBadLinesPerMinute)),
				Finite: true,
			})
		case InputHTTP:
			hs, err := web.NewHttpServerFromViper(v, logger, handler, healthChecks, deepChecks)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, Input{Name: name, Runner: hs})
		case InputRedis:
			in, err := redis.NewInputFromViper(v, logger, handler)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, Input{Name: name, Runner: in})
		default:
			return nil, fmt.Errorf("unknown input %q", name)
		}
	}
	return inputs, nil
}

type metricsRunner interface {
	RunMetrics(ctx context.Context)
}

// Run runs the server.  It returns nil once every input is finite and exhausted and the
// pipeline has drained, otherwise the context error.
func (s *Server) Run(ctx context.Context) error {
	statser := s.Statser
	if statser == nil {
		statser = stats.NewLoggingStatser(s.InternalTags, s.Logger.WithField("component", "stats"))
	}
	// Stage contexts do not inherit from ctx.
	withStats := func(f gokairos.Runnable) func(context.Context) {
		return func(ctx context.Context) {
			f(stats.NewContext(ctx, statser))
		}
	}

	stgr := stager.New()
	defer func() {
		stgr.Shutdown()
		if err := s.Backend.Close(); err != nil {
			s.Logger.WithError(err).Warn("Failed to close backend")
		}
	}()

	// Stats are started first so they are stopped last.
	stage := stgr.NextStage()
	stage.StartWithContext(stats.NewReporter(statser, s.StatsInterval).Run)
	if s.HeartbeatTags != nil {
		stage.StartWithContext(withStats(stats.NewHeartBeater("heartbeat", s.HeartbeatTags).Run))
	}
	stage.StartWithContext(withStats(s.Backend.RunMetrics))
	stage.StartWithContext(withStats(s.Pipeline.RunMetrics))

	pipelineDone := make(chan struct{})
	stage = stgr.NextStage()
	stage.StartWithContext(withStats(func(ctx context.Context) {
		defer close(pipelineDone)
		s.Pipeline.Run(ctx)
	}))

	var finite sync.WaitGroup
	var runnables []gokairos.Runnable
	allFinite := len(s.Inputs) > 0
	stage = stgr.NextStage()
	for _, in := range s.Inputs {
		if mr, ok := in.Runner.(metricsRunner); ok {
			stage.StartWithContext(withStats(mr.RunMetrics))
		}
		if !in.Finite {
			allFinite = false
			runnables = gokairos.MaybeAppendRunnable(runnables, in.Runner)
			continue
		}
		finite.Add(1)
		go func(in Input) {
			defer finite.Done()
			in.Runner.Run(stats.NewContext(ctx, statser))
			s.Logger.WithField("input", in.Name).Info("Input finished")
		}(in)
	}
	for _, r := range runnables {
		stage.StartWithContext(withStats(r))
	}
	if allFinite {
		go func() {
			finite.Wait()
			s.Pipeline.Close()
		}()
	}

	s.Logger.WithField("inputs", len(s.Inputs)).Info("Server started")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-pipelineDone:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Logger.Info("Pipeline finished")
		return nil
	}
}
