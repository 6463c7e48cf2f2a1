package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/atlassian/gokairos/pkg/web"
)

type commandOptions struct {
	Target           string `short:"a" long:"address"           default:"http://127.0.0.1:8080/v1/events" description:"URL of the events endpoint"                  `
	MetricPrefix     string `short:"p" long:"metric-prefix"     default:"loadtest."                       description:"Prefix of the name field"                    `
	Rate             uint   `short:"r" long:"rate"              default:"1000"                            description:"Target events per second"                    `
	BatchSize        uint   `short:"b" long:"batch-size"        default:"50"                              description:"Events per request"                          `
	Workers          uint   `short:"w" long:"workers"           default:"1"                               description:"Number of parallel workers to use"           `
	Count            uint64 `short:"c" long:"count"                                                       description:"Number of events to send"                    `
	Compression      string `          long:"compression"       default:"none"                            description:"Request compression: none, zlib, lz4, gzip, zstd"`
	CompressionLevel int    `          long:"compression-level" default:"5"                               description:"Compression level, 0 to 9"                   `
	Shape            struct {
		NameCardinality uint `long:"name-cardinality" default:"1"  description:"Cardinality of the name field"        `
		Fields          uint `long:"fields"           default:"1"  description:"Numeric fields per event"             `
		NestedFields    uint `long:"nested-fields"    default:"0"  description:"Numeric fields in the nested object"  `
		ValueLimit      uint `long:"value-limit"      default:"100" description:"Maximum value of numeric fields"    `
	} `group:"Event shape"`
}

func parseArgs(args []string) commandOptions {
	var opts commandOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.LongDescription = "" + // because gofmt
		"Every event carries a name field of the form <prefix>N, field0..fieldN numeric\n" +
		"fields and, if nested-fields is set, a nested object with numeric fields.\n" +
		"Run gokairos with --metrics 'stats.%{name}=%{field0}' or --fields-are-metrics."

	positional, err := parser.ParseArgs(args)
	if err != nil {
		if !isHelp(err) {
			parser.WriteHelp(os.Stderr)
			_, _ = fmt.Fprintf(os.Stderr, "\n\nerror parsing command line: %v\n", err)
			os.Exit(1)
		}
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if len(positional) != 0 {
		// Near as I can tell there's no way to say no positional arguments allowed.
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\nno positional arguments allowed\n")
		os.Exit(1)
	}

	if err := validate(opts); err != nil {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\n%v\n", err)
		os.Exit(1)
	}
	return opts
}

func validate(opts commandOptions) error {
	switch {
	case opts.Count == 0:
		return fmt.Errorf("count must be non-zero")
	case opts.Rate == 0 || opts.Workers == 0 || opts.BatchSize == 0:
		return fmt.Errorf("rate, workers, and batch-size must be non-zero")
	case opts.Rate < opts.Workers:
		return fmt.Errorf("rate must be at least the number of workers")
	case opts.Shape.NameCardinality == 0:
		return fmt.Errorf("name-cardinality must be non-zero")
	case !web.IsValidCompressionLevel(opts.CompressionLevel):
		return fmt.Errorf("compression-level must be between 0 and 9")
	}
	_, err := web.ReadCompressionType(opts.Compression)
	return err
}

// isHelp is a helper to test the error from ParseArgs() to
// determine if the help message was written. It is safe to
// call without first checking that error is nil.
func isHelp(err error) bool {
	if err == nil { // No error
		return false
	}

	flagError, ok := err.(*flags.Error)
	if !ok { // Not a go-flag error
		return false
	}

	return flagError.Type == flags.ErrHelp
}
