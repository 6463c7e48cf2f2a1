package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/atlassian/gokairos/pkg/web"
)

func main() {
	opts := parseArgs(os.Args[1:])
	compression, _ := web.ReadCompressionType(opts.Compression) // validated by parseArgs

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	pendingWorkers := make(chan struct{}, opts.Workers)
	generators := make([]*eventGenerator, 0, opts.Workers)
	var failures uint64
	for i := uint(0); i < opts.Workers; i++ {
		count := opts.Count / uint64(opts.Workers)
		if i == 0 {
			count += opts.Count % uint64(opts.Workers)
		}
		generator := &eventGenerator{
			remaining:       count,
			rnd:             rand.New(rand.NewSource(rand.Int63())),
			prefix:          opts.MetricPrefix,
			nameCardinality: opts.Shape.NameCardinality,
			fields:          opts.Shape.Fields,
			nestedFields:    opts.Shape.NestedFields,
			valueLimit:      opts.Shape.ValueLimit,
			now:             time.Now,
		}
		generators = append(generators, generator)
		w := &worker{
			client:      client,
			target:      opts.Target,
			compression: compression,
			level:       opts.CompressionLevel,
			batchSize:   opts.BatchSize,
			limiter:     rate.NewLimiter(rate.Limit(opts.Rate/opts.Workers), int(opts.BatchSize)),
			generator:   generator,
			failures:    &failures,
		}
		go w.run(ctx, pendingWorkers)
	}

	runningWorkers := opts.Workers
	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for runningWorkers > 0 {
		select {
		case <-pendingWorkers:
			runningWorkers--
		case <-statusTicker.C:
			remaining := uint64(0)
			for _, g := range generators {
				remaining += atomic.LoadUint64(&g.remaining)
			}
			fmt.Printf("%d events remaining, %d failed requests\n", remaining, atomic.LoadUint64(&failures))
		}
	}
}

type worker struct {
	client      *http.Client
	target      string
	compression web.CompressionType
	level       int
	batchSize   uint
	limiter     *rate.Limiter
	generator   *eventGenerator
	failures    *uint64
}

func (w *worker) run(ctx context.Context, chDone chan<- struct{}) {
	defer func() {
		chDone <- struct{}{}
	}()

	stream := jsoniter.ConfigDefault.BorrowStream(nil)
	defer jsoniter.ConfigDefault.ReturnStream(stream)

	for {
		stream.Reset(nil)
		n := w.generator.nextBatch(stream, w.batchSize)
		if n == 0 {
			return
		}
		if err := w.limiter.WaitN(ctx, int(n)); err != nil {
			return
		}
		if err := w.post(ctx, stream.Buffer()); err != nil {
			atomic.AddUint64(w.failures, 1)
			fmt.Printf("Pausing for 1 second, error sending events: %v\n", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
		}
	}
}

func (w *worker) post(ctx context.Context, body []byte) error {
	body, err := web.Compress(w.compression, w.level, body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", w.target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding := w.compression.ContentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
