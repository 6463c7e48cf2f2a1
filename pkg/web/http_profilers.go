package web

import (
	"net/http"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultProfileDuration = 30 * time.Second
	maxProfileDuration     = 5 * time.Minute
)

// traceProfiler serializes profiling requests, only one may run at a time.
type traceProfiler struct {
	logger logrus.FieldLogger
	mutex  sync.Mutex
}

// profileDuration reads the optional "seconds" query parameter.
func profileDuration(r *http.Request) time.Duration {
	s := r.URL.Query().Get("seconds")
	if s == "" {
		return defaultProfileDuration
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultProfileDuration
	}
	d := time.Duration(n) * time.Second
	if d > maxProfileDuration {
		return maxProfileDuration
	}
	return d
}

func (tp *traceProfiler) wait(r *http.Request) {
	select {
	case <-time.After(profileDuration(r)):
	case <-r.Context().Done():
	}
}

func (tp *traceProfiler) Trace(w http.ResponseWriter, r *http.Request) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	if err := trace.Start(w); err != nil {
		tp.logger.WithError(err).Warn("failed to start trace")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer trace.Stop()
	tp.wait(r)
}

func (tp *traceProfiler) PProf(w http.ResponseWriter, r *http.Request) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	if err := pprof.StartCPUProfile(w); err != nil {
		tp.logger.WithError(err).Warn("failed to start cpu profile")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer pprof.StopCPUProfile()
	tp.wait(r)
}

func (tp *traceProfiler) MemProf(w http.ResponseWriter, r *http.Request) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	runtime.GC()
	if err := pprof.Lookup("heap").WriteTo(w, 0); err != nil {
		tp.logger.WithError(err).Warn("failed to write heap profile")
	}
}
