package frontend

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

var Writable uint32 // treated as bool

type HeartbeatMessage struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	GitHash string   `json:"git_hash"`
	Uptime  string   `json:"uptime"`
	Topics  []string `json:"topics"`
}

func NewUtilityAPIHandlers(startTime time.Time, topicNames func() []string) *UtilityAPIHandlers {
	return &UtilityAPIHandlers{startTime: startTime, topicNames: topicNames}
}

// UtilityAPIHandlers serves the operator endpoints of a running process:
// heartbeat, prometheus metrics and profiling.
type UtilityAPIHandlers struct {
	startTime  time.Time
	topicNames func() []string
}

func (uah *UtilityAPIHandlers) Register(mux *http.ServeMux) {
	// heartbeat
	mux.HandleFunc("/heartbeat", uah.heartbeat)

	// monitoring
	mux.Handle("/metrics", promhttp.Handler())

	// profiling
	mux.HandleFunc("/pprof/", pprof.Index)
	mux.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/pprof/profile", pprof.Profile)
	mux.HandleFunc("/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/pprof/trace", pprof.Trace)
	mux.Handle("/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/pprof/goroutine", pprof.Handler("goroutine"))
}

func (uah *UtilityAPIHandlers) heartbeat(rw http.ResponseWriter, _ *http.Request) {
	msg := HeartbeatMessage{
		Status:  "writable",
		Version: utils.Tag,
		GitHash: utils.GitHash,
		Uptime:  time.Since(uah.startTime).String(),
	}
	if uah.topicNames != nil {
		msg.Topics = uah.topicNames()
	}

	rw.Header().Set("Content-Type", "application/json")
	if atomic.LoadUint32(&Writable) > 0 {
		rw.WriteHeader(http.StatusOK)
	} else {
		msg.Status = "not writable"
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(rw).Encode(msg); err != nil {
		log.Error("Failed to write heartbeat message - Error: %v", err)
	}
}
