/*=============================================================================*
* Filename:
*   statusserver.go
*
* Description:
*   A small HTTP surface exposing a comcom Session's running counters for
*   operational monitoring: liveness/readiness probes, a plaintext
*   Prometheus-format metrics endpoint, and a version endpoint. The shape
*   (probe names, metrics-as-string-builder, explicit *http.Server with
*   header/read/write timeouts) follows the proxy server's own status
*   surface; the content follows comcom.Stats instead of proxyd's
*   connection/cache counters.
*
* Author:
*   J.EP, J. Enrique Peraza
==============================================================================*/
package statusserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vporton/libcomcom"
	"github.com/vporton/libcomcom/internal/logger"
)

// Server exposes one Session's Stats over HTTP.
type Server struct {
	port int
	now  time.Time
	sess *comcom.Session
	vrs  string
	log  logger.Log

	ready int32 // atomic bool; 0 = not ready, 1 = ready.
}

// New creates a status server for sess, listening on port once Start runs.
// vrs is reported verbatim by VersionProbe.
func New(port int, sess *comcom.Session, vrs string, log logger.Log) *Server { // ---- New ---- //
	return &Server{
		port: port,
		now:  time.Now(),
		sess: sess,
		vrs:  vrs,
		log:  log,
	}
} // ---- New ---- //

// SetReady marks the server ready or not ready for ReadinessProbe.
func (s *Server) SetReady(r bool) { // ------------- SetReady ------------- //
	v := int32(0)
	if r {
		v = 1
	}
	atomic.StoreInt32(&s.ready, v)
} // ------------- SetReady ------------- //

// LivenessProbe answers "is the process alive," independent of whether a
// comcom invocation currently holds the session busy.
func (s *Server) LivenessProbe(w http.ResponseWriter, r *http.Request) { // -- LivenessProbe -- //
	s.log.Inf("Received \"healthz\" request from %s", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
} // -- LivenessProbe -- //

// ReadinessProbe answers "is the server ready to take invocations."
func (s *Server) ReadinessProbe(w http.ResponseWriter, r *http.Request) { // -- ReadinessProbe -- //
	s.log.Inf("Received \"readyz\" request from %s", r.RemoteAddr)
	if atomic.LoadInt32(&s.ready) == 1 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("Not Ready"))
} // -- ReadinessProbe -- //

// VersionProbe reports the build-time version string.
func (s *Server) VersionProbe(w http.ResponseWriter, r *http.Request) { // -- VersionProbe -- //
	s.log.Inf("Received \"versionz\" request from %s", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "comcom version: %s\n", s.vrs)
} // -- VersionProbe -- //

// StatusProbe reports uptime and a snapshot of the session's counters as
// plain text.
func (s *Server) StatusProbe(w http.ResponseWriter, r *http.Request) { // -- StatusProbe -- //
	s.log.Inf("Received \"statusz\" request from %s", r.RemoteAddr)
	snap := s.sess.Stats().Snapshot()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "comcom up since: %s\ninvocations: %d\ntimeouts: %d\nexec failures: %d\nlast latency: %s\n",
		s.now.Format(time.RFC3339Nano), snap.Total, snap.Timeouts, snap.ExecFailures, snap.LastLatency)
} // -- StatusProbe -- //

// MetricProbe reports the session's counters in Prometheus text exposition
// format.
func (s *Server) MetricProbe(w http.ResponseWriter, r *http.Request) { // -- MetricProbe -- //
	s.log.Inf("Received \"metricz\" request from %s", r.RemoteAddr)
	snap := s.sess.Stats().Snapshot()
	uptime := time.Since(s.now)

	buf := bytes.NewBuffer(make([]byte, 0, 512))
	msg := "# HELP comcom_uptime_seconds Seconds since the session started\n"
	msg += "# TYPE comcom_uptime_seconds counter\n"
	msg += fmt.Sprintf("comcom_uptime_seconds %f\n", uptime.Seconds())
	msg += "# HELP comcom_invocations_total Total invocations started\n"
	msg += "# TYPE comcom_invocations_total counter\n"
	msg += fmt.Sprintf("comcom_invocations_total %d\n", snap.Total)
	msg += "# HELP comcom_timeouts_total Invocations that exceeded their timeout\n"
	msg += "# TYPE comcom_timeouts_total counter\n"
	msg += fmt.Sprintf("comcom_timeouts_total %d\n", snap.Timeouts)
	msg += "# HELP comcom_exec_failures_total Invocations where exec(3) failed in the child\n"
	msg += "# TYPE comcom_exec_failures_total counter\n"
	msg += fmt.Sprintf("comcom_exec_failures_total %d\n", snap.ExecFailures)
	msg += "# HELP comcom_last_latency_seconds Wall-clock duration of the most recent invocation\n"
	msg += "# TYPE comcom_last_latency_seconds gauge\n"
	msg += fmt.Sprintf("comcom_last_latency_seconds %f\n", snap.LastLatency.Seconds())
	msg += "# HELP comcom_last_cycles Parent-side CPU cycles spent in the most recent invocation, if AttachPerf is in use\n"
	msg += "# TYPE comcom_last_cycles gauge\n"
	msg += fmt.Sprintf("comcom_last_cycles %d\n", snap.LastCycles)
	buf.WriteString(msg)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Err("Failed to write metrics response: %v", err)
	}
} // -- MetricProbe -- //

// Mux builds a ServeMux wired to this server's probes.
func (s *Server) Mux() *http.ServeMux { // ------------- Mux ------------- //
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.LivenessProbe)
	mux.HandleFunc("/readyz", s.ReadinessProbe)
	mux.HandleFunc("/versionz", s.VersionProbe)
	mux.HandleFunc("/statusz", s.StatusProbe)
	mux.HandleFunc("/metricz", s.MetricProbe)
	return mux
} // ------------- Mux ------------- //

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully with a 10s grace period.
func (s *Server) Start(ctx context.Context) error { // ------------- Start ------------- //
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      20 * time.Second,
		ReadTimeout:       20 * time.Second,
	}
	go func() { // Shut down when ctx is cancelled.
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Inf("Shutting down status server on port :%d", s.port)
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Err("Error shutting down status server: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
} // ------------- Start ------------- //
