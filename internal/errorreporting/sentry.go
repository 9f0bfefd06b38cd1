// Package errorreporting forwards errors, panics and degenerate-input warnings
// to Sentry when a DSN is configured. Every call is a no-op otherwise.
package errorreporting

import (
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options mirrors the SENTRY_* settings in config.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

var enabled atomic.Bool

// scrubbers run in order; connection strings go first so the generic
// email pattern does not eat the user@host part.
var scrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://[^:/@\s]+:)[^@\s]+@`), "${1}[REDACTED]@"},
	{regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/-]{16,}=*`), "[REDACTED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["\s:=]+[^\s"&,]{8,}`), "[REDACTED]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[REDACTED]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[REDACTED]"},
}

// Init configures the Sentry client. An empty DSN disables reporting.
func Init(opts Options) error {
	if opts.DSN == "" {
		enabled.Store(false)
		return nil
	}
	release := opts.Release
	if release == "" {
		release = "dev"
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// IsSentryEnabled reports whether Init configured a client.
func IsSentryEnabled() bool { return enabled.Load() }

// beforeSend scrubs credentials and addresses from outgoing events. Request
// bodies are dropped: particle payloads are large and carry nothing useful.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = ScrubPII(event.Exception[i].Value)
	}
	event.Message = ScrubPII(event.Message)
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = ScrubPII(str)
		}
	}

	if event.Request != nil {
		for _, h := range []string{"Authorization", "Cookie", "X-Api-Key", "X-Forwarded-For"} {
			delete(event.Request.Headers, h)
		}
		event.Request.Data = ""
		event.Request.Cookies = ""
		event.Request.QueryString = ScrubPII(event.Request.QueryString)
	}
	return event
}

// ScrubPII redacts credentials, emails and IP addresses in text.
func ScrubPII(text string) string {
	for _, s := range scrubbers {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	return text
}

// CaptureError sends err to Sentry.
func CaptureError(err error) {
	if err == nil || !IsSentryEnabled() {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext sends err with tags and extras attached.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil || !IsSentryEnabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a value recovered while serving r.
func CapturePanic(r *http.Request, recovered interface{}, requestID string, stack []byte) {
	if !IsSentryEnabled() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	scope := hub.Scope()
	scope.SetRequest(r)
	scope.SetLevel(sentry.LevelFatal)
	scope.SetTag("method", r.Method)
	scope.SetTag("route", r.URL.Path)
	if requestID != "" {
		scope.SetTag("request_id", requestID)
	}
	if e, ok := recovered.(error); ok {
		hub.CaptureException(e)
		return
	}
	hub.CaptureMessage(ScrubPII(fmt.Sprintf("panic: %v\n%s", recovered, stack)))
}

// ReportForcedMerges records that a tree build hit its depth cap and absorbed
// particles it could not separate. Such input is degenerate rather than
// broken, so it is reported at warning level.
func ReportForcedMerges(count, maxDepth int, tags map[string]string) {
	if count <= 0 || !IsSentryEnabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("component", "quadtree")
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetExtra("forced_merges", count)
		scope.SetExtra("max_depth", maxDepth)
		sentry.CaptureMessage(fmt.Sprintf("quadtree depth cap reached: %d forced merges at depth %d", count, maxDepth))
	})
}

// Flush waits up to timeout for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	if !IsSentryEnabled() {
		return true
	}
	return sentry.Flush(timeout)
}
