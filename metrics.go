package credcore

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricID names one counter series the engine increments.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginChallenge
	MetricLoginInvalid
	MetricLoginLocked
	MetricLoginExternal
	MetricLockoutTriggered
	MetricAccountUnlocked
	MetricPasswordRehashed

	MetricSecondFactorSuccess
	MetricSecondFactorInvalid
	MetricSecondFactorNotConfigured
	MetricSecondFactorReplay
	MetricEnrollmentStarted
	MetricEnrollmentConfirmed
	MetricSecondFactorDisabled

	MetricDeviceTrusted
	MetricDeviceBypass
	MetricDeviceRemoved
	MetricDevicesCleared

	MetricEmailCodeIssued
	MetricEmailCodeVerified
	MetricEmailCodeExpired
	MetricEmailCodeInvalid
	MetricEmailCodeRateLimited
	MetricEmailCodeAttemptsExceeded
	MetricResetCodeIssued
	MetricResetCodeVerified
	MetricResetCodeExpired
	MetricResetCodeInvalid
	MetricResetCodeRateLimited
	MetricResetCodeAttemptsExceeded
	MetricPasswordReset
	MetricPasswordChanged

	MetricTokenValid
	MetricTokenExpired
	MetricTokenMalformed
	MetricTokenNotYetValid
	MetricTokenWrongScope

	MetricNotifierFailure
	MetricRegistered
	MetricRegistrationSuperseded
	MetricRegistrationRejected

	metricCount
)

type metricSeries struct {
	vec    string
	labels []string
}

var metricTable = [metricCount]metricSeries{
	MetricLoginSuccess:     {"logins", []string{"success"}},
	MetricLoginChallenge:   {"logins", []string{"challenge"}},
	MetricLoginInvalid:     {"logins", []string{"invalid"}},
	MetricLoginLocked:      {"logins", []string{"locked"}},
	MetricLoginExternal:    {"logins", []string{"external"}},
	MetricLockoutTriggered: {"lockouts", []string{"locked"}},
	MetricAccountUnlocked:  {"lockouts", []string{"unlocked"}},
	MetricPasswordRehashed: {"password_rehashes", nil},

	MetricSecondFactorSuccess:       {"second_factor", []string{"verify", "ok"}},
	MetricSecondFactorInvalid:       {"second_factor", []string{"verify", "invalid"}},
	MetricSecondFactorNotConfigured: {"second_factor", []string{"verify", "not_configured"}},
	MetricSecondFactorReplay:        {"second_factor", []string{"verify", "replay"}},
	MetricEnrollmentStarted:         {"second_factor", []string{"enroll", "started"}},
	MetricEnrollmentConfirmed:       {"second_factor", []string{"enroll", "confirmed"}},
	MetricSecondFactorDisabled:      {"second_factor", []string{"disable", "ok"}},

	MetricDeviceTrusted:  {"devices", []string{"trusted"}},
	MetricDeviceBypass:   {"devices", []string{"bypass"}},
	MetricDeviceRemoved:  {"devices", []string{"removed"}},
	MetricDevicesCleared: {"devices", []string{"cleared"}},

	MetricEmailCodeIssued:           {"codes", []string{"email_verification", "issued"}},
	MetricEmailCodeVerified:         {"codes", []string{"email_verification", "verified"}},
	MetricEmailCodeExpired:          {"codes", []string{"email_verification", "expired"}},
	MetricEmailCodeInvalid:          {"codes", []string{"email_verification", "invalid"}},
	MetricEmailCodeRateLimited:      {"codes", []string{"email_verification", "rate_limited"}},
	MetricEmailCodeAttemptsExceeded: {"codes", []string{"email_verification", "attempts_exceeded"}},
	MetricResetCodeIssued:           {"codes", []string{"password_reset", "issued"}},
	MetricResetCodeVerified:         {"codes", []string{"password_reset", "verified"}},
	MetricResetCodeExpired:          {"codes", []string{"password_reset", "expired"}},
	MetricResetCodeInvalid:          {"codes", []string{"password_reset", "invalid"}},
	MetricResetCodeRateLimited:      {"codes", []string{"password_reset", "rate_limited"}},
	MetricResetCodeAttemptsExceeded: {"codes", []string{"password_reset", "attempts_exceeded"}},
	MetricPasswordReset:             {"password_changes", []string{"reset"}},
	MetricPasswordChanged:           {"password_changes", []string{"changed"}},

	MetricTokenValid:       {"token_verifications", []string{"ok"}},
	MetricTokenExpired:     {"token_verifications", []string{"expired"}},
	MetricTokenMalformed:   {"token_verifications", []string{"malformed"}},
	MetricTokenNotYetValid: {"token_verifications", []string{"not_yet_valid"}},
	MetricTokenWrongScope:  {"token_verifications", []string{"wrong_scope"}},

	MetricNotifierFailure:        {"notifier_failures", nil},
	MetricRegistered:             {"registrations", []string{"created"}},
	MetricRegistrationSuperseded: {"registrations", []string{"superseded"}},
	MetricRegistrationRejected:   {"registrations", []string{"rejected"}},
}

var metricVecs = map[string]struct {
	help   string
	labels []string
}{
	"logins":              {"Password login attempts by outcome.", []string{"result"}},
	"lockouts":            {"Account lock transitions.", []string{"event"}},
	"password_rehashes":   {"Stored hashes upgraded after login.", nil},
	"second_factor":       {"Second-factor operations by outcome.", []string{"op", "result"}},
	"devices":             {"Trusted-device registry events.", []string{"event"}},
	"codes":               {"Verification and reset code events.", []string{"purpose", "result"}},
	"password_changes":    {"Password replacements by path.", []string{"path"}},
	"token_verifications": {"Bearer token verifications by outcome.", []string{"result"}},
	"notifier_failures":   {"Notifications the notifier rejected.", nil},
	"registrations":       {"Accounts created through Register.", []string{"result"}},
}

// MetricDescriptor names the series behind a MetricID for exporters that
// do not read the Prometheus registry. Name is the counter family without
// namespace or suffix ("logins"), Labels its label values for this series.
type MetricDescriptor struct {
	ID     MetricID
	Name   string
	Help   string
	Labels map[string]string
}

// MetricDescriptors lists every series in MetricID order.
func MetricDescriptors() []MetricDescriptor {
	out := make([]MetricDescriptor, 0, metricCount)
	for id, series := range metricTable {
		def := metricVecs[series.vec]
		var labels map[string]string
		if len(def.labels) > 0 {
			labels = make(map[string]string, len(def.labels))
			for i, name := range def.labels {
				labels[name] = series.labels[i]
			}
		}
		out = append(out, MetricDescriptor{
			ID:     MetricID(id),
			Name:   series.vec,
			Help:   def.help,
			Labels: labels,
		})
	}
	return out
}

// MetricsSnapshot is a point-in-time copy of one engine's counts.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Metrics holds the engine's Prometheus counters, pre-bound per MetricID so
// the hot path is one array index and an atomic add. It also keeps its own
// counts, which stay per engine when several engines share a registry.
type Metrics struct {
	counters [metricCount]prometheus.Counter
	values   [metricCount]atomic.Uint64
}

// NewMetrics creates the counters and registers them on reg. Collectors
// already registered under the same names are reused, so several engines
// may share a registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	vecs := make(map[string]*prometheus.CounterVec, len(metricVecs))
	for name, def := range metricVecs {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credcore",
			Name:      name + "_total",
			Help:      def.help,
		}, def.labels)
		if reg != nil {
			if err := reg.Register(vec); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					return nil, err
				}
				existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
				if !ok {
					return nil, err
				}
				vec = existing
			}
		}
		vecs[name] = vec
	}

	m := &Metrics{}
	for id, series := range metricTable {
		m.counters[id] = vecs[series.vec].WithLabelValues(series.labels...)
	}
	return m, nil
}

// Inc adds one to the series for id. A nil Metrics is a no-op.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Inc()
	m.values[id].Add(1)
}

// Snapshot copies the current counts. A nil Metrics yields an empty map.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return out
	}
	for id := range m.values {
		out.Counters[MetricID(id)] = m.values[id].Load()
	}
	return out
}

// Counter exposes the bound counter, mainly for tests.
func (m *Metrics) Counter(id MetricID) prometheus.Counter {
	if m == nil || id >= metricCount {
		return nil
	}
	return m.counters[id]
}
