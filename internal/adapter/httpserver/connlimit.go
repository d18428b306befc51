package httpserver

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// limitReason is the metric label and log value for a refused upgrade.
type limitReason string

const (
	reasonDraining    limitReason = "draining"
	reasonCapacity    limitReason = "capacity"
	reasonPerIP       limitReason = "per_ip_limit"
	reasonConnectRate limitReason = "connect_rate"
)

const (
	connectLimiterIdle    = 10 * time.Minute
	connectLimiterSweepAt = 5 * time.Minute
)

type connectBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// admissionLimits caps WebSocket sessions on this instance: a total ceiling,
// a per-IP ceiling and a per-IP rate of new upgrades. Every successful
// acquire must be paired with one release for the same IP.
type admissionLimits struct {
	clock clockwork.Clock

	mu        sync.Mutex
	total     int64
	maxTotal  int64
	perIP     map[string]int
	maxPerIP  int
	buckets   map[string]*connectBucket
	rate      rate.Limit
	burst     int
	nextSweep time.Time
}

func newAdmissionLimits(clock clockwork.Clock, maxTotal int64, maxPerIP int, perSecond float64, burst int) *admissionLimits {
	return &admissionLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		perIP:     make(map[string]int),
		maxPerIP:  maxPerIP,
		buckets:   make(map[string]*connectBucket),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		nextSweep: clock.Now().Add(connectLimiterSweepAt),
	}
}

// acquire reserves a slot for ip. The rate bucket is charged before the
// ceilings are checked, so a client hammering a full instance still slows down.
func (l *admissionLimits) acquire(ip string) (bool, limitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(connectLimiterSweepAt)
	}

	bucket, ok := l.buckets[ip]
	if !ok {
		bucket = &connectBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = bucket
	}
	bucket.lastSeen = now
	if !bucket.limiter.AllowN(now, 1) {
		return false, reasonConnectRate
	}

	if l.total >= l.maxTotal {
		return false, reasonCapacity
	}
	if l.perIP[ip] >= l.maxPerIP {
		return false, reasonPerIP
	}

	l.total++
	l.perIP[ip]++
	return true, ""
}

func (l *admissionLimits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.perIP[ip]
	if !ok {
		return
	}
	if count <= 1 {
		delete(l.perIP, ip)
	} else {
		l.perIP[ip] = count - 1
	}
	l.total--
}

func (l *admissionLimits) sweep(now time.Time) {
	cutoff := now.Add(-connectLimiterIdle)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func (l *admissionLimits) counts(ip string) (total int64, forIP int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total, l.perIP[ip]
}
