package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/trustedcoder/typira-home/internal/oracle"
)

// Canonicalizer reduces a sentence to a stable intent label
type Canonicalizer interface {
	Canonicalize(ctx context.Context, sentence string) (string, error)
}

// FingerprintService turns a cleaned sentence into a stable hash identifying
// its intent. The Oracle canonicalizes; on any failure the service degrades
// to the uppercased sentence itself so ingestion stays live.
type FingerprintService struct {
	canonicalizer Canonicalizer
	labelCache    *gocache.Cache
	callTimeout   time.Duration
	metrics       *Metrics
}

// NewFingerprintService creates a fingerprint service with a TTL-based label
// cache so repeated sightings of the same surface text skip the Oracle.
func NewFingerprintService(canonicalizer Canonicalizer, callTimeout time.Duration, metrics *Metrics) *FingerprintService {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &FingerprintService{
		canonicalizer: canonicalizer,
		labelCache:    gocache.New(10*time.Minute, 30*time.Minute),
		callTimeout:   callTimeout,
		metrics:       metrics,
	}
}

// Fingerprint returns the canonical label and its SHA-256 hex digest for a
// cleaned atom. It never returns an error: Oracle failure falls back to a
// deterministic local label. Only an empty atom yields no fingerprint.
func (s *FingerprintService) Fingerprint(ctx context.Context, cleaned string) (label, hash string) {
	if cleaned == "" {
		return "", ""
	}

	if cached, found := s.labelCache.Get(cleaned); found {
		label = cached.(string)
		return label, hashLabel(label)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	started := time.Now()
	canonical, err := s.canonicalizer.Canonicalize(callCtx, cleaned)
	if s.metrics != nil {
		s.metrics.OracleLatency.Observe(time.Since(started).Seconds())
	}
	if err != nil || canonical == "" {
		// Local fallback keeps ingestion live when the Oracle is down.
		label = oracle.NormalizeLabel(cleaned)
		log.Printf("⚠️ [FINGERPRINT] Canonicalization failed, using local fallback: %v", err)
		if s.metrics != nil {
			s.metrics.OracleRequests.WithLabelValues("canonicalize", "fallback").Inc()
		}
	} else {
		label = canonical
		if s.metrics != nil {
			s.metrics.OracleRequests.WithLabelValues("canonicalize", "ok").Inc()
		}
	}

	s.labelCache.Set(cleaned, label, gocache.DefaultExpiration)

	return label, hashLabel(label)
}

// hashLabel digests the canonical label so label normalization quirks don't
// fragment intent identity at the storage layer.
func hashLabel(label string) string {
	sum := sha256.Sum256([]byte(label))
	return hex.EncodeToString(sum[:])
}
