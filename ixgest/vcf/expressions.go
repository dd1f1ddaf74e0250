// Package vcf reads variant call files and derives gnomAD-style expressions
// from their records.
package vcf

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/anvil/errors"
)

// SkipTokens mark symbolic or spanning alleles the normalization service
// cannot translate (<INS>, <DUP:TANDEM>, *). An alt containing any of them
// as a substring is skipped.
var SkipTokens = []string{"INS", "DEL", "DUP", "INV", "CNV", "TANDEM", "INT", "EXT", "*"}

// minFields is CHROM POS ID REF ALT
const minFields = 5

// Expressions returns CHROM-POS-REF-ALT for each alternate allele of a data line,
// preceded by CHROM-POS-REF-REF when computeForRef is set. Alts matching
// SkipTokens are returned in skipped instead.
func Expressions(line string, computeForRef bool) (exprs []string, skipped []string, err error) {
	fields := strings.SplitN(strings.TrimSpace(line), "\t", minFields+1)
	if len(fields) < minFields {
		return nil, nil, errors.Wrapf(errors.ErrInvalidRequest,
			"malformed VCF record: expected at least %d tab-separated fields, got %d", minFields, len(fields))
	}
	chrom, pos, ref, alts := fields[0], fields[1], fields[3], fields[4]
	loc := chrom + "-" + pos

	if computeForRef {
		exprs = append(exprs, loc+"-"+ref+"-"+ref)
	}
	for _, alt := range strings.Split(alts, ",") {
		alt = strings.TrimSpace(alt)
		if Skippable(alt) {
			skipped = append(skipped, alt)
			continue
		}
		exprs = append(exprs, loc+"-"+ref+"-"+alt)
	}
	return exprs, skipped, nil
}

// Skippable reports whether alt contains a SkipTokens entry
func Skippable(alt string) bool {
	for _, token := range SkipTokens {
		if strings.Contains(alt, token) {
			return true
		}
	}
	return false
}

// SkipLog logs each distinct skipped alt once per process
type SkipLog struct {
	logger *zap.SugaredLogger
	seen   sync.Map
}

// NewSkipLog creates a SkipLog
func NewSkipLog(logger *zap.SugaredLogger) *SkipLog {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SkipLog{logger: logger}
}

// Note records a skipped alt, logging it on first sight. Returns true when first seen.
func (s *SkipLog) Note(alt string) bool {
	if _, loaded := s.seen.LoadOrStore(alt, struct{}{}); loaded {
		return false
	}
	s.logger.Warnw("Invalid alt found", "alt", alt)
	return true
}

// Distinct returns how many different alts were skipped
func (s *SkipLog) Distinct() int {
	n := 0
	s.seen.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
