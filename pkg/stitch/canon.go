package stitch

import "strings"

// The synonym table lives on the RunContext so registrations are
// destroyed with the run: the same physical aggregate is addressable
// via both its authority-manager and compute-manager URN forms, and
// one plan's aliasing must not leak into the next run.

// RegisterSynonym teaches this run's canonicalizer that alt and
// canonical name the same aggregate. Typically populated once per run
// from the expanded plan document's own aggregate-equivalence section.
func (rc *RunContext) RegisterSynonym(alt, canonical string) {
	rc.synonyms[normalizeURN(alt)] = normalizeURN(canonical)
}

// Canonicalize resolves urn through this run's synonym table and a
// fixed set of textual normalizations (case, trailing "+authority+am"
// vs "+authority+cm" suffix swaps) so that FindAggregate can key
// purely on the canonical form.
func (rc *RunContext) Canonicalize(urn string) string {
	n := normalizeURN(urn)
	if canon, ok := rc.synonyms[n]; ok {
		return canon
	}
	return foldAuthoritySuffix(n)
}

// foldAuthoritySuffix folds the authority-manager and compute-manager
// spellings of the same aggregate together even without an explicit
// RegisterSynonym call.
func foldAuthoritySuffix(n string) string {
	n = strings.TrimSuffix(n, "+authority+cm")
	n = strings.TrimSuffix(n, "+authority+am")
	return n
}

func normalizeURN(urn string) string {
	return strings.ToLower(strings.TrimSpace(urn))
}
