package torn

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// DedupKey returns a stable fingerprint of a bounty's semantic content.
// Two postings that differ only in formatting (reason whitespace/case) or
// in which anonymous lister posted them produce the same key, so they are
// treated as one notification event across poll cycles.
func (b *Bounty) DedupKey() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%d|%s|%s", b.TargetID, b.Reward, b.Quantity, b.listerKey(), NormalizeReason(b.Reason))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (b *Bounty) listerKey() string {
	if b.Anonymous {
		return "anon"
	}
	if b.ListerID != 0 {
		return itoa(b.ListerID)
	}
	if name := strings.ToLower(strings.TrimSpace(b.ListerName)); name != "" {
		return name
	}
	return "unknown"
}

// ListerDisplay is the human-readable lister identity.
func (b *Bounty) ListerDisplay() string {
	switch {
	case b.Anonymous:
		return "Anonymous"
	case b.ListerName != "":
		return b.ListerName
	case b.ListerID != 0:
		return "User " + itoa(b.ListerID)
	default:
		return "Unknown"
	}
}

// NormalizeReason collapses internal whitespace and case-folds a free-text
// bounty reason so trivial upstream reformatting does not look like a new
// posting.
func NormalizeReason(reason string) string {
	return strings.ToLower(strings.Join(strings.Fields(reason), " "))
}
