package itinerary

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// FoldText normalizes free text for comparison: NFKC, Unicode case fold,
// and whitespace collapsed to single spaces.
func FoldText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// FingerprintInput is the identity-bearing subset of an item.
type FingerprintInput struct {
	Kind      model.ItemKind
	Title     string
	StartAt   *time.Time
	LocalDate string
	LocalTime string
	Location  string
}

// Fingerprint hashes the identity fields of an item. The start instant is
// used when known; otherwise the local date and time stand in for it.
func Fingerprint(in FingerprintInput) string {
	when := strings.TrimSpace(in.LocalDate) + " " + strings.TrimSpace(in.LocalTime)
	if in.StartAt != nil {
		when = in.StartAt.UTC().Format(time.RFC3339)
	}
	parts := []string{
		string(in.Kind),
		FoldText(in.Title),
		strings.TrimSpace(when),
		FoldText(in.Location),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// ItemFingerprint computes the fingerprint of a persisted or candidate item.
func ItemFingerprint(it *model.TripItem) string {
	return Fingerprint(FingerprintInput{
		Kind:      it.Kind,
		Title:     it.Title,
		StartAt:   it.StartAt,
		LocalDate: it.StartLocalDate,
		LocalTime: it.StartLocalTime,
		Location:  it.LocationText,
	})
}

// Refresh recomputes the derived fields of an item (absolute instants and
// fingerprint) from its local fields.
func Refresh(it *model.TripItem) {
	RefreshISO(it, "", "")
}

// RefreshISO is Refresh with RFC3339 fallbacks for when a local triple is
// incomplete.
func RefreshISO(it *model.TripItem, startISO, endISO string) {
	it.StartAt = ResolveInstant(it.StartLocalDate, it.StartLocalTime, it.StartTimezone, startISO)
	endZone := it.EndTimezone
	if endZone == "" {
		endZone = it.StartTimezone
	}
	it.EndAt = ResolveInstant(it.EndLocalDate, it.EndLocalTime, endZone, endISO)
	it.Fingerprint = ItemFingerprint(it)
}
