package patch

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// Scoring weights and thresholds for candidate resolution.
const (
	weightKind     = 0.30
	weightDate     = 0.25
	weightTime     = 0.15
	weightKeyword  = 0.10
	maxKeywordPart = 0.20

	minScore       = 0.50
	ambiguityGap   = 0.10
	maxCandidates  = 5
	scoreEpsilon   = 1e-9
	relativeWindow = 1
)

var relativeDateRe = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|monday|tuesday|wednesday|thursday|friday|saturday|sunday|this (?:morning|afternoon|evening|weekend)|next week)\b`)

// HasRelativeDate reports whether text uses relative-date vocabulary.
func HasRelativeDate(text string) bool {
	return relativeDateRe.MatchString(text)
}

// Scored is a candidate item with its score and the signals behind it.
type Scored struct {
	itinerary.Snapshot
	Score   float64
	Reasons []string
}

// Candidate converts s for storage on a pending action.
func (s Scored) Candidate() model.Candidate {
	return model.Candidate{
		ItemID:    s.ID,
		Kind:      s.Kind,
		Title:     s.Title,
		LocalDate: s.LocalDate,
		LocalTime: s.LocalTime,
		Location:  s.Location,
		Score:     s.Score,
		Reason:    strings.Join(s.Reasons, ", "),
	}
}

// Resolution is the outcome of matching hints against a trip's items.
// Target is nil when no unique item could be chosen; Candidates then lists
// the options a human may pick from.
type Resolution struct {
	Target     *Scored
	Candidates []Scored
	Ambiguous  bool
}

// Resolve scores snaps against hints. rawText enables a ±1 day date window
// when it contains relative-date vocabulary; an item inside the window
// scores as a date match. The MEAL/ACTIVITY cross-match still needs the
// exact date.
func Resolve(hints TargetHints, snaps []itinerary.Snapshot, rawText string) Resolution {
	relative := HasRelativeDate(rawText)
	hintDate, _ := itinerary.NormalizeLocalDate(hints.LocalDate)
	hintTime, _ := itinerary.NormalizeLocalTime(hints.LocalTime)
	titleKW := foldKeywords(hints.TitleKeywords)
	locKW := foldKeywords(hints.LocationKeywords)

	var pool []Scored
	for _, s := range snaps {
		if s.State == model.StateDismissed {
			continue
		}
		dateExact := hintDate != "" && s.LocalDate == hintDate
		dateNear := false
		if hintDate != "" && !dateExact {
			d := itinerary.DaysBetween(s.LocalDate, hintDate)
			if !relative || d < 0 || d > relativeWindow {
				continue
			}
			dateNear = true
		}

		titleHits := keywordHits(s.Title, titleKW)
		locHits := keywordHits(s.Location, locKW)

		kindMatch := hints.Kind != "" && s.Kind == hints.Kind
		if hints.Kind != "" && !kindMatch {
			cross := isMealActivity(hints.Kind, s.Kind) && dateExact && (titleHits > 0 || locHits > 0)
			if !cross {
				continue
			}
		}

		sc := Scored{Snapshot: s}
		if kindMatch {
			sc.add(weightKind, "kind match")
		}
		switch {
		case dateExact:
			sc.add(weightDate, "date match")
		case dateNear:
			sc.add(weightDate, "date within a day")
		}
		if hintTime != "" && s.LocalTime == hintTime {
			sc.add(weightTime, "time match")
		}
		if titleHits > 0 {
			sc.add(math.Min(float64(titleHits)*weightKeyword, maxKeywordPart), "title keywords")
		}
		if locHits > 0 {
			sc.add(math.Min(float64(locHits)*weightKeyword, maxKeywordPart), "location keywords")
		}
		sc.Score = round4(sc.Score)
		pool = append(pool, sc)
	}

	sortScored(pool)
	var survivors []Scored
	for _, sc := range pool {
		if sc.Score+scoreEpsilon >= minScore {
			survivors = append(survivors, sc)
		}
	}
	if len(survivors) == 0 {
		return Resolution{Candidates: top(pool, maxCandidates)}
	}
	return Disambiguate(survivors)
}

// Disambiguate picks a unique target from candidates sorted by descending
// score, or reports ambiguity when the top two are within the gap.
func Disambiguate(ranked []Scored) Resolution {
	if len(ranked) == 0 {
		return Resolution{}
	}
	if len(ranked) > 1 && ranked[0].Score-ranked[1].Score <= ambiguityGap+scoreEpsilon {
		return Resolution{Candidates: top(ranked, maxCandidates), Ambiguous: true}
	}
	target := ranked[0]
	return Resolution{Target: &target, Candidates: top(ranked, maxCandidates)}
}

func (s *Scored) add(points float64, reason string) {
	s.Score += points
	s.Reasons = append(s.Reasons, reason)
}

func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

func top(s []Scored, n int) []Scored {
	if len(s) > n {
		s = s[:n]
	}
	return append([]Scored(nil), s...)
}

func foldKeywords(kws []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, kw := range kws {
		f := itinerary.FoldText(kw)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// keywordHits counts distinct folded keywords contained in text.
func keywordHits(text string, kws []string) int {
	if len(kws) == 0 || text == "" {
		return 0
	}
	folded := itinerary.FoldText(text)
	n := 0
	for _, kw := range kws {
		if strings.Contains(folded, kw) {
			n++
		}
	}
	return n
}

func isMealActivity(a, b model.ItemKind) bool {
	return (a == model.KindMeal && b == model.KindActivity) || (a == model.KindActivity && b == model.KindMeal)
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
