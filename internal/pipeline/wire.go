package pipeline

import (
	"fmt"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// Risk is one itinerary problem the oracle flagged.
type Risk struct {
	Severity string `json:"severity" validate:"oneof=LOW MEDIUM HIGH"`
	Title    string `json:"title" validate:"required"`
	Detail   string `json:"detail,omitempty"`
}

// DateRange bounds the trip in local dates.
type DateRange struct {
	StartDate string `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// SourceStats counts what was recognized in the source text.
type SourceStats struct {
	RecognizedItemCount int `json:"recognizedItemCount" validate:"gte=0"`
	InferredItemCount   int `json:"inferredItemCount" validate:"gte=0"`
}

// Day groups the items of one local date in order.
type Day struct {
	Date  string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Label string                `json:"label,omitempty"`
	Items []itinerary.ItemDraft `json:"items" validate:"dive"`
}

// Reconstruction is the full-trip oracle output.
type Reconstruction struct {
	TripTitle          string      `json:"tripTitle" validate:"required"`
	ExecutiveSummary   string      `json:"executiveSummary" jsonschema:"2-3 sentences" validate:"required"`
	DestinationSummary string      `json:"destinationSummary"`
	DateRange          DateRange   `json:"dateRange"`
	Days               []Day       `json:"days" validate:"dive"`
	Risks              []Risk      `json:"risks" validate:"dive"`
	Assumptions        []string    `json:"assumptions"`
	MissingInfo        []string    `json:"missingInfo"`
	SourceStats        SourceStats `json:"sourceStats"`
}

// Diagnostics returns the narrative fields of the reconstruction.
func (r *Reconstruction) Diagnostics() Diagnostics {
	return Diagnostics{
		ExecutiveSummary:   r.ExecutiveSummary,
		DestinationSummary: r.DestinationSummary,
		Risks:              r.Risks,
		Assumptions:        r.Assumptions,
		MissingInfo:        r.MissingInfo,
	}
}

// SetDiagnostics overwrites the narrative fields.
func (r *Reconstruction) SetDiagnostics(d Diagnostics) {
	r.ExecutiveSummary = d.ExecutiveSummary
	r.DestinationSummary = d.DestinationSummary
	r.Risks = d.Risks
	r.Assumptions = d.Assumptions
	r.MissingInfo = d.MissingInfo
}

// Diagnostics is the narrative subset recomputed after a patch.
type Diagnostics struct {
	ExecutiveSummary   string   `json:"executiveSummary" jsonschema:"2-3 sentences" validate:"required"`
	DestinationSummary string   `json:"destinationSummary"`
	Risks              []Risk   `json:"risks" validate:"dive"`
	Assumptions        []string `json:"assumptions"`
	MissingInfo        []string `json:"missingInfo"`
}

func checkReconstruction(r *Reconstruction) []structured.Issue {
	var issues []structured.Issue
	for i := range r.Days {
		for j := range r.Days[i].Items {
			issues = append(issues, r.Days[i].Items[j].Problems(fmt.Sprintf("days[%d].items[%d]", i, j))...)
		}
	}
	return issues
}

var (
	reconstructionSchema = structured.MustSchema("reconstruction", checkReconstruction)
	diagnosticsSchema    = structured.MustSchema[Diagnostics]("diagnostics", nil)
)
