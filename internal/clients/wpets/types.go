package wpets

import (
	"encoding/json"
	"time"

	"github.com/petitionwatch/backend/internal/types"
)

const (
	TypePetition         = "petition"
	TypeArchivedPetition = "archived-petition"
)

// ListStates is the allow-list of petition states accepted by the remote
// listing endpoint.
var ListStates = []string{
	"rejected",
	"closed",
	"open",
	"debated",
	"not_debated",
	"awaiting_response",
	"with_response",
	"awaiting_debate",
	"all",
}

// LocaleCount is one per-locale entry in a geographic breakdown list. Country
// breakdowns carry an ISO code, region and constituency breakdowns an ONS
// code.
type LocaleCount struct {
	Code           string `json:"code"`
	OnsCode        string `json:"ons_code"`
	Name           string `json:"name"`
	SignatureCount int    `json:"signature_count"`
}

// LocaleCode returns whichever code field the remote populated.
func (lc LocaleCount) LocaleCode() string {
	if lc.Code != "" {
		return lc.Code
	}
	return lc.OnsCode
}

type Attributes struct {
	State             string `json:"state"`
	Action            string `json:"action"`
	Background        string `json:"background"`
	AdditionalDetails string `json:"additional_details"`
	SignatureCount    int    `json:"signature_count"`

	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
	RejectedAt *time.Time `json:"rejected_at"`
	ClosedAt   *time.Time `json:"closed_at"`

	ModerationThresholdReachedAt *time.Time `json:"moderation_threshold_reached_at"`
	ResponseThresholdReachedAt   *time.Time `json:"response_threshold_reached_at"`
	GovernmentResponseAt         *time.Time `json:"government_response_at"`
	DebateThresholdReachedAt     *time.Time `json:"debate_threshold_reached_at"`
	DebateOutcomeAt              *time.Time `json:"debate_outcome_at"`

	SignaturesByCountry      []LocaleCount `json:"signatures_by_country"`
	SignaturesByRegion       []LocaleCount `json:"signatures_by_region"`
	SignaturesByConstituency []LocaleCount `json:"signatures_by_constituency"`
}

// Breakdown returns the locale list for one geography dimension.
func (a Attributes) Breakdown(g types.Geography) []LocaleCount {
	switch g {
	case types.GeographyCountry:
		return a.SignaturesByCountry
	case types.GeographyRegion:
		return a.SignaturesByRegion
	case types.GeographyConstituency:
		return a.SignaturesByConstituency
	}
	return nil
}

type PetitionData struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Attributes Attributes `json:"attributes"`
}

func (d PetitionData) Archived() bool { return d.Type == TypeArchivedPetition }

type Links struct {
	Self  *string `json:"self"`
	First *string `json:"first"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
	Last  *string `json:"last"`
}

// Payload is the detail response envelope for one petition.
type Payload struct {
	Data  PetitionData `json:"data"`
	Links Links        `json:"links"`
}

type pageEnvelope struct {
	Data  []PetitionData `json:"data"`
	Links Links          `json:"links"`
}

// ListQuery parametrizes the listing endpoint.
type ListQuery struct {
	State    string
	Terms    []string
	Archived bool
}

// FetchOptions control a single petition fetch.
type FetchOptions struct {
	Archived bool
	// Raise404 turns a 404 into an error instead of a nil result.
	Raise404 bool
}

// BulkOptions bound the concurrent fetch retry loop. Worst case total
// requests for FetchMany is len(reqs) * (1 + MaxRetries).
type BulkOptions struct {
	MaxRetries int
	Backoff    time.Duration
}

// FetchRequest is one unit of a bulk fetch, optionally carrying the local
// petition the result belongs to.
type FetchRequest struct {
	ID       int64
	Archived bool
	Petition *types.Petition
}

// FetchResult is a per-item bulk outcome. Callers correlate by ID or
// Petition, never by position.
type FetchResult struct {
	ID        int64
	Petition  *types.Petition
	Payload   *Payload
	Raw       json.RawMessage
	Timestamp time.Time
	Err       error

	// originating request, kept so retry rounds re-issue it unchanged
	req FetchRequest
}

// BulkResult partitions a bulk fetch. After the retry loop returns, Failed is
// permanently failed.
type BulkResult struct {
	Success []*FetchResult
	Failed  []*FetchResult
}

// PageResult is one listing page outcome in a paged bulk query.
type PageResult struct {
	Index     int
	Data      []PetitionData
	Links     Links
	Timestamp time.Time
	Err       error
}

type PageBulkResult struct {
	Success []*PageResult
	Failed  []*PageResult
}
