// -----------------------------------------------------------------------
// Queue Item - durable unit of work persisted in the job_queue table
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// ItemType classifies a queue item. The set is fixed; the dispatcher routes
// on it.
type ItemType string

const (
	ItemTypeJob             ItemType = "job"
	ItemTypeCompany         ItemType = "company"
	ItemTypeScrape          ItemType = "scrape"
	ItemTypeSourceDiscovery ItemType = "source_discovery"
	ItemTypeScrapeSource    ItemType = "scrape_source"
	ItemTypeSourceRecover   ItemType = "source_recover"
)

// ItemStatus is the lifecycle state of a queue item.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusSuccess    ItemStatus = "success"
	StatusFailed     ItemStatus = "failed"
	StatusFiltered   ItemStatus = "filtered"
	StatusSkipped    ItemStatus = "skipped"
)

// IsTerminal reports whether the status is final. Terminal items keep their
// completed_at timestamp and are retained for audit.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusFiltered, StatusSkipped:
		return true
	}
	return false
}

// JobStage names the sub-task of a JOB item. Stages advance strictly in the
// order listed.
type JobStage string

const (
	JobStageScrape    JobStage = "scrape"
	JobStagePrefilter JobStage = "prefilter"
	JobStageExtract   JobStage = "extract"
	JobStageScore     JobStage = "score"
	JobStageAnalyse   JobStage = "analyse"
	JobStageSave      JobStage = "save"
)

// NextJobStage returns the stage following s, or "" when s is the last one.
func NextJobStage(s JobStage) JobStage {
	switch s {
	case JobStageScrape:
		return JobStagePrefilter
	case JobStagePrefilter:
		return JobStageExtract
	case JobStageExtract:
		return JobStageScore
	case JobStageScore:
		return JobStageAnalyse
	case JobStageAnalyse:
		return JobStageSave
	}
	return ""
}

// CompanyStage names the sub-task of a COMPANY item.
type CompanyStage string

const (
	CompanyStageFetch   CompanyStage = "fetch"
	CompanyStageExtract CompanyStage = "extract"
	CompanyStageAnalyse CompanyStage = "analyse"
	CompanyStageSave    CompanyStage = "save"
)

// NextCompanyStage returns the stage following s, or "" when s is the last one.
func NextCompanyStage(s CompanyStage) CompanyStage {
	switch s {
	case CompanyStageFetch:
		return CompanyStageExtract
	case CompanyStageExtract:
		return CompanyStageAnalyse
	case CompanyStageAnalyse:
		return CompanyStageSave
	}
	return ""
}

// ScrapeRunConfig constrains a SCRAPE run. Nil pointer fields mean
// "unlimited".
type ScrapeRunConfig struct {
	TargetMatches *int     `json:"target_matches,omitempty"`
	MaxSources    *int     `json:"max_sources,omitempty"`
	SourceIDs     []string `json:"source_ids,omitempty"`
	MinMatchScore *int     `json:"min_match_score,omitempty"`
}

// QueueItem is one row of the durable work queue. Items are created by
// external submitters (user, scheduler, scrape runner) or spawned by a parent
// item, and are mutated only through the queue service.
type QueueItem struct {
	ID     string     `json:"id"`
	Type   ItemType   `json:"type"`
	Status ItemStatus `json:"status"`

	// Work identity
	URL         string `json:"url,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	CompanyID   string `json:"company_id,omitempty"`
	Source      string `json:"source,omitempty"`
	SourceID    string `json:"source_id,omitempty"`

	// Lineage. TrackingID is inherited by every descendant of an initial
	// submission and drives loop prevention. ParentItemID points at the
	// direct parent, nil for root items.
	TrackingID   string  `json:"tracking_id"`
	ParentItemID *string `json:"parent_item_id,omitempty"`

	// Pipeline position for multi-stage kinds.
	SubTask        JobStage     `json:"sub_task,omitempty"`
	CompanySubTask CompanyStage `json:"company_sub_task,omitempty"`

	// PipelineState carries data between stages of the same item: scraped
	// payload, extraction result, match analysis, wait counters, bypass
	// flag. It belongs to exactly one item; spawning copies it.
	PipelineState map[string]interface{} `json:"pipeline_state,omitempty"`

	// Kind-specific payloads.
	ScrapedData     map[string]interface{} `json:"scraped_data,omitempty"`
	ScrapeConfig    *ScrapeRunConfig       `json:"scrape_config,omitempty"`
	DiscoveryConfig map[string]interface{} `json:"source_discovery_config,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`

	RetryCount    int    `json:"retry_count"`
	MaxRetries    int    `json:"max_retries"`
	ResultMessage string `json:"result_message,omitempty"`
	ErrorDetails  string `json:"error_details,omitempty"`

	SubmittedBy string `json:"submitted_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DefaultMaxRetries applies when a submitter does not set max_retries.
const DefaultMaxRetries = 3

// NewQueueItem creates a pending item of the given type. IDs and tracking id
// are assigned by the queue service at Add time when left empty.
func NewQueueItem(itemType ItemType) *QueueItem {
	now := time.Now().UTC()
	return &QueueItem{
		Type:       itemType,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy. Nested maps are copied through a JSON round
// trip so the clone never aliases the original's pipeline state.
func (q *QueueItem) Clone() *QueueItem {
	data, err := json.Marshal(q)
	if err != nil {
		c := *q
		return &c
	}
	var c QueueItem
	if err := json.Unmarshal(data, &c); err != nil {
		c2 := *q
		return &c2
	}
	return &c
}

// CloneState deep-copies the pipeline state map. Spawned children receive a
// copy, never a shared reference.
func (q *QueueItem) CloneState() map[string]interface{} {
	return CloneMap(q.PipelineState)
}

// CloneMap deep-copies an arbitrary JSON-shaped map.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// StateString reads a string value from the pipeline state.
func (q *QueueItem) StateString(key string) (string, bool) {
	if q.PipelineState == nil {
		return "", false
	}
	v, ok := q.PipelineState[key].(string)
	return v, ok
}

// StateInt reads an int value from the pipeline state. JSON deserialization
// produces float64, so both are accepted.
func (q *QueueItem) StateInt(key string) (int, bool) {
	if q.PipelineState == nil {
		return 0, false
	}
	switch v := q.PipelineState[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StateBool reads a bool value from the pipeline state.
func (q *QueueItem) StateBool(key string) (bool, bool) {
	if q.PipelineState == nil {
		return false, false
	}
	v, ok := q.PipelineState[key].(bool)
	return v, ok
}

// StateMap reads a nested map value from the pipeline state.
func (q *QueueItem) StateMap(key string) (map[string]interface{}, bool) {
	if q.PipelineState == nil {
		return nil, false
	}
	v, ok := q.PipelineState[key].(map[string]interface{})
	return v, ok
}

// SetState writes a pipeline state value, allocating the map when needed.
func (q *QueueItem) SetState(key string, value interface{}) {
	if q.PipelineState == nil {
		q.PipelineState = make(map[string]interface{})
	}
	q.PipelineState[key] = value
}

// MetaString reads a string value from the metadata map.
func (q *QueueItem) MetaString(key string) (string, bool) {
	if q.Metadata == nil {
		return "", false
	}
	v, ok := q.Metadata[key].(string)
	return v, ok
}
