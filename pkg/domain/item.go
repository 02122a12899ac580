package domain

import "time"

// RawItem is a source-native payload as returned by a source adapter.
// It lives only within a single collection run.
type RawItem struct {
	Title        string
	Body         string
	Author       string
	CreatedAtRaw string
	URL          string
	NativeID     string
	Extra        map[string]string
}

// NormalizedItem is the cleaned, timezone-normalized representation of a raw item.
// Title and Body never mutate after creation; CreatedAt is the single timestamp
// used for ordering and is always UTC.
type NormalizedItem struct {
	Identity  string    `json:"identity"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Gist      string    `json:"gist"`
	Body      string    `json:"body"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url,omitempty"`
	RawFields RawFields `json:"raw_fields"`
}

// RawFields keeps source-native leftovers and normalization diagnostics.
type RawFields struct {
	NativeID   string            `json:"native_id,omitempty"`
	ParseError bool              `json:"parse_error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Classification is the category/domain/audience/priority/sentiment tuple
// attached to a normalized item. Recomputed deterministically from the same
// input, so re-classification is idempotent.
type Classification struct {
	Category        string     `json:"category"`
	Subcategory     string     `json:"subcategory"`
	Domain          string     `json:"domain"`
	Audience        Audience   `json:"audience"`
	Priority        Priority   `json:"priority"`
	Sentiment       Sentiment  `json:"sentiment"`
	ImpactType      ImpactType `json:"impact_type"`
	Confidence      float64    `json:"confidence"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
}

// Audience identifies who the feedback concerns
type Audience string

// audience values, default is Customer
const (
	AudienceDeveloper Audience = "Developer"
	AudienceCustomer  Audience = "Customer"
	AudienceISV       Audience = "ISV"
)

// Priority is the severity level assigned by the classifier
type Priority string

// priority levels, default is medium
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Sentiment is the lexicon-based polarity of the feedback text
type Sentiment string

// sentiment values
const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// ImpactType is the coarse kind of the feedback item
type ImpactType string

// impact types
const (
	ImpactBug            ImpactType = "Bug"
	ImpactFeatureRequest ImpactType = "Feature Request"
	ImpactQuestion       ImpactType = "Question"
	ImpactFeedback       ImpactType = "Feedback"
)

// RecordState is the review lifecycle state of a persisted record
type RecordState string

// lifecycle states: NEW -> TRIAGED -> {CLOSED | IRRELEVANT}, any state may
// reopen to NEW
const (
	StateNew        RecordState = "NEW"
	StateTriaged    RecordState = "TRIAGED"
	StateClosed     RecordState = "CLOSED"
	StateIrrelevant RecordState = "IRRELEVANT"
)

// ValidState reports whether s is one of the defined lifecycle states
func ValidState(s RecordState) bool {
	switch s {
	case StateNew, StateTriaged, StateClosed, StateIrrelevant:
		return true
	}
	return false
}

// FeedbackRecord is the persisted union of a normalized item, its
// classification and the lifecycle fields owned by the state manager.
// Identity is the primary key.
type FeedbackRecord struct {
	NormalizedItem
	Classification
	State        RecordState `json:"state"`
	AssignedUser string      `json:"assigned_user,omitempty"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// StateTransition is one append-only audit trail entry
type StateTransition struct {
	Identity  string      `json:"identity"`
	OldState  RecordState `json:"old_state"`
	NewState  RecordState `json:"new_state"`
	User      string      `json:"user"`
	Timestamp time.Time   `json:"timestamp"`
}

// Comment is a user note attached to a record, never mutates state
type Comment struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	Text      string    `json:"text"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}
