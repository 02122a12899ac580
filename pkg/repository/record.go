package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/feedlens/feedlens/pkg/domain"
)

// RecordRepository handles feedback record persistence
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// recordSQL represents a feedback record for SQL operations
type recordSQL struct {
	Identity   string    `db:"identity"`
	Source     string    `db:"source"`
	Title      string    `db:"title"`
	Gist       string    `db:"gist"`
	Body       string    `db:"body"`
	Author     string    `db:"author"`
	CreatedAt  time.Time `db:"created_at"`
	URL        string    `db:"url"`
	NativeID   string    `db:"native_id"`
	ParseError bool      `db:"parse_error"`

	Category        string      `db:"category"`
	Subcategory     string      `db:"subcategory"`
	Domain          string      `db:"domain"`
	Audience        string      `db:"audience"`
	Priority        string      `db:"priority"`
	Sentiment       string      `db:"sentiment"`
	ImpactType      string      `db:"impact_type"`
	Confidence      float64     `db:"confidence"`
	MatchedKeywords keywordsSQL `db:"matched_keywords"`

	State        string    `db:"state"`
	AssignedUser string    `db:"assigned_user"`
	LastUpdated  time.Time `db:"last_updated"`

	CollectedAt time.Time `db:"collected_at"`
}

// keywordsSQL is a JSON array of matched keyword strings for SQL operations
type keywordsSQL []string

// Value implements driver.Valuer for database storage
func (k keywordsSQL) Value() (driver.Value, error) {
	if k == nil {
		return "[]", nil
	}
	return json.Marshal(k)
}

// Scan implements sql.Scanner for database retrieval
func (k *keywordsSQL) Scan(value interface{}) error {
	if value == nil {
		*k = keywordsSQL{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for keywords: %T", value)
	}
	return json.Unmarshal(data, k)
}

// MergeStats summarizes what a batch merge changed
type MergeStats struct {
	Inserted int
	Updated  int
}

// MergeCollected upserts a batch of classified items into the record set.
// New identities are inserted in state NEW; existing identities get their
// normalized and classification fields refreshed while lifecycle fields
// (state, assigned_user, last_updated, history) stay untouched.
func (r *RecordRepository) MergeCollected(ctx context.Context, items []domain.NormalizedItem, classifications []domain.Classification) (MergeStats, error) {
	if len(items) != len(classifications) {
		return MergeStats{}, fmt.Errorf("items and classifications length mismatch: %d vs %d", len(items), len(classifications))
	}

	var stats MergeStats
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err := retrier.Do(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("begin merge tx: %w", err)}
		}
		defer func() { _ = tx.Rollback() }()

		st := MergeStats{}
		for i, item := range items {
			inserted, err := upsertOne(ctx, tx, item, classifications[i])
			if err != nil {
				if isLockError(err) {
					return err
				}
				return &criticalError{err: fmt.Errorf("merge record %s: %w", item.Identity, err)}
			}
			if inserted {
				st.Inserted++
			} else {
				st.Updated++
			}
		}

		if err := tx.Commit(); err != nil {
			if isLockError(err) {
				return err
			}
			return &criticalError{err: fmt.Errorf("commit merge tx: %w", err)}
		}
		stats = st
		return nil
	})
	if err != nil {
		var ce *criticalError
		if errors.As(err, &ce) {
			return MergeStats{}, ce.err
		}
		return MergeStats{}, err
	}
	return stats, nil
}

func upsertOne(ctx context.Context, tx *sqlx.Tx, item domain.NormalizedItem, cl domain.Classification) (inserted bool, err error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE records SET
			source = ?, title = ?, gist = ?, body = ?, author = ?, created_at = ?,
			url = ?, native_id = ?, parse_error = ?,
			category = ?, subcategory = ?, domain = ?, audience = ?, priority = ?,
			sentiment = ?, impact_type = ?, confidence = ?, matched_keywords = ?,
			collected_at = ?
		WHERE identity = ?`,
		item.Source, item.Title, item.Gist, item.Body, item.Author, item.CreatedAt,
		item.URL, item.RawFields.NativeID, item.RawFields.ParseError,
		cl.Category, cl.Subcategory, cl.Domain, string(cl.Audience), string(cl.Priority),
		string(cl.Sentiment), string(cl.ImpactType), cl.Confidence, keywordsSQL(cl.MatchedKeywords),
		time.Now().UTC(), item.Identity)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (
			identity, source, title, gist, body, author, created_at, url, native_id, parse_error,
			category, subcategory, domain, audience, priority, sentiment, impact_type,
			confidence, matched_keywords, state, assigned_user, last_updated, collected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Identity, item.Source, item.Title, item.Gist, item.Body, item.Author,
		item.CreatedAt, item.URL, item.RawFields.NativeID, item.RawFields.ParseError,
		cl.Category, cl.Subcategory, cl.Domain, string(cl.Audience), string(cl.Priority),
		string(cl.Sentiment), string(cl.ImpactType), cl.Confidence, keywordsSQL(cl.MatchedKeywords),
		string(domain.StateNew), "", now, now)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRecord retrieves a record by identity
func (r *RecordRepository) GetRecord(ctx context.Context, identity string) (*domain.FeedbackRecord, error) {
	var rec recordSQL
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM records WHERE identity = ?", identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return toDomainRecord(&rec), nil
}

// ListRecords retrieves records ordered by created_at descending
func (r *RecordRepository) ListRecords(ctx context.Context, limit, offset int) ([]domain.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []recordSQL
	err := r.db.SelectContext(ctx, &recs,
		"SELECT * FROM records ORDER BY created_at DESC, identity LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	result := make([]domain.FeedbackRecord, len(recs))
	for i := range recs {
		result[i] = *toDomainRecord(&recs[i])
	}
	return result, nil
}

// UpdateState validates nothing by itself: the state manager owns validation.
// It atomically applies the transition and appends the audit trail entry in
// one transaction, so no concurrent writer can lose a history row.
func (r *RecordRepository) UpdateState(ctx context.Context, identity string, newState domain.RecordState, user string) (*domain.FeedbackRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin state tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldState string
	err = tx.GetContext(ctx, &oldState, "SELECT state FROM records WHERE identity = ?", identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("load current state: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET state = ?, assigned_user = ?, last_updated = ? WHERE identity = ?",
		string(newState), user, now, identity); err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO state_history (identity, old_state, new_state, user, timestamp) VALUES (?, ?, ?, ?, ?)",
		identity, oldState, string(newState), user, now); err != nil {
		return nil, fmt.Errorf("append state history: %w", err)
	}

	var rec recordSQL
	if err := tx.GetContext(ctx, &rec, "SELECT * FROM records WHERE identity = ?", identity); err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit state tx: %w", err)
	}
	return toDomainRecord(&rec), nil
}

// AddComment appends a comment to an existing record
func (r *RecordRepository) AddComment(ctx context.Context, identity, text, user string) (*domain.Comment, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM records WHERE identity = ?)", identity)
	if err != nil {
		return nil, fmt.Errorf("check record exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrUnknownIdentity
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO comments (identity, text, user, created_at) VALUES (?, ?, ?, ?)",
		identity, text, user, now)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get comment id: %w", err)
	}
	return &domain.Comment{ID: id, Identity: identity, Text: text, User: user, CreatedAt: now}, nil
}

// GetComments retrieves all comments for a record, oldest first
func (r *RecordRepository) GetComments(ctx context.Context, identity string) ([]domain.Comment, error) {
	type commentSQL struct {
		ID        int64     `db:"id"`
		Identity  string    `db:"identity"`
		Text      string    `db:"text"`
		User      string    `db:"user"`
		CreatedAt time.Time `db:"created_at"`
	}
	var rows []commentSQL
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM comments WHERE identity = ? ORDER BY created_at, id", identity)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	result := make([]domain.Comment, len(rows))
	for i, c := range rows {
		result[i] = domain.Comment{ID: c.ID, Identity: c.Identity, Text: c.Text, User: c.User, CreatedAt: c.CreatedAt}
	}
	return result, nil
}

// GetHistory retrieves the audit trail for a record, oldest first
func (r *RecordRepository) GetHistory(ctx context.Context, identity string) ([]domain.StateTransition, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM records WHERE identity = ?)", identity)
	if err != nil {
		return nil, fmt.Errorf("check record exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrUnknownIdentity
	}

	type historySQL struct {
		ID        int64     `db:"id"`
		Identity  string    `db:"identity"`
		OldState  string    `db:"old_state"`
		NewState  string    `db:"new_state"`
		User      string    `db:"user"`
		Timestamp time.Time `db:"timestamp"`
	}
	var rows []historySQL
	err = r.db.SelectContext(ctx, &rows,
		"SELECT * FROM state_history WHERE identity = ? ORDER BY timestamp, id", identity)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	result := make([]domain.StateTransition, len(rows))
	for i, h := range rows {
		result[i] = domain.StateTransition{
			Identity:  h.Identity,
			OldState:  domain.RecordState(h.OldState),
			NewState:  domain.RecordState(h.NewState),
			User:      h.User,
			Timestamp: h.Timestamp,
		}
	}
	return result, nil
}

// exportColumns is the flat tabular projection of a feedback record
var exportColumns = []string{
	"identity", "title", "gist", "body", "category", "subcategory", "domain",
	"audience", "priority", "sentiment", "impact_type", "confidence",
	"source", "url", "created_at", "state", "assigned_user", "last_updated",
}

// ExportCSV streams all records as CSV to w
func (r *RecordRepository) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := r.db.QueryxContext(ctx, "SELECT * FROM records ORDER BY created_at DESC, identity")
	if err != nil {
		return fmt.Errorf("query records for export: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for rows.Next() {
		var rec recordSQL
		if err := rows.StructScan(&rec); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		row := []string{
			rec.Identity, rec.Title, rec.Gist, rec.Body, rec.Category, rec.Subcategory,
			rec.Domain, rec.Audience, rec.Priority, rec.Sentiment, rec.ImpactType,
			strconv.FormatFloat(rec.Confidence, 'f', -1, 64),
			rec.Source, rec.URL, rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.State, rec.AssignedUser, rec.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func toDomainRecord(rec *recordSQL) *domain.FeedbackRecord {
	return &domain.FeedbackRecord{
		NormalizedItem: domain.NormalizedItem{
			Identity:  rec.Identity,
			Source:    rec.Source,
			Title:     rec.Title,
			Gist:      rec.Gist,
			Body:      rec.Body,
			Author:    rec.Author,
			CreatedAt: rec.CreatedAt.UTC(),
			URL:       rec.URL,
			RawFields: domain.RawFields{NativeID: rec.NativeID, ParseError: rec.ParseError},
		},
		Classification: domain.Classification{
			Category:        rec.Category,
			Subcategory:     rec.Subcategory,
			Domain:          rec.Domain,
			Audience:        domain.Audience(rec.Audience),
			Priority:        domain.Priority(rec.Priority),
			Sentiment:       domain.Sentiment(rec.Sentiment),
			ImpactType:      domain.ImpactType(rec.ImpactType),
			Confidence:      rec.Confidence,
			MatchedKeywords: rec.MatchedKeywords,
		},
		State:        domain.RecordState(rec.State),
		AssignedUser: rec.AssignedUser,
		LastUpdated:  rec.LastUpdated.UTC(),
	}
}
