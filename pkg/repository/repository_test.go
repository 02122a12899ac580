package repository

import (
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedlens/feedlens/pkg/domain"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc&_txlock=immediate"
	repo, err := New(context.Background(), Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})
	return repo
}

func testItem(identity, title string) domain.NormalizedItem {
	return domain.NormalizedItem{
		Identity:  identity,
		Source:    "reddit",
		Title:     title,
		Gist:      "gist of " + title,
		Body:      "body of " + title,
		Author:    "someone",
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		URL:       "https://example.com/" + identity,
		RawFields: domain.RawFields{NativeID: "n-" + identity},
	}
}

func testClassification() domain.Classification {
	return domain.Classification{
		Category:        "Reliability",
		Subcategory:     "Crashes",
		Domain:          "Runtime",
		Audience:        domain.AudienceCustomer,
		Priority:        domain.PriorityHigh,
		Sentiment:       domain.SentimentNegative,
		ImpactType:      domain.ImpactBug,
		Confidence:      0.75,
		MatchedKeywords: []string{"crash", "panic"},
	}
}

func TestRecordRepository_MergeCollected(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t.Run("insert new records in state NEW", func(t *testing.T) {
		stats, err := repo.Record.MergeCollected(ctx,
			[]domain.NormalizedItem{testItem("id-1", "first"), testItem("id-2", "second")},
			[]domain.Classification{testClassification(), testClassification()})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Inserted)
		assert.Zero(t, stats.Updated)

		rec, err := repo.Record.GetRecord(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StateNew, rec.State)
		assert.Equal(t, "first", rec.Title)
		assert.Equal(t, "Crashes", rec.Subcategory)
		assert.Equal(t, []string{"crash", "panic"}, rec.MatchedKeywords)
		assert.InDelta(t, 0.75, rec.Confidence, 1e-9)
	})

	t.Run("re-merge refreshes content but preserves lifecycle", func(t *testing.T) {
		_, err := repo.Record.UpdateState(ctx, "id-1", domain.StateTriaged, "alex")
		require.NoError(t, err)

		updated := testItem("id-1", "first updated title")
		cl := testClassification()
		cl.Priority = domain.PriorityCritical
		stats, err := repo.Record.MergeCollected(ctx, []domain.NormalizedItem{updated}, []domain.Classification{cl})
		require.NoError(t, err)
		assert.Zero(t, stats.Inserted)
		assert.Equal(t, 1, stats.Updated)

		rec, err := repo.Record.GetRecord(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, "first updated title", rec.Title)
		assert.Equal(t, domain.PriorityCritical, rec.Priority)
		assert.Equal(t, domain.StateTriaged, rec.State, "lifecycle survives re-collection")
		assert.Equal(t, "alex", rec.AssignedUser)

		history, err := repo.Record.GetHistory(ctx, "id-1")
		require.NoError(t, err)
		assert.Len(t, history, 1, "merge never touches the audit trail")
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		_, err := repo.Record.MergeCollected(ctx, []domain.NormalizedItem{testItem("x", "x")}, nil)
		assert.Error(t, err)
	})
}

func TestRecordRepository_StateAndHistory(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Record.MergeCollected(ctx,
		[]domain.NormalizedItem{testItem("id-1", "first")},
		[]domain.Classification{testClassification()})
	require.NoError(t, err)

	t.Run("transition appends history", func(t *testing.T) {
		rec, err := repo.Record.UpdateState(ctx, "id-1", domain.StateTriaged, "alex")
		require.NoError(t, err)
		assert.Equal(t, domain.StateTriaged, rec.State)
		assert.Equal(t, "alex", rec.AssignedUser)
		assert.False(t, rec.LastUpdated.IsZero())

		rec, err = repo.Record.UpdateState(ctx, "id-1", domain.StateClosed, "sam")
		require.NoError(t, err)
		assert.Equal(t, domain.StateClosed, rec.State)

		history, err := repo.Record.GetHistory(ctx, "id-1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.StateNew, history[0].OldState)
		assert.Equal(t, domain.StateTriaged, history[0].NewState)
		assert.Equal(t, domain.StateTriaged, history[1].OldState)
		assert.Equal(t, domain.StateClosed, history[1].NewState)
		assert.Equal(t, "sam", history[1].User)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := repo.Record.UpdateState(ctx, "missing", domain.StateTriaged, "alex")
		assert.ErrorIs(t, err, domain.ErrUnknownIdentity)

		_, err = repo.Record.GetRecord(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrUnknownIdentity)

		_, err = repo.Record.GetHistory(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
	})
}

func TestRecordRepository_Comments(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Record.MergeCollected(ctx,
		[]domain.NormalizedItem{testItem("id-1", "first")},
		[]domain.Classification{testClassification()})
	require.NoError(t, err)

	c1, err := repo.Record.AddComment(ctx, "id-1", "needs repro", "alex")
	require.NoError(t, err)
	assert.Positive(t, c1.ID)

	_, err = repo.Record.AddComment(ctx, "id-1", "confirmed on 2.3", "sam")
	require.NoError(t, err)

	comments, err := repo.Record.GetComments(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "needs repro", comments[0].Text)
	assert.Equal(t, "confirmed on 2.3", comments[1].Text)

	_, err = repo.Record.AddComment(ctx, "missing", "text", "alex")
	assert.ErrorIs(t, err, domain.ErrUnknownIdentity)
}

func TestRecordRepository_ListRecords(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	older := testItem("id-old", "older")
	older.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testItem("id-new", "newer")
	newer.CreatedAt = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.Record.MergeCollected(ctx,
		[]domain.NormalizedItem{older, newer},
		[]domain.Classification{testClassification(), testClassification()})
	require.NoError(t, err)

	records, err := repo.Record.ListRecords(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "id-new", records[0].Identity, "newest first")

	records, err = repo.Record.ListRecords(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "id-old", records[0].Identity)
}

func TestRecordRepository_ExportCSV(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Record.MergeCollected(ctx,
		[]domain.NormalizedItem{testItem("id-1", "first"), testItem("id-2", "second")},
		[]domain.Classification{testClassification(), testClassification()})
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, repo.Record.ExportCSV(ctx, &buf))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header plus two records

	assert.Equal(t, exportColumns, rows[0])
	header := rows[0]
	col := func(row []string, name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("column %s not found", name)
		return ""
	}
	assert.Equal(t, "NEW", col(rows[1], "state"))
	assert.Equal(t, "Reliability", col(rows[1], "category"))
	assert.Equal(t, "0.75", col(rows[1], "confidence"))
	assert.NotEmpty(t, col(rows[1], "created_at"))
}

func TestRunRepository(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	run := &domain.CollectionRun{
		RunID:     "run-1",
		Status:    domain.RunCompleted,
		StartedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC),
		Sources: map[string]domain.SourceProgress{
			"reddit": {Count: 12, Status: domain.SourceCompleted},
			"github": {Count: 0, Status: domain.SourceError},
		},
		Errors:       []domain.SourceFailure{{Source: "github", Error: "rate limited"}},
		TotalItems:   12,
		NewItems:     10,
		UpdatedItems: 2,
		SimilarPairs: 1,
		TablesVer:    "2025-08-01",
	}

	t.Run("save and get roundtrip", func(t *testing.T) {
		require.NoError(t, repo.Run.SaveRun(ctx, run))

		got, err := repo.Run.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, run.RunID, got.RunID)
		assert.Equal(t, run.Status, got.Status)
		assert.True(t, run.StartedAt.Equal(got.StartedAt))
		assert.True(t, run.FinishedAt.Equal(got.FinishedAt))
		assert.Equal(t, run.Sources, got.Sources)
		assert.Equal(t, run.Errors, got.Errors)
		assert.Equal(t, 12, got.TotalItems)
		assert.Equal(t, "2025-08-01", got.TablesVer)
	})

	t.Run("save is an upsert", func(t *testing.T) {
		updated := run.Clone()
		updated.Status = domain.RunError
		require.NoError(t, repo.Run.SaveRun(ctx, &updated))

		got, err := repo.Run.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, domain.RunError, got.Status)
	})

	t.Run("list newest first", func(t *testing.T) {
		second := run.Clone()
		second.RunID = "run-2"
		second.StartedAt = run.StartedAt.Add(time.Hour)
		require.NoError(t, repo.Run.SaveRun(ctx, &second))

		runs, err := repo.Run.ListRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-2", runs[0].RunID)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := repo.Run.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})
}
