package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/retrieval"
)

//go:embed migrations
var migrationsFS embed.FS

// Compile-time check that SQLStore implements kb.Store.
var _ kb.Store = (*SQLStore)(nil)

// vectorDest scans a stored embedding column.
type vectorDest interface {
	sql.Scanner
	Slice() []float32
}

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// bootstrap creates the schema_version table.
	bootstrap string
	// rebind rewrites ? placeholders for the driver.
	rebind func(q string) string
	// vectorValue encodes an embedding for insertion.
	vectorValue func(v []float32) any
	// newVectorDest returns a scan target for the embedding column.
	newVectorDest func() vectorDest
}

// SQLStore persists drafts and articles in a SQL database. Ranking happens
// in Go with retrieval.CosineSimilarity so every backend shares one scoring
// policy.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string {
	if s.dialect.rebind == nil {
		return query
	}
	return s.dialect.rebind(query)
}

// migrate applies the embedded migrations for this dialect that have not
// been recorded in schema_version yet.
func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(s.dialect.bootstrap); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	dir := "migrations/" + s.dialect.name
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow(s.q("SELECT COUNT(*) FROM schema_version WHERE version = ?"), version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec(s.q("INSERT INTO schema_version (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *SQLStore) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Drafts ---

const draftColumns = `id, source_ticket_id, title, content_markdown, suggested_tags, status, created_at,
	problem_description, cause, resolution_steps, review_feedback, reviewed_at`

func (s *SQLStore) SaveDraft(ctx context.Context, d kb.Draft) error {
	tags, err := encodeTags(d.SuggestedTags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO drafts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_ticket_id = excluded.source_ticket_id,
			title = excluded.title,
			content_markdown = excluded.content_markdown,
			suggested_tags = excluded.suggested_tags,
			status = excluded.status,
			created_at = excluded.created_at,
			problem_description = excluded.problem_description,
			cause = excluded.cause,
			resolution_steps = excluded.resolution_steps,
			review_feedback = excluded.review_feedback,
			reviewed_at = excluded.reviewed_at`),
		d.ID, d.SourceTicketID, d.Title, d.ContentMarkdown, tags, string(d.Status),
		formatTime(d.CreatedAt), nullString(d.ProblemDescription), nullString(d.Cause),
		nullString(d.ResolutionSteps), d.ReviewFeedback, nullTime(d.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("saving draft %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLStore) GetDraft(ctx context.Context, id string) (kb.Draft, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+draftColumns+` FROM drafts WHERE id = ?`), id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return kb.Draft{}, kb.ErrNotFound
	}
	return d, err
}

func (s *SQLStore) ListPendingDrafts(ctx context.Context) ([]kb.Draft, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+draftColumns+` FROM drafts WHERE status = ? ORDER BY seq ASC`),
		string(kb.StatusPendingReview))
	if err != nil {
		return nil, fmt.Errorf("listing pending drafts: %w", err)
	}
	defer rows.Close()

	drafts := []kb.Draft{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *SQLStore) UpdateDraftStatus(ctx context.Context, id string, status kb.Status, feedback string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE drafts SET status = ?, review_feedback = ?, reviewed_at = ? WHERE id = ?`),
		string(status), feedback, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("updating draft %s: %w", id, err)
	}
	return expectRows(res)
}

func (s *SQLStore) RemoveDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM drafts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("removing draft %s: %w", id, err)
	}
	return expectRows(res)
}

// --- Articles ---

const articleColumns = `id, title, content_markdown, tags, created_at, last_updated_at, source_draft_id`

// PublishDraft runs in one transaction whose first statement is a
// conditional delete of the pending draft. Of two concurrent publishes of
// the same draft only one deletes a row; the other sees zero rows and fails.
func (s *SQLStore) PublishDraft(ctx context.Context, draftID string, req kb.PublishRequest, embedding []float32) (kb.Article, error) {
	tags, err := encodeTags(req.Tags)
	if err != nil {
		return kb.Article{}, err
	}
	now := s.now()
	a := kb.Article{
		ID:              uuid.NewString(),
		Title:           req.Title,
		ContentMarkdown: req.ContentMarkdown,
		Tags:            req.Tags,
		CreatedAt:       now,
		LastUpdatedAt:   now,
		SourceDraftID:   draftID,
	}.Clone()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kb.Article{}, fmt.Errorf("beginning publish transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM drafts WHERE id = ? AND status = ?`),
		draftID, string(kb.StatusPendingReview))
	if err != nil {
		return kb.Article{}, fmt.Errorf("claiming draft %s: %w", draftID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return kb.Article{}, err
	} else if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM drafts WHERE id = ?`), draftID).Scan(&exists); err != nil {
			return kb.Article{}, fmt.Errorf("checking draft %s: %w", draftID, err)
		}
		if exists > 0 {
			return kb.Article{}, kb.ErrNotPublishable
		}
		return kb.Article{}, kb.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO articles (`+articleColumns+`, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Title, a.ContentMarkdown, tags, formatTime(a.CreatedAt), formatTime(a.LastUpdatedAt),
		a.SourceDraftID, s.dialect.vectorValue(embedding),
	)
	if err != nil {
		return kb.Article{}, fmt.Errorf("inserting article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return kb.Article{}, fmt.Errorf("committing publish: %w", err)
	}
	return a, nil
}

func (s *SQLStore) GetArticle(ctx context.Context, id string) (kb.Article, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+articleColumns+` FROM articles WHERE id = ?`), id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return kb.Article{}, kb.ErrNotFound
	}
	return a, err
}

// SearchArticles scans only seq and embedding to rank, then fetches the full
// rows for the top-K winners.
func (s *SQLStore) SearchArticles(ctx context.Context, query []float32, topK int) ([]kb.ScoredArticle, error) {
	if topK <= 0 {
		return []kb.ScoredArticle{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, id, embedding FROM articles ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	var ids []string
	var cands []retrieval.Candidate
	for rows.Next() {
		var seq int
		var id string
		dest := s.dialect.newVectorDest()
		if err := rows.Scan(&seq, &id, dest); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		ids = append(ids, id)
		cands = append(cands, retrieval.Candidate{Seq: seq, Vector: dest.Slice()})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}
	rows.Close()

	ranked := retrieval.TopK(query, cands, topK)
	if len(ranked) == 0 {
		return []kb.ScoredArticle{}, nil
	}

	args := make([]any, len(ranked))
	for i, r := range ranked {
		args[i] = ids[r.Index]
	}
	full, err := s.db.QueryContext(ctx, s.q(`SELECT `+articleColumns+` FROM articles WHERE id IN (?`+
		strings.Repeat(",?", len(ranked)-1)+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K articles: %w", err)
	}
	defer full.Close()

	byID := make(map[string]kb.Article, len(ranked))
	for full.Next() {
		a, err := scanArticle(full)
		if err != nil {
			return nil, err
		}
		byID[a.ID] = a
	}
	if err := full.Err(); err != nil {
		return nil, fmt.Errorf("iterating top-K articles: %w", err)
	}

	// IN does not preserve order.
	out := make([]kb.ScoredArticle, 0, len(ranked))
	for _, r := range ranked {
		if a, ok := byID[ids[r.Index]]; ok {
			out = append(out, kb.ScoredArticle{Article: a, Score: r.Score})
		}
	}
	return out, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (kb.Draft, error) {
	var d kb.Draft
	var tags, status, createdAt string
	var problem, cause, resolution, reviewedAt sql.NullString
	err := row.Scan(&d.ID, &d.SourceTicketID, &d.Title, &d.ContentMarkdown, &tags, &status, &createdAt,
		&problem, &cause, &resolution, &d.ReviewFeedback, &reviewedAt)
	if err != nil {
		return kb.Draft{}, err
	}
	d.Status = kb.Status(status)
	if d.SuggestedTags, err = decodeTags(tags); err != nil {
		return kb.Draft{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return kb.Draft{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.ProblemDescription = stringPtr(problem)
	d.Cause = stringPtr(cause)
	d.ResolutionSteps = stringPtr(resolution)
	if reviewedAt.Valid {
		t, err := parseTime(reviewedAt.String)
		if err != nil {
			return kb.Draft{}, fmt.Errorf("parsing reviewed_at: %w", err)
		}
		d.ReviewedAt = &t
	}
	return d, nil
}

func scanArticle(row rowScanner) (kb.Article, error) {
	var a kb.Article
	var tags, createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Title, &a.ContentMarkdown, &tags, &createdAt, &updatedAt, &a.SourceDraftID); err != nil {
		return kb.Article{}, err
	}
	var err error
	if a.Tags, err = decodeTags(tags); err != nil {
		return kb.Article{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return kb.Article{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.LastUpdatedAt, err = parseTime(updatedAt); err != nil {
		return kb.Article{}, fmt.Errorf("parsing last_updated_at: %w", err)
	}
	return a, nil
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kb.ErrNotFound
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(s string) ([]string, error) {
	tags := []string{}
	if s == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	return tags, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// rebindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebindDollar(q string) string {
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(q[i])
	}
	return sb.String()
}
