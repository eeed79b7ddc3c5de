package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// Postgres implements Index on top of a pgvector column. The schema lives in
// migrations/ and is applied with the migrate subcommand.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens and pings a connection with the supplied DSN.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("index postgres dsn required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{DB: db}, nil
}

// Upsert writes records in one transaction. The named return lets the
// deferred commit surface its error; a lost commit must not report success.
func (p *Postgres) Upsert(ctx context.Context, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	var tx *sql.Tx
	tx, err = p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO reference_chunks (id, embedding, text, start_time, end_time, segment_index, chunk_type, chunk_index, language, source, created_at)
VALUES ($1,$2::vector,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
ON CONFLICT (id) DO UPDATE SET
  embedding = EXCLUDED.embedding,
  text = EXCLUDED.text,
  start_time = EXCLUDED.start_time,
  end_time = EXCLUDED.end_time,
  segment_index = EXCLUDED.segment_index,
  chunk_type = EXCLUDED.chunk_type,
  chunk_index = EXCLUDED.chunk_index,
  language = EXCLUDED.language,
  source = EXCLUDED.source,
  created_at = NOW();
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record id required")
		}
		var vectorLiteral string
		vectorLiteral, err = encodeVectorLiteral(rec.Vector)
		if err != nil {
			return err
		}
		meta := rec.Metadata
		if _, err = stmt.ExecContext(ctx, rec.ID, vectorLiteral, meta.Text, meta.StartTime, meta.EndTime,
			meta.SegmentIndex, meta.ChunkType, meta.ChunkIndex, meta.Language, meta.Source); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Query returns the topK nearest chunks by cosine distance. The interface
// reports similarity, so distance is converted as score = 1 - distance.
func (p *Postgres) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	vecLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT id, text, start_time, end_time, segment_index, chunk_type, chunk_index, language, source, embedding <=> $1::vector AS distance
FROM reference_chunks
ORDER BY embedding <=> $1::vector
LIMIT $2
`, vecLiteral, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			hit      Hit
			distance float64
		)
		if err := rows.Scan(&hit.ID, &hit.Metadata.Text, &hit.Metadata.StartTime, &hit.Metadata.EndTime,
			&hit.Metadata.SegmentIndex, &hit.Metadata.ChunkType, &hit.Metadata.ChunkIndex,
			&hit.Metadata.Language, &hit.Metadata.Source, &distance); err != nil {
			return nil, err
		}
		hit.Score = 1 - distance
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (p *Postgres) Fetch(ctx context.Context, id string) (Record, bool, error) {
	var (
		rec        Record
		vecLiteral string
	)
	err := p.DB.QueryRowContext(ctx, `
SELECT id, embedding, text, start_time, end_time, segment_index, chunk_type, chunk_index, language, source
FROM reference_chunks WHERE id=$1
`, id).Scan(&rec.ID, &vecLiteral, &rec.Metadata.Text, &rec.Metadata.StartTime, &rec.Metadata.EndTime,
		&rec.Metadata.SegmentIndex, &rec.Metadata.ChunkType, &rec.Metadata.ChunkIndex,
		&rec.Metadata.Language, &rec.Metadata.Source)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.Vector, err = decodeVectorLiteral(vecLiteral)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (p *Postgres) DeleteAll(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM reference_chunks`)
	return err
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_chunks`).Scan(&count); err != nil {
		return Stats{}, err
	}
	return Stats{VectorCount: count}, nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float32, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
