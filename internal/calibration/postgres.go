package calibration

import (
	"database/sql"
	"fmt"

	"github.com/aprep/backend/internal/models"
)

// Postgres-backed store implementations.

type PostgresParameterStore struct {
	db *sql.DB
}

func NewPostgresParameterStore(db *sql.DB) *PostgresParameterStore {
	return &PostgresParameterStore{db: db}
}

const paramColumns = `item_id, a, b, se_a, se_b, n_responses, estimation_method,
	        template_id, topic_id, complexity_score, last_updated`

func (s *PostgresParameterStore) Get(itemID string) (*models.IRTParameters, error) {
	var p models.IRTParameters
	err := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM item_parameters WHERE item_id = $1`, paramColumns),
		itemID,
	).Scan(&p.ItemID, &p.A, &p.B, &p.SEa, &p.SEb, &p.NResponses, &p.EstimationMethod,
		&p.TemplateID, &p.TopicID, &p.ComplexityScore, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parameters: %w", err)
	}
	return &p, nil
}

func (s *PostgresParameterStore) Put(p *models.IRTParameters) error {
	_, err := s.db.Exec(
		`INSERT INTO item_parameters
		 (item_id, a, b, se_a, se_b, n_responses, estimation_method,
		  template_id, topic_id, complexity_score, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (item_id) DO UPDATE SET
		   a = EXCLUDED.a, b = EXCLUDED.b,
		   se_a = EXCLUDED.se_a, se_b = EXCLUDED.se_b,
		   n_responses = EXCLUDED.n_responses,
		   estimation_method = EXCLUDED.estimation_method,
		   template_id = EXCLUDED.template_id,
		   topic_id = EXCLUDED.topic_id,
		   complexity_score = EXCLUDED.complexity_score,
		   last_updated = EXCLUDED.last_updated`,
		p.ItemID, p.A, p.B, p.SEa, p.SEb, p.NResponses, p.EstimationMethod,
		p.TemplateID, p.TopicID, p.ComplexityScore, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("put parameters: %w", err)
	}
	return nil
}

func (s *PostgresParameterStore) List() ([]*models.IRTParameters, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM item_parameters ORDER BY last_updated`, paramColumns),
	)
	if err != nil {
		return nil, fmt.Errorf("list parameters: %w", err)
	}
	defer rows.Close()

	var out []*models.IRTParameters
	for rows.Next() {
		var p models.IRTParameters
		if err := rows.Scan(&p.ItemID, &p.A, &p.B, &p.SEa, &p.SEb, &p.NResponses,
			&p.EstimationMethod, &p.TemplateID, &p.TopicID, &p.ComplexityScore,
			&p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan parameters: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type PostgresAnchorStore struct {
	db *sql.DB
}

func NewPostgresAnchorStore(db *sql.DB) *PostgresAnchorStore {
	return &PostgresAnchorStore{db: db}
}

const anchorColumns = `id, item_id, topic_id, course_id, a, b, se_a, se_b,
	        n_responses, estimation_method, is_validated, confidence_score, created_at`

func (s *PostgresAnchorStore) Add(anchor *models.AnchorItem) error {
	err := s.db.QueryRow(
		`INSERT INTO anchor_items
		 (item_id, topic_id, course_id, a, b, se_a, se_b, n_responses,
		  estimation_method, is_validated, confidence_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		anchor.ItemID, anchor.TopicID, anchor.CourseID,
		anchor.Params.A, anchor.Params.B, anchor.Params.SEa, anchor.Params.SEb,
		anchor.Params.NResponses, anchor.Params.EstimationMethod,
		anchor.IsValidated, anchor.ConfidenceScore,
	).Scan(&anchor.ID, &anchor.CreatedAt)
	if err != nil {
		return fmt.Errorf("add anchor: %w", err)
	}
	return nil
}

func (s *PostgresAnchorStore) ForTopic(courseID, topicID string) ([]*models.AnchorItem, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM anchor_items WHERE course_id = $1 AND topic_id = $2
		 ORDER BY created_at`, anchorColumns),
		courseID, topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("anchors for topic: %w", err)
	}
	defer rows.Close()
	return scanAnchors(rows)
}

func (s *PostgresAnchorStore) List() ([]*models.AnchorItem, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM anchor_items ORDER BY created_at`, anchorColumns),
	)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()
	return scanAnchors(rows)
}

func scanAnchors(rows *sql.Rows) ([]*models.AnchorItem, error) {
	var out []*models.AnchorItem
	for rows.Next() {
		var a models.AnchorItem
		if err := rows.Scan(&a.ID, &a.ItemID, &a.TopicID, &a.CourseID,
			&a.Params.A, &a.Params.B, &a.Params.SEa, &a.Params.SEb,
			&a.Params.NResponses, &a.Params.EstimationMethod,
			&a.IsValidated, &a.ConfidenceScore, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		a.Params.ItemID = a.ItemID
		out = append(out, &a)
	}
	return out, rows.Err()
}

type PostgresResponseStore struct {
	db *sql.DB
}

func NewPostgresResponseStore(db *sql.DB) *PostgresResponseStore {
	return &PostgresResponseStore{db: db}
}

func (s *PostgresResponseStore) Append(r *models.ResponseData) error {
	_, err := s.db.Exec(
		`INSERT INTO item_responses (student_id, item_id, correct, response_time_seconds, answered_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.StudentID, r.ItemID, r.Correct, r.ResponseTimeSeconds, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	return nil
}

func (s *PostgresResponseStore) ListByItem(itemID string) ([]models.ResponseData, error) {
	rows, err := s.db.Query(
		`SELECT student_id, item_id, correct, response_time_seconds, answered_at
		 FROM item_responses WHERE item_id = $1 ORDER BY answered_at`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []models.ResponseData
	for rows.Next() {
		var r models.ResponseData
		if err := rows.Scan(&r.StudentID, &r.ItemID, &r.Correct,
			&r.ResponseTimeSeconds, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresResponseStore) ItemIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT item_id FROM item_responses`)
	if err != nil {
		return nil, fmt.Errorf("list response item ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
