package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func Connect() (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "aprep_user")
	password := getEnv("DB_PASSWORD", "aprep_password")
	dbname := getEnv("DB_NAME", "aprep")
	sslmode := getEnv("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func Migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS item_parameters (
		item_id           TEXT PRIMARY KEY,
		a                 DOUBLE PRECISION NOT NULL CHECK (a > 0),
		b                 DOUBLE PRECISION NOT NULL CHECK (b >= -4.0 AND b <= 4.0),
		se_a              DOUBLE PRECISION,
		se_b              DOUBLE PRECISION,
		n_responses       INT NOT NULL DEFAULT 0 CHECK (n_responses >= 0),
		estimation_method VARCHAR(30) NOT NULL DEFAULT 'default',
		template_id       TEXT,
		topic_id          TEXT,
		complexity_score  DOUBLE PRECISION,
		last_updated      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_params_difficulty ON item_parameters(b);
	CREATE INDEX IF NOT EXISTS idx_params_template ON item_parameters(template_id) WHERE template_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_params_topic ON item_parameters(topic_id) WHERE topic_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS anchor_items (
		id                BIGSERIAL PRIMARY KEY,
		item_id           TEXT NOT NULL,
		topic_id          TEXT NOT NULL,
		course_id         TEXT NOT NULL,
		a                 DOUBLE PRECISION NOT NULL CHECK (a > 0),
		b                 DOUBLE PRECISION NOT NULL,
		se_a              DOUBLE PRECISION,
		se_b              DOUBLE PRECISION,
		n_responses       INT NOT NULL DEFAULT 0,
		estimation_method VARCHAR(30) NOT NULL DEFAULT 'mle_2pl',
		is_validated      BOOLEAN NOT NULL DEFAULT FALSE,
		confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
		created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_anchors_lookup ON anchor_items(course_id, topic_id);
	CREATE INDEX IF NOT EXISTS idx_anchors_topic ON anchor_items(topic_id);

	CREATE TABLE IF NOT EXISTS item_responses (
		id                    BIGSERIAL PRIMARY KEY,
		student_id            TEXT NOT NULL,
		item_id               TEXT NOT NULL,
		correct               BOOLEAN NOT NULL,
		response_time_seconds REAL,
		answered_at           TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_responses_item ON item_responses(item_id, answered_at);
	CREATE INDEX IF NOT EXISTS idx_responses_student ON item_responses(student_id);
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
