package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mediassist/inference"
	"mediassist/pipeline"
)

var ErrReportNotFound = errors.New("report not found")

const schema = `
    CREATE TABLE IF NOT EXISTS reports (
        id TEXT PRIMARY KEY,
        symptoms TEXT NOT NULL,
        diagnosis TEXT NOT NULL,
        predicted TEXT NOT NULL,
        confidence REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER,
        test_points INTEGER,
        features INTEGER,
        classes INTEGER
    );
    `

// Diagnosis is one disease with its percentage in a stored report.
type Diagnosis struct {
	Disease    string  `json:"disease"`
	Percentage float64 `json:"percentage"`
}

type Report struct {
	ID         string      `json:"id"`
	Symptoms   []string    `json:"symptoms"`
	Diagnosis  []Diagnosis `json:"diagnosis"`
	Predicted  string      `json:"predicted"`
	Confidence float64     `json:"confidence"`
	CreatedAt  time.Time   `json:"created_at"`
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
	TestPoints int       `json:"test_points"`
	Features   int       `json:"features"`
	Classes    int       `json:"classes"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveReport(ctx context.Context, report *Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now().UTC()
	}
	if report.Symptoms == nil {
		report.Symptoms = []string{}
	}
	symptoms, err := json.Marshal(report.Symptoms)
	if err != nil {
		return err
	}
	diagnosis, err := json.Marshal(report.Diagnosis)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO reports (id, symptoms, diagnosis, predicted, confidence, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, string(symptoms), string(diagnosis), report.Predicted, report.Confidence, report.CreatedAt)
	return err
}

// RecordPrediction stores a served prediction as a new report.
func (s *Store) RecordPrediction(ctx context.Context, symptoms []string, p *inference.Prediction) error {
	diagnosis := make([]Diagnosis, len(p.Probabilities))
	for i, entry := range p.Probabilities {
		diagnosis[i] = Diagnosis{Disease: entry.Label, Percentage: entry.Value}
	}
	return s.SaveReport(ctx, &Report{
		Symptoms:   symptoms,
		Diagnosis:  diagnosis,
		Predicted:  p.Predicted,
		Confidence: p.Confidence,
	})
}

func (s *Store) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, symptoms, diagnosis, predicted, confidence, created_at
        FROM reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return report, err
}

// ListReports returns the newest reports first. limit <= 0 returns all.
func (s *Store) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, symptoms, diagnosis, predicted, confidence, created_at
        FROM reports
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]*Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*Report, error) {
	var report Report
	var symptoms, diagnosis string
	if err := row.Scan(&report.ID, &symptoms, &diagnosis, &report.Predicted, &report.Confidence, &report.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symptoms), &report.Symptoms); err != nil {
		return nil, fmt.Errorf("decode symptoms of %s: %w", report.ID, err)
	}
	if err := json.Unmarshal([]byte(diagnosis), &report.Diagnosis); err != nil {
		return nil, fmt.Errorf("decode diagnosis of %s: %w", report.ID, err)
	}
	return &report, nil
}

// RecordTraining appends a training run to training_log.
func (s *Store) RecordTraining(ctx context.Context, run pipeline.TrainingRun) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, accuracy, precision, recall, f1, trained_at,
            data_points, test_points, features, classes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelType, run.Accuracy, run.MacroPrecision, run.MacroRecall, run.MacroF1, run.TrainedAt.UTC(),
		run.TrainRows, run.TestRows, run.NumFeatures, run.NumClasses)
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, f1, trained_at,
               data_points, test_points, features, classes
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.F1, &log.TrainedAt,
			&log.DataPoints, &log.TestPoints, &log.Features, &log.Classes); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
