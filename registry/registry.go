// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry persists experiment queues, their jobs and the
// resulting predictor metrics into a local SQLite database so finished
// runs can be inspected and compared later.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/trainbed/queue"
)

type Database struct {
	db *sql.DB
}

func (database *Database) createQueueTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE queue (" +
			"id TEXT PRIMARY KEY NOT NULL, " +
			"created INTEGER NOT NULL, " +
			"pipeline_id TEXT NOT NULL, " +
			"fold_count INT NOT NULL DEFAULT 0, " +
			"repeat_count INT NOT NULL DEFAULT 1, " +
			"hide_test INT NOT NULL DEFAULT 0, " +
			"total_jobs INT NOT NULL" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table queue: %w", err)
	}
	log.Info().Msg("created table `queue`")
	return nil
}

func (database *Database) createJobTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE job (" +
			"queue_id TEXT NOT NULL, " +
			"ordinal INT NOT NULL, " +
			"combo_id TEXT, " +
			"params TEXT, " +
			"fold_idx INT NOT NULL DEFAULT -1, " +
			"repeat_idx INT NOT NULL DEFAULT 0, " +
			"status TEXT NOT NULL, " +
			"error TEXT, " +
			"started INTEGER, " +
			"finished INTEGER, " +
			"PRIMARY KEY(queue_id, ordinal) " +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table job: %w", err)
	}
	log.Info().Msg("created table `job`")
	return nil
}

func (database *Database) createPredictorTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE predictor (" +
			"queue_id TEXT NOT NULL, " +
			"job_ordinal INT NOT NULL, " +
			"history TEXT, " +
			"metrics TEXT, " +
			"aggregates TEXT, " +
			"PRIMARY KEY(queue_id, job_ordinal) " +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create table predictor: %w", err)
	}
	log.Info().Msg("created table `predictor`")
	return nil
}

func (database *Database) tableExists(tn string) (bool, error) {
	row := database.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", tn)
	var nm string
	err := row.Scan(&nm)
	if err == sql.ErrNoRows {
		return false, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to determine existence of table %s: %w", tn, err)
	}
	return true, nil
}

func (database *Database) Init() error {
	for _, tbl := range []struct {
		name   string
		create func() error
	}{
		{"queue", database.createQueueTable},
		{"job", database.createJobTable},
		{"predictor", database.createPredictorTable},
	} {
		ex, err := database.tableExists(tbl.name)
		if err != nil {
			return fmt.Errorf("failed to init table %s: %w", tbl.name, err)
		}
		if ex {
			log.Info().Str("table", tbl.name).Msg("table already exists")

		} else {
			if err := tbl.create(); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddQueue registers a queue before its jobs start running. The id is
// caller-chosen (typically the pipeline identity plus a timestamp).
func (database *Database) AddQueue(id, pipelineID string, q *queue.Queue) error {
	hideTest := 0
	if q.HideTest {
		hideTest = 1
	}
	_, err := database.db.Exec(
		"INSERT INTO queue (id, created, pipeline_id, fold_count, repeat_count, hide_test, total_jobs) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, time.Now().Unix(), pipelineID, q.FoldCount, q.RepeatCount, hideTest, q.Total())
	if err != nil {
		return fmt.Errorf("failed to add queue: %w", err)
	}
	for _, job := range q.Jobs() {
		if err := database.addJob(id, job); err != nil {
			return err
		}
	}
	return nil
}

func (database *Database) addJob(queueID string, job *queue.Job) error {
	var comboID sql.NullString
	var params sql.NullString
	if job.Combo != nil {
		comboID = sql.NullString{String: job.Combo.Identity(), Valid: true}
		raw, err := json.Marshal(job.Combo.Params)
		if err != nil {
			return fmt.Errorf("failed to add job: %w", err)
		}
		params = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := database.db.Exec(
		"INSERT INTO job (queue_id, ordinal, combo_id, params, fold_idx, repeat_idx, status) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		queueID, job.Ordinal, comboID, params, job.FoldIndex, job.RepeatIndex, job.Status.String())
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}
	return nil
}

func (database *Database) SetJobStarted(queueID string, job *queue.Job) error {
	_, err := database.db.Exec(
		"UPDATE job SET status = ?, started = ? WHERE queue_id = ? AND ordinal = ?",
		job.Status.String(), time.Now().Unix(), queueID, job.Ordinal)
	if err != nil {
		return fmt.Errorf("failed to set job started: %w", err)
	}
	return nil
}

func (database *Database) SetJobFinished(queueID string, job *queue.Job) error {
	var jobErr sql.NullString
	if job.Err != nil {
		jobErr = sql.NullString{String: job.Err.Error(), Valid: true}
	}
	_, err := database.db.Exec(
		"UPDATE job SET status = ?, error = ?, finished = ? WHERE queue_id = ? AND ordinal = ?",
		job.Status.String(), jobErr, time.Now().Unix(), queueID, job.Ordinal)
	if err != nil {
		return fmt.Errorf("failed to set job finished: %w", err)
	}
	if job.Predictor != nil {
		if err := database.addPredictor(queueID, job); err != nil {
			return err
		}
	}
	return nil
}

func (database *Database) addPredictor(queueID string, job *queue.Job) error {
	hist, err := json.Marshal(job.Predictor.History)
	if err != nil {
		return fmt.Errorf("failed to add predictor: %w", err)
	}
	metrics, err := json.Marshal(job.Predictor.Metrics)
	if err != nil {
		return fmt.Errorf("failed to add predictor: %w", err)
	}
	aggr, err := json.Marshal(job.Predictor.Aggregates)
	if err != nil {
		return fmt.Errorf("failed to add predictor: %w", err)
	}
	_, err = database.db.Exec(
		"INSERT OR REPLACE INTO predictor (queue_id, job_ordinal, history, metrics, aggregates) "+
			"VALUES (?, ?, ?, ?, ?)",
		queueID, job.Ordinal, string(hist), string(metrics), string(aggr))
	if err != nil {
		return fmt.Errorf("failed to add predictor: %w", err)
	}
	return nil
}

// JobRecord is the stored form of one job.
type JobRecord struct {
	QueueID     string
	Ordinal     int
	ComboID     string
	Params      map[string]any
	FoldIndex   int
	RepeatIndex int
	Status      string
	Error       string
	Started     int64
	Finished    int64
}

func (database *Database) JobsOfQueue(queueID string) ([]JobRecord, error) {
	rows, err := database.db.Query(
		"SELECT queue_id, ordinal, combo_id, params, fold_idx, repeat_idx, status, error, started, finished "+
			"FROM job WHERE queue_id = ? ORDER BY ordinal",
		queueID,
	)
	if err != nil {
		return []JobRecord{}, fmt.Errorf("failed to fetch jobs of queue: %w", err)
	}
	defer rows.Close()
	ans := make([]JobRecord, 0, 100)
	for rows.Next() {
		var rec JobRecord
		var comboID, params, jobErr sql.NullString
		var started, finished sql.NullInt64
		err := rows.Scan(
			&rec.QueueID,
			&rec.Ordinal,
			&comboID,
			&params,
			&rec.FoldIndex,
			&rec.RepeatIndex,
			&rec.Status,
			&jobErr,
			&started,
			&finished,
		)
		if err != nil {
			return []JobRecord{}, fmt.Errorf("failed to fetch jobs of queue: %w", err)
		}
		if comboID.Valid {
			rec.ComboID = comboID.String
		}
		if params.Valid {
			if err := json.Unmarshal([]byte(params.String), &rec.Params); err != nil {
				return []JobRecord{}, fmt.Errorf("failed to fetch jobs of queue: %w", err)
			}
		}
		if jobErr.Valid {
			rec.Error = jobErr.String
		}
		if started.Valid {
			rec.Started = started.Int64
		}
		if finished.Valid {
			rec.Finished = finished.Int64
		}
		ans = append(ans, rec)
	}
	return ans, nil
}

// PredictorRecord is the stored form of one trained predictor's
// evaluation results. The model itself is not persisted here.
type PredictorRecord struct {
	QueueID    string
	JobOrdinal int
	History    *queue.History
	Metrics    map[string]queue.SplitMetrics
	Aggregates map[string]queue.Aggregate
}

func (database *Database) PredictorOfJob(queueID string, ordinal int) (PredictorRecord, error) {
	row := database.db.QueryRow(
		"SELECT queue_id, job_ordinal, history, metrics, aggregates "+
			"FROM predictor WHERE queue_id = ? AND job_ordinal = ?",
		queueID, ordinal,
	)
	var rec PredictorRecord
	var hist, metrics, aggr sql.NullString
	err := row.Scan(&rec.QueueID, &rec.JobOrdinal, &hist, &metrics, &aggr)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("predictor not found: %w", err)

	} else if err != nil {
		return rec, fmt.Errorf("failed to fetch predictor: %w", err)
	}
	if hist.Valid {
		if err := json.Unmarshal([]byte(hist.String), &rec.History); err != nil {
			return rec, fmt.Errorf("failed to fetch predictor: %w", err)
		}
	}
	if metrics.Valid {
		if err := json.Unmarshal([]byte(metrics.String), &rec.Metrics); err != nil {
			return rec, fmt.Errorf("failed to fetch predictor: %w", err)
		}
	}
	if aggr.Valid {
		if err := json.Unmarshal([]byte(aggr.String), &rec.Aggregates); err != nil {
			return rec, fmt.Errorf("failed to fetch predictor: %w", err)
		}
	}
	return rec, nil
}

// QueueRecord is the stored form of one registered queue.
type QueueRecord struct {
	ID          string
	Created     int64
	PipelineID  string
	FoldCount   int
	RepeatCount int
	HideTest    bool
	TotalJobs   int
}

func (database *Database) ListQueues() ([]QueueRecord, error) {
	rows, err := database.db.Query(
		"SELECT id, created, pipeline_id, fold_count, repeat_count, hide_test, total_jobs " +
			"FROM queue ORDER BY created DESC",
	)
	if err != nil {
		return []QueueRecord{}, fmt.Errorf("failed to list queues: %w", err)
	}
	defer rows.Close()
	ans := make([]QueueRecord, 0, 20)
	for rows.Next() {
		var rec QueueRecord
		var hideTest int
		err := rows.Scan(
			&rec.ID, &rec.Created, &rec.PipelineID,
			&rec.FoldCount, &rec.RepeatCount, &hideTest, &rec.TotalJobs)
		if err != nil {
			return []QueueRecord{}, fmt.Errorf("failed to list queues: %w", err)
		}
		rec.HideTest = hideTest != 0
		ans = append(ans, rec)
	}
	return ans, nil
}

func (database *Database) Close() error {
	if database == nil || database.db == nil {
		return nil
	}
	return database.db.Close()
}

func NewDatabase(path string) (*Database, error) {
	dbConn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	return &Database{db: dbConn}, nil
}
