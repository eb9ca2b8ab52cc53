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

package registry

import (
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/trainbed/queue"
)

// Recorder adapts a registry database to the runner's job observer
// interface. Persistence failures are logged and swallowed so a broken
// registry never aborts a training run.
type Recorder struct {
	DB      *Database
	QueueID string
}

func (r *Recorder) JobStarted(job *queue.Job) {
	if err := r.DB.SetJobStarted(r.QueueID, job); err != nil {
		log.Error().Err(err).Int("job", job.Ordinal).Msg("failed to record job start")
	}
}

func (r *Recorder) JobFinished(job *queue.Job) {
	if err := r.DB.SetJobFinished(r.QueueID, job); err != nil {
		log.Error().Err(err).Int("job", job.Ordinal).Msg("failed to record job finish")
	}
}
