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

package cnf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	dfltTimeZone    = "Europe/Prague"
	dfltRegistryDB  = "trainbed.sqlite"
	dfltRepeatCount = 1
)

type Conf struct {
	srcPath string
	Logging logging.LoggingConf `json:"logging"`

	// CacheDir is the root of the badger tensor cache. Empty means
	// in-memory pipelines only.
	CacheDir string `json:"cacheDir"`

	// RegistryDBPath locates the sqlite database recording queues,
	// jobs and predictor metrics.
	RegistryDBPath string `json:"registryDbPath"`

	TimeZone string `json:"timeZone"`

	// RepeatCount is the default number of times each job
	// configuration is repeated within a queue.
	RepeatCount int `json:"repeatCount"`

	// HideTest withholds the test split from queue evaluations.
	HideTest bool `json:"hideTest"`
}

func (conf *Conf) GetSourcePath() string {
	return conf.srcPath
}

func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	var conf Conf
	conf.srcPath = path
	err = json.Unmarshal(rawData, &conf)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return &conf
}

func ValidateAndDefaults(conf *Conf) {
	if conf.RegistryDBPath == "" {
		conf.RegistryDBPath = filepath.Join(filepath.Dir(conf.srcPath), dfltRegistryDB)
		log.Warn().
			Str("path", conf.RegistryDBPath).
			Msg("registryDbPath not specified, using default")
	}
	if conf.RepeatCount == 0 {
		conf.RepeatCount = dfltRepeatCount
	}
	if conf.RepeatCount < 1 {
		log.Fatal().Msgf("invalid repeatCount: %d", conf.RepeatCount)
	}
	if conf.TimeZone == "" {
		conf.TimeZone = dfltTimeZone
		log.Warn().
			Str("timeZone", dfltTimeZone).
			Msg("time zone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		log.Fatal().Err(err).Msg("invalid time zone")
	}
	if conf.CacheDir != "" {
		if err := os.MkdirAll(conf.CacheDir, 0755); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure cache directory")
		}
	}
}
