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

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/trainbed/cnf"
)

const (
	actionDemo    = "demo"
	actionQueues  = "queues"
	actionJobs    = "jobs"
	actionVersion = "version"
	actionHelp    = "help"

	exitErrorGeneralFailure = iota
	exitErrorFailedToOpenCache
	exitErrorFailedToOpenRegistry
	exitErrorExperimentFailed
)

var (
	version   string
	buildDate string
	gitCommit string
)

// VersionInfo provides a detailed information about the actual build
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func topLevelUsage() {
	fmt.Fprintf(os.Stderr, "TRAINBED - a leakage-free experiment preparation and training tool\n")
	fmt.Fprintf(os.Stderr, "-----------------------------\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tshow version info\n", actionVersion)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\trun a demo experiment on synthetic data\n", actionDemo)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tlist registered experiment queues\n", actionQueues)
	fmt.Fprintf(os.Stderr, "\t%s\t\t\tlist jobs of a queue\n", actionJobs)
	fmt.Fprintf(os.Stderr, "\nUse `trainbed help ACTION` for information about a specific action\n\n")
}

func setup(confPath string) *cnf.Conf {
	conf := cnf.LoadConfig(confPath)
	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	logging.SetupLogging(conf.Logging)
	cnf.ValidateAndDefaults(conf)
	return conf
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

func runActionVersion(ver VersionInfo) {
	fmt.Fprintln(os.Stderr, "Trainbed version: ", ver)
}

func main() {
	version := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	cmdVersion := flag.NewFlagSet(actionVersion, flag.ExitOnError)
	cmdVersion.Usage = func() {
		cmdVersion.PrintDefaults()
	}

	cmdHelp := flag.NewFlagSet(actionHelp, flag.ExitOnError)
	cmdHelp.Usage = func() {
		cmdHelp.PrintDefaults()
	}

	cmdDemo := flag.NewFlagSet(actionDemo, flag.ExitOnError)
	demoFolds := cmdDemo.Int("folds", 0, "number of cross-validation folds (0 disables folding)")
	demoRepeats := cmdDemo.Int("repeats", 0, "number of repeats per job (overrides config)")
	demoSeed := cmdDemo.Uint64("seed", 42, "random seed for data generation and splitting")
	demoNN := cmdDemo.Bool("nn", false, "train a neural network instead of a random forest")
	cmdDemo.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s [options] config.json\n",
			filepath.Base(os.Args[0]), actionDemo)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmdDemo.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nRun a full demo experiment on synthetic data\n")
	}

	cmdQueues := flag.NewFlagSet(actionQueues, flag.ExitOnError)
	cmdQueues.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s config.json\n",
			filepath.Base(os.Args[0]), actionQueues)
		cmdQueues.PrintDefaults()
	}

	cmdJobs := flag.NewFlagSet(actionJobs, flag.ExitOnError)
	cmdJobs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\t%s %s config.json QUEUE_ID\n",
			filepath.Base(os.Args[0]), actionJobs)
		cmdJobs.PrintDefaults()
	}

	action := actionHelp
	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	switch action {
	case actionHelp:
		var subj string
		if len(os.Args) > 2 {
			cmdHelp.Parse(os.Args[2:])
			subj = cmdHelp.Arg(0)
		}
		if subj == "" {
			topLevelUsage()
			return
		}
		switch subj {
		case actionDemo:
			cmdDemo.Usage()
		case actionQueues:
			cmdQueues.Usage()
		case actionJobs:
			cmdJobs.Usage()
		}
	case actionVersion:
		cmdVersion.Parse(os.Args[2:])
		runActionVersion(version)
	case actionDemo:
		cmdDemo.Parse(os.Args[2:])
		conf := setup(cmdDemo.Arg(0))
		if *demoRepeats > 0 {
			conf.RepeatCount = *demoRepeats
		}
		runDemo(conf, *demoFolds, *demoSeed, *demoNN)
	case actionQueues:
		cmdQueues.Parse(os.Args[2:])
		conf := setup(cmdQueues.Arg(0))
		runListQueues(conf)
	case actionJobs:
		cmdJobs.Parse(os.Args[2:])
		conf := setup(cmdJobs.Arg(0))
		runListJobs(conf, cmdJobs.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "Unknown action, please use 'help' to get more information")
	}
}
