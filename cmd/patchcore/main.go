package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/amidaware/patchcore/internal/diag"
	"github.com/amidaware/patchcore/internal/handlerenv"
	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/orchestrator"
)

var (
	log     = logrus.New()
	logFile *os.File
)

// Exit codes per spec §6.
const (
	exitOK                = 0
	exitNoUsableRuntime    = 51
	exitEnvironmentError   = 52
	exitConfigurationError = 53
)

func main() {
	install := flag.Bool("install", false, "run the extension's install hook")
	enable := flag.Bool("enable", false, "ingest the current settings file and execute it")
	disable := flag.Bool("disable", false, "run the extension's disable hook")
	uninstall := flag.Bool("uninstall", false, "run the extension's uninstall hook")
	update := flag.Bool("update", false, "run the extension's update hook")
	reset := flag.Bool("reset", false, "run the extension's reset hook")
	runDiag := flag.Bool("diag", false, "print a local diagnostics snapshot and exit")
	logLevel := flag.String("log", "INFO", "log level")
	logTo := flag.String("logto", "file", "where to log: file or stdout")
	flag.Parse()

	env, err := handlerenv.Discover()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to discover handler environment:", err)
		os.Exit(exitEnvironmentError)
	}
	if err := env.EnsureDirs(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to prepare handler directories:", err)
		os.Exit(exitEnvironmentError)
	}

	setupLogging(env, logLevel, logTo)
	defer func() {
		if logFile != nil {
			logFile.Close()
		}
	}()

	if *runDiag {
		fmt.Print(diag.Take(env).String())
		return
	}

	entry := log.WithField("component", "cmd")

	switch {
	case *install, *disable, *uninstall, *update, *reset:
		// These lifecycle hooks have no orchestration work of their own in
		// this core: the host agent only needs a clean zero exit to
		// consider the hook successful (spec §6 "the host agent reads
		// outcome from the status file, not the exit code, unless the
		// orchestrator itself could not start").
		entry.WithField("hook", hookName(*install, *disable, *uninstall, *update, *reset)).Info("lifecycle hook invoked, nothing to do")
		return
	case *enable:
		orch := orchestrator.New(env, entry)
		if err := orch.Execute(context.Background()); err != nil {
			entry.WithError(err).Error("orchestrator execution failed")
			os.Exit(exitCodeFor(err))
		}
		return
	default:
		fmt.Fprintln(os.Stderr, "no operation flag given; one of -install/-enable/-disable/-uninstall/-update/-reset/-diag is required")
		os.Exit(exitConfigurationError)
	}
}

func hookName(install, disable, uninstall, update, reset bool) string {
	switch {
	case install:
		return "install"
	case disable:
		return "disable"
	case uninstall:
		return "uninstall"
	case update:
		return "update"
	case reset:
		return "reset"
	default:
		return ""
	}
}

// exitCodeFor maps an Orchestrator failure to the spec §6 exit code table:
// an unsupported distro counts as "no usable runtime", and anything else the
// core can't further classify counts as an environment error.
func exitCodeFor(err error) int {
	switch {
	case model.AsKind(err, model.KindConfigurationError):
		return exitConfigurationError
	case model.AsKind(err, model.KindUnsupportedDistro):
		return exitNoUsableRuntime
	default:
		return exitEnvironmentError
	}
}

// setupLogging mirrors the teacher's main.setupLogging: logrus level parsed
// from a flag, defaulting to Info on a bad value, output to either stdout
// or a log file under the host-provided log folder.
func setupLogging(env *handlerenv.Environment, level, to *string) {
	ll, err := logrus.ParseLevel(*level)
	if err != nil {
		ll = logrus.InfoLevel
	}
	log.SetLevel(ll)

	if *to == "stdout" {
		log.SetOutput(os.Stdout)
		return
	}

	path := env.LogFolder + "/patchcore.log"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
	if err != nil {
		log.SetOutput(os.Stdout)
		return
	}
	logFile = f
	log.SetOutput(logFile)
}
