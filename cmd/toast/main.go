package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"syscall"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/stepchowfun/toast/internal/config"
	"github.com/stepchowfun/toast/internal/docker"
	"github.com/stepchowfun/toast/internal/dockercli"
	toastlog "github.com/stepchowfun/toast/internal/log"
	"github.com/stepchowfun/toast/internal/runloop"
	"github.com/stepchowfun/toast/internal/toastfile"
	"github.com/stepchowfun/toast/internal/toasterr"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	debuggingFlag bool

	toastfilePath    string
	configFilePath   string
	dockerCLIFlag    string
	dockerRepoFlag   string
	readLocalCache   = true
	writeLocalCache  = true
	readRemoteCache  = false
	writeRemoteCache = false
	forceTasks       []string
	forceAll         bool
	outputDir        string
	shellFlag        bool
	listFlag         bool
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("toast")
	flaggy.SetDescription("Containerized task runner with automatic caching")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/stepchowfun/toast"

	flaggy.String(&toastfilePath, "f", "file", "Path to the toastfile")
	flaggy.String(&configFilePath, "", "config-file", "Path to the configuration file")
	flaggy.String(&dockerCLIFlag, "", "docker-cli", "Name or path of the container CLI binary")
	flaggy.String(&dockerRepoFlag, "", "docker-repo", "Repository under which cache images are tagged")
	flaggy.Bool(&readLocalCache, "", "read-local-cache", "Read from the local cache")
	flaggy.Bool(&writeLocalCache, "", "write-local-cache", "Write to the local cache")
	flaggy.Bool(&readRemoteCache, "", "read-remote-cache", "Read from the remote cache")
	flaggy.Bool(&writeRemoteCache, "", "write-remote-cache", "Write to the remote cache")
	flaggy.StringSlice(&forceTasks, "", "force", "Ignore cache hits for this task")
	flaggy.Bool(&forceAll, "", "force-all", "Ignore cache hits for every task")
	flaggy.String(&outputDir, "", "output-dir", "Directory output paths are written relative to")
	flaggy.Bool(&shellFlag, "", "shell", "Drop into a shell after the schedule finishes")
	flaggy.Bool(&listFlag, "", "list", "List the tasks defined in the toastfile")
	flaggy.Bool(&debuggingFlag, "d", "debug", "Enable verbose logging")
	flaggy.SetVersion(info)

	flaggy.Parse()

	roots := flaggy.DefaultParser.TrailingArguments

	if err := run(roots); err != nil {
		if errMessage, known := knownError(err); known {
			log.Println(errMessage)
			os.Exit(1)
		}

		newErr := errors.Wrap(err, 0)
		log.Fatalf("error: %s\n\n%s", err.Error(), newErr.ErrorStack())
	}
}

func run(roots []string) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.NewAppConfig("toast", version, commit, date, debuggingFlag, projectDir, configFilePath)
	if err != nil {
		return err
	}

	logger := toastlog.NewLogger(appConfig)

	toastfileDir, err := filepath.Abs(filepath.Dir(toastfilePathOrDefault()))
	if err != nil {
		return err
	}

	content, err := os.ReadFile(toastfilePathOrDefault())
	if err != nil {
		return fmt.Errorf("failed to read toastfile: %w", err)
	}

	tf, err := toastfile.Parse(content)
	if err != nil {
		return err
	}
	if err := tf.Validate(); err != nil {
		return err
	}

	if listFlag {
		return listTasks(tf)
	}

	rootTasks, err := tf.Roots(roots)
	if err != nil {
		return err
	}
	schedule, err := tf.Schedule(rootTasks)
	if err != nil {
		return err
	}

	dockerRepo := appConfig.UserConfig.DockerRepo
	if dockerRepoFlag != "" {
		dockerRepo = dockerRepoFlag
	}

	dockerCLI := appConfig.UserConfig.DockerCLI
	if dockerCLIFlag != "" {
		dockerCLI = dockerCLIFlag
	}

	executor, err := docker.NewDockerExecutor(logger, dockerCLI)
	if err != nil {
		return err
	}

	opts := runloop.Options{
		ToastfileDir:     toastfileDir,
		OutputDir:        outputDir,
		DockerRepo:       dockerRepo,
		ReadLocalCache:   readLocalCache,
		WriteLocalCache:  writeLocalCache,
		ReadRemoteCache:  readRemoteCache,
		WriteRemoteCache: writeRemoteCache,
		ForcedTasks:      toSet(forceTasks),
		ForceAll:         forceAll,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rl := runloop.New(executor, logger, opts)
	carrier, lastTask, runErr := rl.Run(ctx, tf, schedule, processEnvMap())

	// The shell drop-in runs after the schedule terminates whether it
	// succeeded or a task failed (spec §4.6); a cancelled run is the one
	// exception, since the process is already tearing down. It carries
	// over the last attempted task's mounts, ports, user, and working
	// directory.
	if shellFlag && !toasterr.HasCode(runErr, toasterr.ErrCancelled) {
		if shellErr := dockercli.DropIn(ctx, shellOptionsFor(dockerCLI, carrier, lastTask)); shellErr != nil {
			logger.WithError(shellErr).Warn("shell drop-in failed")
		}
	}

	return runErr
}

// shellOptionsFor builds the drop-in shell's options from the last
// attempted task, falling back to root/no-mounts/no-ports when the
// schedule never resolved a single task (e.g. it failed at validation
// before any task ran).
func shellOptionsFor(dockerCLI, carrier string, lastTask *toastfile.ResolvedTask) dockercli.ShellOptions {
	opts := dockercli.ShellOptions{
		DockerCLI: dockerCLI,
		ImageRef:  carrier,
		User:      "root",
	}
	if lastTask == nil {
		return opts
	}

	opts.User = lastTask.User
	opts.WorkingDir = lastTask.Location
	for _, m := range lastTask.MountPaths {
		spec := m.Host + ":" + m.Container
		if lastTask.MountReadonly {
			spec += ":ro"
		}
		opts.Mounts = append(opts.Mounts, spec)
	}
	for _, p := range lastTask.Ports {
		opts.Ports = append(opts.Ports, p.Host+":"+p.Container)
	}
	return opts
}

func listTasks(tf *toastfile.Toastfile) error {
	names := make([]string, 0, len(tf.Tasks))
	for name := range tf.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func toastfilePathOrDefault() string {
	if toastfilePath != "" {
		return toastfilePath
	}
	return "toast.yml"
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func processEnvMap() map[string]string {
	env := map[string]string{}
	for _, entry := range os.Environ() {
		for i := 0; i < len(entry); i++ {
			if entry[i] == '=' {
				env[entry[:i]] = entry[i+1:]
				break
			}
		}
	}
	return env
}

// knownError recognizes error conditions the user should see as a plain
// message rather than a stack trace, matching the teacher's
// KnownError/app.Tr pattern.
func knownError(err error) (string, bool) {
	var failed *runloop.TaskFailedError
	if stderrors.As(err, &failed) {
		return failed.Error(), true
	}
	return "", false
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		if len(commit) > 7 {
			version = commit[:7]
		} else {
			version = commit
		}
	}

	if vcsTime, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); ok {
		date = vcsTime.Value
	}
}
