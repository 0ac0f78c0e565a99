package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/daimatz/runevm/pkg/config"
	"github.com/daimatz/runevm/pkg/errors"
	"github.com/daimatz/runevm/pkg/vm"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to runevm.toml (default: search upward from the working directory)")
		classPath  = flag.String("cp", "", "Class path entries separated by "+string(os.PathListSeparator))
		trace      = flag.Bool("trace", false, "Log every executed instruction")
		maxSteps   = flag.Int("steps", -1, "Maximum executed instructions (0 = unlimited, default from config)")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: runevm [-config file] [-cp path] [-trace] <Class | path/Class.class> [args...]")
		os.Exit(2)
	}

	os.Exit(run(*configFile, *classPath, *trace, *maxSteps, flag.Arg(0), flag.Args()[1:]))
}

func run(configFile, classPath string, trace bool, maxSteps int, target string, args []string) int {
	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if trace {
		cfg.Log.Trace = true
	}
	if maxSteps >= 0 {
		cfg.VM.MaxSteps = maxSteps
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	vm.SetLogger(logger)

	className, dir := splitTarget(target)
	var entries []string
	for _, e := range []string{dir, classPath, cfg.ClassPathList()} {
		if e != "" {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		entries = append(entries, ".")
	}
	list := strings.Join(entries, string(os.PathListSeparator))
	logger.Debug("starting",
		zap.String("class", className),
		zap.String("classpath", list))

	v := vm.NewVM(vm.ParseClassPath(list))
	v.EntryMethod = cfg.VM.EntryMethod
	v.EntryDescriptor = cfg.VM.EntryDescriptor
	v.MaxFrameDepth = cfg.VM.MaxFrameDepth
	v.MaxSteps = cfg.VM.MaxSteps
	v.Trace = cfg.Log.Trace

	if err := v.Execute(className, args...); err != nil {
		var exc *vm.JavaException
		if errors.As(err, &exc) {
			fmt.Fprintf(os.Stderr, "Exception in thread \"main\" %s\n", javaName(exc))
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error executing %s: %v\n", className, err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	return config.FindAndLoad(wd)
}

// splitTarget turns a .class path into its class name and directory, or a
// dotted or slashed class name into its internal form.
func splitTarget(target string) (className, dir string) {
	if strings.HasSuffix(target, ".class") {
		return strings.TrimSuffix(filepath.Base(target), ".class"), filepath.Dir(target)
	}
	return strings.ReplaceAll(target, ".", "/"), ""
}

func javaName(exc *vm.JavaException) string {
	name := strings.ReplaceAll(exc.Object.ClassName, "/", ".")
	if msg := exc.Message(); msg != "" {
		return name + ": " + msg
	}
	return name
}
