package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/sieve/cmd"
	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/i18n"
	"grimm.is/sieve/internal/logging"
)

var printer = i18n.NewCLIPrinter()

func main() {
	global := flag.NewFlagSet(brand.BinaryName, flag.ExitOnError)
	global.Usage = printUsage
	policyFile := global.String("config", "", "Policy file (json, toml, yaml or hcl)")
	global.StringVar(policyFile, "c", "", "Policy file (short)")
	debug := global.Bool("debug", false, "Enable debug logging")
	global.Parse(os.Args[1:])

	if *debug {
		logging.Default().SetLevel(logging.LevelDebug)
	}

	args := global.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}
	command, rest := args[0], args[1:]

	// policyFlags registers -c/--config on a subcommand, defaulting to the
	// global value.
	policyFlags := func(fs *flag.FlagSet) *string {
		f := fs.String("config", *policyFile, "Policy file")
		fs.StringVar(f, "c", *policyFile, "Policy file (short)")
		return f
	}

	switch command {
	case "generate":
		genFlags := flag.NewFlagSet("generate", flag.ExitOnError)
		configFile := policyFlags(genFlags)
		noConfirm := genFlags.Bool("no-confirm", false, "Do not ask for confirmation")
		noCompile := genFlags.Bool("no-compile", false, "Only write the source file")
		genFlags.Parse(rest)

		if err := cmd.RunGenerate(*configFile, cmd.GenerateOptions{NoConfirm: *noConfirm, NoCompile: *noCompile}); err != nil {
			printer.Fprintf(os.Stderr, "Generate failed: %v\n", err)
			os.Exit(1)
		}

	case "load":
		loadFlags := flag.NewFlagSet("load", flag.ExitOnError)
		configFile := policyFlags(loadFlags)
		iface := loadFlags.String("interface", "", "Network interface (overrides the policy)")
		loadFlags.StringVar(iface, "i", "", "Network interface (short)")
		xdpFlags := loadFlags.String("xdp-flags", "generic", "Attach mode: generic, native or offloaded")
		mode := loadFlags.String("mode", "temp", "Local load mode: temp or persistent")
		noConfirm := loadFlags.Bool("no-confirm", false, "Do not ask for confirmation")
		noBuild := loadFlags.Bool("no-build", false, "Load the existing object without regenerating it")
		metricsListen := loadFlags.String("metrics-listen", "", "Serve Prometheus metrics on this address while a temporary program runs")
		loadFlags.Parse(rest)

		err := cmd.RunLoad(*configFile, cmd.LoadOptions{
			Interface:     *iface,
			AttachFlags:   *xdpFlags,
			Mode:          *mode,
			NoConfirm:     *noConfirm,
			NoBuild:       *noBuild,
			MetricsListen: *metricsListen,
		})
		if err != nil {
			printer.Fprintf(os.Stderr, "Load failed: %v\n", err)
			os.Exit(1)
		}

	case "unload":
		unloadFlags := flag.NewFlagSet("unload", flag.ExitOnError)
		configFile := policyFlags(unloadFlags)
		iface := unloadFlags.String("interface", "", "Network interface (overrides the registry)")
		unloadFlags.StringVar(iface, "i", "", "Network interface (short)")
		xdpFlags := unloadFlags.String("xdp-flags", "", "Attach mode used at load time")
		pid := unloadFlags.Int("pid", 0, "Program id to unload")
		noConfirm := unloadFlags.Bool("no-confirm", false, "Do not ask for confirmation")
		unloadFlags.Parse(rest)

		err := cmd.RunUnload(*configFile, cmd.UnloadOptions{
			Interface:   *iface,
			AttachFlags: *xdpFlags,
			ProgramID:   *pid,
			NoConfirm:   *noConfirm,
		})
		if err != nil {
			printer.Fprintf(os.Stderr, "Unload failed: %v\n", err)
			os.Exit(1)
		}

	case "map":
		mapFlags := flag.NewFlagSet("map", flag.ExitOnError)
		configFile := policyFlags(mapFlags)
		asJSON := mapFlags.Bool("json", false, "Print records as JSON")
		mapFlags.Parse(rest)

		if err := cmd.RunMap(*configFile, mapFlags.Arg(0), *asJSON); err != nil {
			printer.Fprintf(os.Stderr, "Map read failed: %v\n", err)
			os.Exit(1)
		}

	case "get-config":
		cfgFlags := flag.NewFlagSet("get-config", flag.ExitOnError)
		format := cfgFlags.String("format", "pretty", "Output format: json, pretty, toml, yaml, hcl or formatted")
		cfgFlags.Parse(rest)

		if err := cmd.RunGetConfig(cfgFlags.Arg(0), *format); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		configFile := policyFlags(checkFlags)
		verbose := checkFlags.Bool("verbose", false, "Print the policy and the generated source")
		checkFlags.BoolVar(verbose, "v", false, "Verbose (short)")
		checkFlags.Parse(rest)

		path := *configFile
		if checkFlags.NArg() > 0 {
			path = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(path, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		diffFlags := flag.NewFlagSet("diff", flag.ExitOnError)
		configFile := policyFlags(diffFlags)
		diffFlags.Parse(rest)

		if err := cmd.RunDiff(*configFile); err != nil {
			if errors.Is(err, cmd.ErrSourceDiffers) {
				os.Exit(1)
			}
			printer.Fprintf(os.Stderr, "Diff failed: %v\n", err)
			os.Exit(2)
		}

	case "history":
		histFlags := flag.NewFlagSet("history", flag.ExitOnError)
		limit := histFlags.Int("n", 20, "Number of events")
		program := histFlags.String("program", "", "Only show this program")
		histFlags.Parse(rest)

		if err := cmd.RunHistory(*program, *limit); err != nil {
			printer.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "analyze", "run-script":
		printer.Fprintf(os.Stderr, "%v\n", cmd.RunUnsupported(command))
		os.Exit(1)

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Commit: %s\n", brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s [-c policy] [--debug] <command> [options]

Build Commands:
  generate    Generate the filter source and compile it
              Options: --no-confirm, --no-compile
  check       Validate a policy file
              Options: --verbose (-v)
  diff        Compare the policy against the last generated source
  get-config  Print a built-in policy (default, example, base)
              Options: --format json|pretty|toml|yaml|hcl|formatted

Deploy Commands:
  load        Build and attach the filter
              Options: --interface (-i) <iface>, --xdp-flags generic|native|offloaded,
                       --mode temp|persistent, --no-confirm, --no-build,
                       --metrics-listen <addr>
  unload      Detach a persistent filter recorded in the registry
              Options: --interface (-i) <iface>, --xdp-flags <mode>, --pid <id>, --no-confirm
  map         Print the records of a map (whitelist, blacklist, graylist)
              Options: --json
  history     Show recent lifecycle operations
              Options: -n <count>, --program <name>

Examples:
  %s get-config example --format hcl > policy.hcl
  %s -c policy.hcl check -v
  %s -c policy.hcl load -i eth0              # Attach until Ctrl-C
  %s -c policy.hcl load --mode persistent    # Pin and record in the registry
  %s -c policy.hcl map blacklist
  %s -c policy.hcl unload

Working directory: %s (override with %s_HOME)
`,
		brand.Name, brand.Description,
		brand.BinaryName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName,
		brand.GetWorkingDir(), brand.ConfigEnvPrefix)
}
