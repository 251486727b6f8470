package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/tspl-agent/internal/agent"
	"github.com/mattjoyce/tspl-agent/internal/config"
	"github.com/mattjoyce/tspl-agent/internal/doctor"
	"github.com/mattjoyce/tspl-agent/internal/lock"
	"github.com/mattjoyce/tspl-agent/internal/log"
	"github.com/mattjoyce/tspl-agent/internal/service"
	"github.com/mattjoyce/tspl-agent/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		return runServe(nil)
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if strings.HasPrefix(cmd, "-") && cmd != "--version" && !isHelpToken(cmd) {
		// Bare flags go to serve: "tspl-agent --config agent.yaml".
		return runServe(cliArgs)
	}

	switch cmd {
	case "serve", "start":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "status":
		if hasHelpFlag(args) {
			printStatusHelp()
			return 0
		}
		return runStatus(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "service":
		return runService(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: tspl-agent version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("tspl-agent %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// loadConfig reads .env, then the YAML file and environment. Tools that
// report on a broken configuration pass validate=false.
func loadConfig(configPath string, validate bool) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if validate {
		return config.Load(configPath)
	}
	return config.Resolve(configPath, os.LookupEnv)
}

// localURL is the address a local client should use to reach the agent.
func localURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file (or "+config.EnvConfigPath+")")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)
	logger := log.WithComponent("main")
	info := currentVersionInfo()
	logger.Info("tspl-agent starting", "version", info.Version, "commit", info.Commit, "config", cfg.SourceFile)

	a, err := agent.New(cfg, agent.WithVersion(info.Version))
	if err != nil {
		logger.Error("failed to build agent", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()

	logger.Info("tspl-agent running (press Ctrl+C to stop)", "url", localURL(cfg))

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return 1
		}
	}

	logger.Info("tspl-agent stopped")
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	url := fs.String("url", "", "Agent URL (default: derived from config)")
	jsonOut := fs.Bool("json", false, "Output status as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *url == "" {
		*url = localURL(cfg)
	}

	pid, pidErr := lock.ReadPID(agent.LockPath(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	health, err := watch.NewClient(*url, cfg.Auth.Token).Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Agent not reachable at %s: %v\n", *url, err)
		if pidErr == nil {
			fmt.Fprintf(os.Stderr, "Lock file names pid %d; it may be starting or hung.\n", pid)
		}
		return 1
	}

	if *jsonOut {
		out := struct {
			URL    string `json:"url"`
			PID    int    `json:"pid,omitempty"`
			Health any    `json:"health"`
		}{URL: *url, Health: health}
		if pidErr == nil {
			out.PID = pid
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render status JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("URL:        %s\n", *url)
	if pidErr == nil {
		fmt.Printf("PID:        %d\n", pid)
	}
	fmt.Print(watch.RenderStatus(health, watch.NewDefaultTheme()))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	url := fs.String("url", "", "Agent URL (default: derived from config)")
	token := fs.String("token", "", "API token (default: from config or API_TOKEN)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *url == "" {
		*url = localURL(cfg)
	}
	if *token == "" {
		*token = cfg.Auth.Token
	}

	m := watch.New(*url, *token)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	jsonOut := fs.Bool("json", false, "Output report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runService(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		printServiceHelp()
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	fs := flag.NewFlagSet("service "+action, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Log.Level, cfg.Log.Format)

	prg := service.NewProgram(cfg, agent.WithVersion(currentVersionInfo().Version))
	svc, err := service.New(prg, cfg.SourceFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service setup failed: %v\n", err)
		return 1
	}

	if action == "run" {
		if err := svc.Run(); err != nil {
			log.Error("service run failed", "error", err)
			return 1
		}
		return 0
	}

	if err := service.Control(svc, action); err != nil {
		fmt.Fprintf(os.Stderr, "Service %s failed: %v\n", action, err)
		return 1
	}
	fmt.Printf("Service %s: %s\n", service.Name, action)
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if isHelpToken(a) {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`tspl-agent - Local HTTP agent for TSPL label printers

Usage:
  tspl-agent [command] [flags]

Commands:
  serve      Run the agent in the foreground (default; alias: start)
  status     Show health of a running agent
  watch      Live terminal view of jobs and events
  doctor     Check configuration, print commands and spool directory
  service    Install or control the agent as a system service
  version    Show version information
  help       Show this help message

Configuration is read from --config (or $` + config.EnvConfigPath + `), then
.env, then environment variables such as PRINTER_NAME, PORT and API_TOKEN.

Use 'tspl-agent <command> --help' for command flags.
`)
}

func printServeHelp() {
	fmt.Println("Usage: tspl-agent serve [--config PATH]")
	fmt.Println()
	fmt.Println("Runs the HTTP agent until SIGINT or SIGTERM.")
}

func printStatusHelp() {
	fmt.Println("Usage: tspl-agent status [--config PATH] [--url URL] [--json]")
	fmt.Println()
	fmt.Println("Queries GET /health of a running agent.")
}

func printWatchHelp() {
	fmt.Println("Usage: tspl-agent watch [--config PATH] [--url URL] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Real-time view of print jobs and agent events.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select job")
}

func printDoctorHelp() {
	fmt.Println("Usage: tspl-agent doctor [--config PATH] [--json]")
	fmt.Println()
	fmt.Println("Validates configuration and checks that the print commands exist.")
	fmt.Println("Exits 1 when errors are found.")
}

func printServiceHelp() {
	fmt.Println("Usage: tspl-agent service <action> [--config PATH]")
	fmt.Println()
	fmt.Printf("Actions: %s, run\n", strings.Join(service.Actions(), ", "))
}
