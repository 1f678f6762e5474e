package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smizuno/caplog/internal/daemon"
	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/ingest"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/mcp"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/notify"
	"github.com/smizuno/caplog/internal/setup"
	"github.com/smizuno/caplog/internal/status"
	"github.com/smizuno/caplog/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "scan":
		runScan(os.Args[2:])
	case "digest":
		runDigest(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "notify":
		runNotify(os.Args[2:])
	case "mcp":
		runMCP(os.Args[2:])
	case "version":
		fmt.Printf("caplog %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSetup(args []string) {
	var projectDir, projectName, vaultPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--name requires a value")
				os.Exit(1)
			}
			i++
			projectName = args[i]
		case "--vault":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--vault requires a value")
				os.Exit(1)
			}
			i++
			vaultPath = args[i]
		default:
			if strings.HasPrefix(args[i], "--") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: caplog setup <project_dir> --vault <path> [--name <name>]\n", args[i])
				os.Exit(1)
			}
			projectDir = args[i]
		}
	}

	if projectDir == "" || vaultPath == "" {
		fmt.Fprintln(os.Stderr, "usage: caplog setup <project_dir> --vault <path> [--name <name>]")
		os.Exit(1)
	}

	if err := setup.Run(projectDir, projectName, vaultPath); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(projectDir)
	fmt.Printf("Initialized .caplog/ in %s\n", absDir)
}

func runDaemon(_ []string) {
	caplogDir := mustFindCaplogDir()
	cfg := mustLoadConfig(caplogDir)

	d, err := daemon.New(caplogDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runIngest(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: caplog ingest <text|voice> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "text":
		runIngestText(args[1:])
	case "voice":
		runIngestVoice(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown ingest subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: caplog ingest <text|voice> [options]")
		os.Exit(1)
	}
}

func runIngestText(args []string) {
	var text, source string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--source":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--source requires a value")
				os.Exit(1)
			}
			i++
			source = args[i]
		default:
			if strings.HasPrefix(args[i], "--") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: caplog ingest text [<text>] [--source <name>]\n", args[i])
				os.Exit(1)
			}
			if text != "" {
				text += " "
			}
			text += args[i]
		}
	}

	// Without positional text, read from stdin.
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}

	caplogDir := mustFindCaplogDir()
	ing := ingest.New(caplogDir, events.NewBus(0), cliLogger())

	origin := map[string]string{"channel": "cli"}
	if source != "" {
		origin["source"] = source
	}

	id, err := ing.IngestText(text, origin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest text: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(id)
}

func runIngestVoice(args []string) {
	var audioPath, source string
	var durationSec float64
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--source":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--source requires a value")
				os.Exit(1)
			}
			i++
			source = args[i]
		case "--duration":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--duration requires a value")
				os.Exit(1)
			}
			i++
			d, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid --duration value: %s\n", args[i])
				os.Exit(1)
			}
			durationSec = d
		default:
			if strings.HasPrefix(args[i], "--") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: caplog ingest voice <file> [--duration <sec>] [--source <name>]\n", args[i])
				os.Exit(1)
			}
			audioPath = args[i]
		}
	}

	if audioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: caplog ingest voice <file> [--duration <sec>] [--source <name>]")
		os.Exit(1)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audio: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	caplogDir := mustFindCaplogDir()
	ing := ingest.New(caplogDir, events.NewBus(0), cliLogger())

	origin := map[string]string{"channel": "cli", "original_name": filepath.Base(audioPath)}
	if source != "" {
		origin["source"] = source
	}

	id, err := ing.IngestVoice(f, filepath.Ext(audioPath), durationSec, origin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest voice: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(id)
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: caplog status [--json]\n", a)
			os.Exit(1)
		}
	}

	caplogDir := mustFindCaplogDir()
	if err := status.Run(caplogDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runScan(_ []string) {
	sendDaemonCommand("scan")
}

func runDigest(_ []string) {
	sendDaemonCommand("digest")
}

func runStop(_ []string) {
	sendDaemonCommand("shutdown")
}

func runNotify(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: caplog notify <title> <message>")
		os.Exit(1)
	}
	if err := (notify.Desktop{}).Notify(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func runMCP(_ []string) {
	caplogDir := mustFindCaplogDir()
	logger := logging.New(os.Stderr, logging.LevelWarn, "mcp")
	if err := mcp.Run(caplogDir, logger, version); err != nil {
		fmt.Fprintf(os.Stderr, "mcp: %v\n", err)
		os.Exit(1)
	}
}

// sendDaemonCommand sends a UDS command to the running daemon and prints the
// JSON payload of the response.
func sendDaemonCommand(command string) {
	caplogDir := mustFindCaplogDir()
	client := uds.NewClient(filepath.Join(caplogDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}

	if !resp.Success {
		code := ""
		msg := "unknown error"
		if resp.Error != nil {
			code = resp.Error.Code
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", command, code, msg)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(json.RawMessage(resp.Data), "", "  ")
	fmt.Println(string(out))
}

func cliLogger() *logging.Logger {
	return logging.New(os.Stderr, logging.LevelWarn, "cli")
}

// mustFindCaplogDir locates .caplog/ in the current directory or an ancestor.
func mustFindCaplogDir() string {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "getwd: %v\n", err)
		os.Exit(1)
	}
	for {
		candidate := filepath.Join(dir, ".caplog")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			fmt.Fprintln(os.Stderr, "error: .caplog/ directory not found. Run 'caplog setup <dir> --vault <path>' first.")
			os.Exit(1)
		}
		dir = parent
	}
}

func mustLoadConfig(caplogDir string) model.Config {
	cfg, err := model.LoadConfig(filepath.Join(caplogDir, "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `caplog %s - Capture pipeline for Obsidian vaults

Usage: caplog <command> [options]

Pipeline:
  setup <dir> --vault <path> [--name <name>]
                    Initialize .caplog/ directory
  daemon            Run the pipeline daemon
  status [--json]   Show daemon and queue status
  stop              Ask the daemon to shut down

Capture:
  ingest text [<text>] [--source <name>]
                    Capture a text note (reads stdin if no text given)
  ingest voice <file> [--duration <sec>] [--source <name>]
                    Capture a voice recording

Daemon Commands:
  scan              Force a rescan of all stage directories
  digest            Append the daily digest to today's vault note

Utilities:
  mcp               Run the MCP server on stdio
  notify <title> <msg>  Send a desktop notification
  version           Show version
  help              Show this help

`, version)
}
