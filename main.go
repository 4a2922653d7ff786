package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pagestore/pkg/config"
	"pagestore/pkg/db"
	"pagestore/pkg/logging"
)

const prompt = "pagestore> "

func main() {
	configPath := flag.String("config", "", "YAML config file")
	dataDir := flag.String("data", "", "data directory (overrides config; \"-\" for in-memory)")
	poolSize := flag.Int("pool", 0, "frames per buffer pool instance (overrides config)")
	instances := flag.Int("instances", 0, "buffer pool instances (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	flag.Parse()

	opts, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	switch *dataDir {
	case "":
	case "-":
		opts.DataDir = ""
	default:
		opts.DataDir = *dataDir
	}
	if *poolSize > 0 {
		opts.PoolSize = *poolSize
	}
	if *instances > 0 {
		opts.NumInstances = *instances
	}
	if *logLevel != "" {
		opts.LogLevel = *logLevel
	}

	if err := logging.Init(logging.Config{
		Level:      logging.LogLevel(opts.LogLevel),
		OutputPath: opts.LogFile,
		Format:     opts.LogFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	engine, err := db.NewEngine(opts)
	if err != nil {
		logging.GetLogger().Error("open engine failed", "error", err)
		fmt.Fprintf(os.Stderr, "open engine: %v\n", err)
		os.Exit(1)
	}

	runREPL(engine, os.Stdin, os.Stdout)

	if err := engine.Close(); err != nil {
		logging.GetLogger().Error("close engine failed", "error", err)
		os.Exit(1)
	}
}

// runREPL executes one command per input line until quit, exit or EOF.
func runREPL(engine *db.Engine, in io.Reader, out io.Writer) {
	parser := db.NewCommandParser(engine, out)
	fmt.Fprintln(out, "Welcome to pagestore. Type 'help' for commands.")

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, prompt)
		input, err := reader.ReadString('\n')
		line := strings.TrimSpace(input)

		if line != "" {
			lower := strings.ToLower(line)
			if lower == "quit" || lower == "exit" {
				return
			}

			start := time.Now()
			if execErr := parser.ParseAndExecute(line); execErr != nil {
				fmt.Fprintf(out, "Error: %v\n", execErr)
			} else {
				fmt.Fprintf(out, "(%.4f sec)\n", time.Since(start).Seconds())
			}
		}

		if err != nil {
			fmt.Fprintln(out)
			return
		}
	}
}
