// Package main provides the entry point for forge-server.
//
// forge-server is a long-running code-generation agent service providing:
// - SSE streaming API for driving one application through its stage graph
// - MCP server exposing the same tool surface for editor integration
// - A beam-search actor per stage, each working inside a disposable
//   container workspace
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/forge/internal/config"
	"github.com/ternarybob/forge/internal/logger"
	"github.com/ternarybob/forge/internal/service"
	"github.com/ternarybob/forge/pkg/appfsm"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/snapshot"
	"github.com/ternarybob/forge/pkg/sseserver"
	"github.com/ternarybob/forge/pkg/toolproc"
)

// version is set via -ldflags at build time.
var version = "dev"

var configPath string

func main() {
	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			// unknown flag, skip
		case command == "":
			command = arg
		default:
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`forge-server - beam-search code generation agent

Usage:
  forge-server [flags] [command] [args]

Commands:
  serve     Start the service (default)
  version   Show version information
  status    Show service status
  stop      Stop the running service
  mcp       Start MCP server (stdio mode)
  help      Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.forge-server/config.toml)

Environment:
  ANTHROPIC_API_KEY   API key for the Anthropic provider
  GEMINI_API_KEY      API key for the Gemini provider
  FORGE_CONFIG        Path to configuration file (alternative to --config)
  FORGE_DATA_DIR      Override data directory
  FORGE_HOST          Override bind host
  FORGE_PORT          Override bind port

Examples:
  forge-server                         Start the service with defaults
  forge-server --config /path/to.toml  Start with custom config
  forge-server mcp                     Start MCP server
  curl localhost:8421/health           Check service health`)
}

func cmdVersion() {
	fmt.Printf("forge-server version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("FORGE_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("FORGE_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	log := logger.SetupLogger(cfg)

	client, err := buildLLMClient(cfg, log)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	registry := toolproc.NewRegistry(func() appfsm.Actors {
		return appfsm.NewActors(appfsm.BuildOptions{
			Client:      client,
			BeamWidth:   cfg.Orchestra.BeamWidth,
			MaxDepth:    cfg.Orchestra.MaxDepth,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Template: appfsm.TemplateConfig{
				BaseImage:  "oven/bun:1",
				ContextDir: cfg.Service.TemplateDir,
			},
		})
	})

	proc := &toolproc.Processor{
		Client:       client,
		Registry:     registry,
		SystemPrompt: toolProcessorSystemPrompt,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		Logger:       log,
	}

	snap, err := snapshot.NewStore(cfg.SnapshotDir(), log)
	if err != nil {
		return fmt.Errorf("create snapshot store: %w", err)
	}

	srv := sseserver.NewServer(cfg, registry, proc, client, snap, log)

	if cfg.MCP.Enabled {
		mcpServer := toolproc.NewMCPServer(registry)
		go func() {
			if err := mcpServer.ServeStdio(); err != nil {
				log.Warn().Err(err).Msg("forge-server: mcp server exited")
			}
		}()
	}

	daemon := service.NewDaemon(cfg)
	if err := daemon.Start(srv.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("forge-server v%s started on %s\n", version, cfg.Address())
	fmt.Printf("POST http://%s/message\n", cfg.Address())
	fmt.Printf("GET  http://%s/health\n", cfg.Address())

	daemon.Wait()
	logger.Stop()
	return nil
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("forge-server: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Config: %s\n", getConfigPath())
		fmt.Printf("Data: %s\n", cfg.Service.DataDir)
	} else {
		fmt.Println("forge-server: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("forge-server is not running")
		return nil
	}

	fmt.Printf("Stopping forge-server (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("forge-server stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.SetupLogger(cfg)

	client, err := buildLLMClient(cfg, log)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	registry := toolproc.NewRegistry(func() appfsm.Actors {
		return appfsm.NewActors(appfsm.BuildOptions{
			Client:      client,
			BeamWidth:   cfg.Orchestra.BeamWidth,
			MaxDepth:    cfg.Orchestra.MaxDepth,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Template: appfsm.TemplateConfig{
				BaseImage:  "oven/bun:1",
				ContextDir: cfg.Service.TemplateDir,
			},
		})
	})

	mcpServer := toolproc.NewMCPServer(registry)
	return mcpServer.ServeStdio()
}

// buildLLMClient constructs the provider named by cfg.LLM.Provider, wraps it
// in a Router carrying the configured per-stage models, and layers on the
// optional disk cache per spec.md §4.C. The Client calls Router.Complete,
// which uses the provider's first advertised model when a request names
// none; no rate limiter is attached.
func buildLLMClient(cfg *config.Config, log arbor.ILogger) (*llmclient.Client, error) {
	var provider llmclient.Provider
	switch cfg.LLM.Provider {
	case "gemini", "genai":
		p, err := llmclient.NewGeminiProvider(context.Background(), cfg.LLM.APIKey)
		if err != nil {
			return nil, fmt.Errorf("create gemini provider: %w", err)
		}
		provider = p
	default:
		provider = llmclient.NewAnthropicProvider(cfg.LLM.APIKey)
	}

	router := llmclient.NewRouter(provider)
	if cfg.LLM.PlanningModel != "" {
		router.SetPlanningModel(cfg.LLM.PlanningModel)
	}
	if cfg.LLM.ExecutionModel != "" {
		router.SetExecutionModel(cfg.LLM.ExecutionModel)
	}
	if cfg.LLM.ValidateModel != "" {
		router.SetValidationModel(cfg.LLM.ValidateModel)
	}

	opts := []llmclient.ClientOption{llmclient.WithLogger(log)}

	if cfg.LLM.CacheMode != "" && cfg.LLM.CacheMode != "off" {
		cache, err := llmclient.NewCache(llmclient.CacheMode(cfg.LLM.CacheMode), cfg.LLM.CacheDir, cfg.LLM.CacheMaxEntries)
		if err != nil {
			return nil, fmt.Errorf("create llm cache: %w", err)
		}
		opts = append(opts, llmclient.WithCache(cache))
	}

	return llmclient.NewClient(router, opts...), nil
}

// toolProcessorSystemPrompt is deliberately minimal: the concrete prompt
// texts driving tool-call behavior are an external collaborator's concern,
// this placeholder carries only the structural instruction the native loop
// depends on.
const toolProcessorSystemPrompt = "You are driving a code generation application through its lifecycle using the available tools. Call start_application to begin, confirm_state or provide_feedback to advance past a review, and get_state / get_available_actions / get_state_output to inspect progress."
