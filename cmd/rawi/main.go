// Command rawi runs the voice agent: a speech-to-speech model session wired
// to a local knowledge index, live weather, and web search.
//
// Usage:
//
//	rawi [-env .env] [-index ./knowledge_index] [-text] [-debug]
//
// The agent refuses to start without a knowledge index; build one with
// rawi-ingest first.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rawi-voice/rawi/internal/dotenv"
	"github.com/rawi-voice/rawi/pkg/config"
	"github.com/rawi-voice/rawi/pkg/knowledge"
	"github.com/rawi-voice/rawi/pkg/realtime"
	"github.com/rawi-voice/rawi/pkg/retrieval"
	"github.com/rawi-voice/rawi/pkg/session"
	"github.com/rawi-voice/rawi/pkg/tools"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/tavily"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/weatherapi"
)

type options struct {
	envFile   string
	indexPath string
	textMode  bool
	debug     bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var opt options
	flag.StringVar(&opt.envFile, "env", ".env", "Path to a dotenv file (missing file is not an error)")
	flag.StringVar(&opt.indexPath, "index", "", "Knowledge index directory (overrides RAWI_INDEX_PATH)")
	flag.BoolVar(&opt.textMode, "text", false, "Text mode: read user turns from stdin instead of the microphone")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := dotenv.Load(opt.envFile); err != nil {
		fmt.Fprintln(os.Stderr, "load env file:", err)
		return 2
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}
	if strings.TrimSpace(opt.indexPath) != "" {
		cfg.IndexPath = opt.indexPath
	}
	if cfg.OpenAIKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (required for the speech model and embeddings)")
		return 2
	}

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := knowledge.Open(ctx, cfg.IndexPath)
	if err != nil {
		if errors.Is(err, knowledge.ErrStoreUnavailable) {
			fmt.Fprintf(os.Stderr, "no knowledge index at %s; build one with rawi-ingest\n", cfg.IndexPath)
			return 2
		}
		fmt.Fprintln(os.Stderr, "open knowledge index:", err)
		return 1
	}
	logger.Info("knowledge index loaded", "path", cfg.IndexPath, "chunks", store.Len(), "dimension", store.Dimension())

	embedder := retrieval.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.EmbeddingsBaseURL, cfg.EmbeddingsModel, nil)
	engine, err := retrieval.NewEngine(embedder, store, retrieval.Options{
		TopK:     cfg.RetrievalTopK,
		MinScore: cfg.RetrievalMinScore,
		Timeout:  cfg.RetrievalTimeout,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "retrieval engine:", err)
		return 1
	}

	if cfg.WeatherKey == "" {
		logger.Warn("WEATHERAPI_KEY not set; weather lookups will fail")
	}
	if cfg.TavilyKey == "" {
		logger.Warn("TAVILY_API_KEY not set; web search will fail")
	}
	weather := weatherapi.NewClient(cfg.WeatherKey, cfg.WeatherBaseURL, nil)
	search := tavily.NewClient(cfg.TavilyKey, cfg.TavilyBaseURL, nil)

	dispatcher := tools.NewDispatcher(engine, weather, search, tools.DispatcherOptions{
		ToolTimeout:           cfg.ToolTimeout,
		WeatherTimeout:        cfg.WeatherTimeout,
		SearchMaxResults:      cfg.SearchMaxResults,
		SearchSnippetMaxChars: cfg.SearchSnippetMaxChars,
		PayloadMaxChars:       cfg.SearchPayloadMaxChars,
		Logger:                logger,
	})

	client := realtime.NewClient(cfg.OpenAIKey, cfg.RealtimeBaseURL, logger)
	modelSession, err := client.Connect(ctx, realtime.SessionConfig{
		Model:             cfg.Model,
		Voice:             cfg.Voice,
		Instructions:      session.DefaultInstructions,
		Tools:             tools.Declarations(),
		Eagerness:         string(cfg.TurnEagerness),
		InterruptResponse: cfg.AllowInterruptions,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect to speech model:", err)
		return 1
	}
	defer modelSession.Close()

	deps := session.Dependencies{
		Model:      modelSession,
		Dispatcher: dispatcher,
		Logger:     logger,
		Config: session.Config{
			AllowInterruptions: cfg.AllowInterruptions,
			Greeting:           session.DefaultGreeting,
		},
	}

	if opt.textMode {
		deps.TranscriptOut = os.Stdout
		go readStdinLoop(ctx, modelSession)
	} else {
		mic, speaker, cleanup, err := initAudio()
		if err != nil {
			fmt.Fprintln(os.Stderr, "audio setup:", err)
			return 1
		}
		defer cleanup()
		deps.AudioOut = speaker
		go streamMicLoop(ctx, mic, modelSession)
	}

	agent, err := session.New(deps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create session:", err)
		return 1
	}

	logger.Info("session starting", "session_id", agent.ID(), "model", cfg.Model, "text_mode", opt.textMode)
	if err := agent.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "session ended:", err)
		return 1
	}
	return 0
}

// streamMicLoop pushes 20ms microphone frames into the model's input buffer.
// Turn completion is the model's decision; frames are sent unconditionally.
func streamMicLoop(ctx context.Context, mic *micReader, modelSession *realtime.Session) {
	frame := make([]byte, sampleRate*2/50) // 20ms of PCM16 mono
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n := mic.Read(frame)
		if n == 0 {
			return
		}
		if err := modelSession.AppendAudio(frame[:n]); err != nil {
			return
		}
	}
}

// readStdinLoop feeds stdin lines to the model as user turns.
func readStdinLoop(ctx context.Context, modelSession *realtime.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := modelSession.SendText(line); err != nil {
			fmt.Fprintln(os.Stderr, "send text:", err)
			return
		}
	}
}
