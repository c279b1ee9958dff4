package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/audio"
	"github.com/satindergrewal/tonalstudy/internal/capture"
	"github.com/satindergrewal/tonalstudy/internal/config"
	"github.com/satindergrewal/tonalstudy/internal/experiment"
	"github.com/satindergrewal/tonalstudy/internal/playback"
	"github.com/satindergrewal/tonalstudy/internal/sessionlog"
	"github.com/satindergrewal/tonalstudy/internal/stimulus"
	"github.com/satindergrewal/tonalstudy/internal/stream"
	"github.com/satindergrewal/tonalstudy/internal/ui"
)

func main() {
	cfg := config.Load()
	flag.StringVar(&cfg.Participant, "participant", cfg.Participant, "participant ordinal (unix time when empty)")
	flag.StringVar(&cfg.ProtocolPath, "protocol", cfg.ProtocolPath, "YAML protocol file (built-in texts when empty)")
	flag.BoolVar(&cfg.Questionnaire, "questionnaire", cfg.Questionnaire, "collect demographics and ratings in the app")
	flag.BoolVar(&cfg.Capture, "capture", cfg.Capture, "record the participant's camera during each stimulus")
	flag.Parse()

	os.Exit(run(cfg, openEngine))
}

// player is the audio output the session drives.
type player interface {
	playback.Player
	Close()
}

func openEngine(sink func([]int16)) (player, error) {
	engine, err := audio.NewEngine(sink)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// poolSizeMessage is the operator-facing catalog diagnostic, which a protocol
// may localize.
func poolSizeMessage(p config.Protocol) string {
	if p.PoolSize != "" {
		return p.PoolSize
	}
	return stimulus.PoolSizeMessage
}

func run(cfg config.Config, openPlayer func(sink func([]int16)) (player, error)) int {
	protocol, err := config.LoadProtocol(cfg.ProtocolPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid protocol: %v\n", err)
		return 1
	}

	plan, err := stimulus.LoadDir(cfg.StimuliDir)
	if err != nil {
		if errors.Is(err, stimulus.ErrPoolSizeMismatch) {
			fmt.Fprintln(os.Stderr, poolSizeMessage(protocol))
		} else {
			fmt.Fprintf(os.Stderr, "%s (%v)\n", poolSizeMessage(protocol), err)
		}
		return 1
	}

	// Audio comes first so a machine without sound leaves no files behind.
	broadcaster := stream.NewBroadcaster()
	engine, err := openPlayer(broadcaster.Publish)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audio output unavailable: %v\n", err)
		return 1
	}
	defer engine.Close()

	id := sessionlog.ParticipantID(cfg.Participant, time.Now())
	schema := sessionlog.MinimalSchema()
	if cfg.Questionnaire {
		schema = sessionlog.ExtendedSchema()
	}
	if cfg.Capture {
		schema = schema.WithVideo()
	}
	logPath := filepath.Join(cfg.DataDir, sessionlog.FileName(id))
	sessionLog, err := sessionlog.Open(logPath, schema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create session log: %v\n", err)
		return 1
	}

	// The terminal belongs to the participant screen from here on.
	diag, err := os.OpenFile(filepath.Join(cfg.DataDir, id+"_session.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		sessionLog.Close()
		fmt.Fprintf(os.Stderr, "Cannot create diagnostics log: %v\n", err)
		return 1
	}
	defer diag.Close()
	log.SetOutput(diag)
	log.Printf("Session %s starting: %d trials, schema %v, capture=%v", id, len(plan), schema.Columns, cfg.Capture)

	entries := make([]sessionlog.PlanEntry, len(plan))
	for i, item := range plan {
		entries[i] = sessionlog.PlanEntry{Trial: i + 1, Condition: string(item.Condition), File: item.Ref}
	}
	manifestPath := filepath.Join(cfg.DataDir, sessionlog.ManifestName(id))
	manifest, err := sessionlog.NewManifest(id, filepath.Base(logPath), schema, entries, time.Now())
	if err != nil {
		log.Printf("Session manifest disabled: %v", err)
		manifest = nil
	} else if err := manifest.Save(manifestPath); err != nil {
		log.Printf("Saving session manifest: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	board := stream.NewBoard(id, len(plan))

	if cfg.MonitorPort > 0 {
		monitor := stream.NewMonitor(cfg.MonitorPort, broadcaster, board)
		if addr, err := monitor.Start(ctx); err != nil {
			log.Printf("Operator monitor unavailable: %v", err)
		} else {
			log.Printf("Operator monitor on http://%s/", addr)
		}
	}

	loopCfg := playback.Config{
		Tick:        cfg.TickInterval(),
		FPS:         cfg.CaptureFPS,
		ArtifactDir: cfg.DataDir,
		Participant: id,
	}
	if cfg.Capture {
		loopCfg.OpenCamera = func() (playback.Camera, error) {
			cam, err := capture.OpenCamera(cfg.CameraDevice)
			if err != nil {
				return nil, err
			}
			return cam, nil
		}
		loopCfg.OpenArtifact = func(path string, w, h, fps int) (playback.Artifact, error) {
			enc, err := capture.OpenEncoder(path, w, h, fps)
			if err != nil {
				return nil, err
			}
			return enc, nil
		}
	}
	loop := playback.NewLoop(engine, loopCfg)

	surface := ui.New(protocol.Title, protocol.Playing, cancel)
	loop.SetObserver(func(p playback.Progress) {
		surface.Progress(p)
		board.SetProgress(p.Elapsed, p.Capturing)
	})

	session := &experiment.SessionContext{
		ParticipantID: id,
		StimuliDir:    cfg.StimuliDir,
		Plan:          plan,
		Protocol:      protocol,
		Questionnaire: cfg.Questionnaire,
		Capture:       cfg.Capture,
		AtonalCap:     cfg.AtonalCap,
		Log:           sessionLog,
		Loop:          loop,
		Surface:       surface,
		Manifest:      manifest,
		ManifestPath:  manifestPath,
		Reporter:      board,
	}
	res, err := experiment.NewController(session).Run(ctx)
	if err != nil {
		log.Printf("Session %s failed: %v", id, err)
		fmt.Fprintf(os.Stderr, "Session aborted after %d trials: %v\n", res.TrialsLogged, err)
		return 1
	}

	if rows, err := sessionlog.ReadAll(logPath); err == nil {
		log.Printf("Session %s %s: %d rows in %s", id, res.State, len(rows)-1, logPath)
	}
	fmt.Printf("Session %s %s: %d trials logged to %s\n", id, res.State, res.TrialsLogged, logPath)
	return 0
}
