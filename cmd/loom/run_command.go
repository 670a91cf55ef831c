package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/gateway"
	"loom/internal/glossary"
	"loom/internal/ipc"
	"loom/internal/journal"
	"loom/internal/logging"
	"loom/internal/pipeline"
	"loom/internal/proofing"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var phase string
	var skipGlossary bool
	var proofOnly bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the translation pipeline in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := pipeline.ResolveSelection(phase, skipGlossary, proofOnly)
			if err != nil {
				return err
			}
			return runPipelineProcess(cmd.Context(), ctx, selection)
		},
	}

	cmd.Flags().StringVar(&phase, "phase", string(pipeline.SelectAll), "Phase selection: all, glossary, translate, proof, proof-nonenglish, proof-gender, proof-ai")
	cmd.Flags().BoolVar(&skipGlossary, "skip-glossary", false, "Reuse the existing glossary and start at translation")
	cmd.Flags().BoolVar(&proofOnly, "proof-only", false, "Proofread existing output chapters without translating")
	return cmd
}

func runPipelineProcess(cmdCtx context.Context, ctx *commandContext, selection pipeline.Selection) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("loom-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      false,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "loom-*.log", Exclude: []string{logPath}},
	)

	runLock := ipc.NewRunLock(cfg.Paths.LogDir)
	if err := runLock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			logger.Warn("release run lock", logging.Error(err))
		}
	}()

	pidPath := filepath.Join(cfg.Paths.LogDir, "loom.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	defer store.Close()

	client := gateway.NewClient(cfg.GetLLM())
	gw := gateway.New(client, cfg, logger)
	gloss := glossary.NewStore(cfg.Paths.GlossaryPath, gw, cfg.Glossary, logger)
	proofer := proofing.NewEngine(gw, cfg, logger)
	orch := pipeline.New(cfg, gw, gloss, proofer, store, logger)

	ipcServer, err := ipc.NewServer(signalCtx, ctx.socketPath(), orch, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	err = orch.Run(signalCtx, pipeline.Options{Selection: selection, RunID: runID})
	if errors.Is(err, pipeline.ErrCanceled) {
		fmt.Fprintln(os.Stdout, "Run canceled; completed chapters were kept")
		return nil
	}
	return err
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
