package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-refiner/internal/codec"
	"media-refiner/internal/filesystem"
	"media-refiner/internal/logging"
	"media-refiner/internal/refiner"
	"media-refiner/internal/startup"
	"media-refiner/internal/workers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries what commands need from the process so tests can replace it.
type app struct {
	in         io.Reader
	isTerminal func() bool
	open       func(ctx context.Context, withCodec bool) (*refiner.Engine, error)

	jsonOutput bool
}

func defaultApp() *app {
	return &app{
		in:         os.Stdin,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		open:       openEngine,
	}
}

// openEngine reads the same environment as the server and opens the
// catalog. The codec is only started for commands that encode images.
func openEngine(ctx context.Context, withCodec bool) (*refiner.Engine, error) {
	if _, err := startup.LoadEnvFile(); err != nil {
		return nil, err
	}
	cfg, err := startup.ReadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DatabaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	var c codec.Codec
	if withCodec {
		c, err = codec.Select(codec.Kind(cfg.ImageCodec), codec.Options{
			Concurrency: workers.VipsConcurrency(),
			FFmpegPath:  cfg.FFmpegPath,
		})
		if err != nil {
			return nil, err
		}
	}

	engine, err := refiner.Open(ctx, refiner.Config{
		UploadsDir:   cfg.UploadsDir,
		DatabasePath: cfg.DatabasePath,
		Codec:        c,
		Delete: filesystem.DeleteConfig{
			MaxAttempts: cfg.DeleteAttempts,
			Backoff:     cfg.DeleteBackoff,
		},
		GhostscriptPath: cfg.GhostscriptPath,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (DATABASE_DIR is %s)", err, cfg.DatabaseDir)
	}
	return engine, nil
}

func newRootCmd(a *app) *cobra.Command {
	info := startup.GetBuildInfo()
	root := &cobra.Command{
		Use:           "refinerctl",
		Short:         "Operate the media refiner catalog from the shell",
		Version:       fmt.Sprintf("%s (%s, %s)", info.Version, info.Commit, info.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.SetOutput(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newConvertCmd(a),
		newSweepCmd(a),
		newStatusCmd(a),
		newImportCmd(a),
		newExcludeCmd(a),
		newSettingsCmd(a),
		newResetCmd(a),
		newLogCmd(a),
		newExportCmd(a),
		newPDFCmd(a),
	)
	return root
}

// withEngine opens the engine for the duration of fn.
func (a *app) withEngine(cmd *cobra.Command, withCodec bool, fn func(*refiner.Engine) error) (err error) {
	engine, err := a.open(cmd.Context(), withCodec)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if withCodec {
			codec.ShutdownVips()
		}
	}()
	return fn(engine)
}

// print writes v as JSON when --json is set and otherwise runs human.
func (a *app) print(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if a.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

// confirm asks a yes/no question on an interactive terminal. Without a
// terminal it refuses so scripts must pass --yes.
func (a *app) confirm(cmd *cobra.Command, question string) (bool, error) {
	if !a.isTerminal() {
		return false, fmt.Errorf("refusing to %s without a terminal; pass --yes", question)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to %s? [y/N]: ", question)
	response, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid asset id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
