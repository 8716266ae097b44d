package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmc/amc/internal/api"
	"github.com/agentmc/amc/internal/daemon"
	"github.com/agentmc/amc/internal/monitor"
)

var serveForeground bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server with the background alert monitor.

Running bare 'amc serve' is the same as 'amc serve start'.
By default the server detaches into the background; use --foreground
to keep it attached to the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().BoolVarP(&serveForeground, "foreground", "f", false, "Run in the foreground instead of detaching")
	serveCmd.Flags().IntP("port", "p", 8765, "Port to listen on")
	viper.SetDefault("port", 8765)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file manager for the background server.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "amc-serve.pid"))
}

// serveLogPath returns the log file path for the background server.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "amc-serve.log")
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	if serveForeground {
		return serveForegroundRun()
	}
	return serveDetachRun(pf)
}

// serveDetachRun re-execs amc with --foreground as a detached child.
func serveDetachRun(pf *daemon.PIDFile) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, "serve", "start", "--foreground")
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	ui.Success("Server started (pid %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveForegroundRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	interval := viper.GetDuration("watch.interval")
	if interval <= 0 {
		interval = monitor.DefaultInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	mon := monitor.New(s, interval, nil)
	go func() { _ = mon.Run(ctx) }()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewServer(s).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(ui.Out, "Serving API at http://localhost%s\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		_ = pidFile().Remove()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server not running")
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("stop server (pid %d): %w", pid, err)
	}

	// Give it a moment to exit cleanly before forcing.
	for i := 0; i < 20; i++ {
		if _, alive := pf.IsRunning(); !alive {
			_ = pf.Remove()
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = pf.Signal(sigKILL())
	_ = pf.Remove()
	ui.Warning("Server killed (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		ui.Info("Server running (pid %d) on port %d", pid, viper.GetInt("port"))
		return nil
	}
	ui.Info("Server not running.")
	return nil
}
