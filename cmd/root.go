// Package cmd wires the filesystem layer into a runnable session: durable
// state store, backend factory, project mirror, and sandbox synchronizer.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuki-matsu783/electron-bolt/logging"
	"github.com/yuki-matsu783/electron-bolt/mirror"
	"github.com/yuki-matsu783/electron-bolt/opfs"
	"github.com/yuki-matsu783/electron-bolt/sandboxfs"
	"github.com/yuki-matsu783/electron-bolt/store"
	"github.com/yuki-matsu783/electron-bolt/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "bolt-fs",
	Short: "Project filesystem layer: durable store, mirror, and sandbox sync",
	Long: `bolt-fs runs a project session: it mirrors the project tree from the
persistent store into memory, applies change events, and continuously
replicates content into the execution sandbox's virtual disk.`,
	RunE: run,
}

func init() {
	f := rootCmd.Flags()
	f.String("root", ".", "project directory backing the persistent store")
	f.String("data-dir", "", "directory for durable state and logs (default ~/.electron-bolt)")
	f.String("backend", "", "storage backend: opfs or memory (default: persisted setting)")
	f.Duration("sync-interval", 3*time.Second, "sandbox replication interval")

	viper.SetEnvPrefix("bolt")
	viper.AutomaticEnv()
	viper.BindPFlags(f) //nolint:errcheck
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".electron-bolt")
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logging.Init(filepath.Join(dataDir, "logs"))
	l := logging.Sub("cli")

	db, err := store.Open(filepath.Join(dataDir, "state.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	backendName := viper.GetString("backend")
	if backendName == "" {
		if backendName, err = db.ActiveBackend(); err != nil {
			return err
		}
	}
	if backendName == "" {
		backendName = opfs.BackendPersistent
	}
	if err := db.SetActiveBackend(backendName); err != nil {
		return err
	}

	root, err := filepath.Abs(viper.GetString("root"))
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	ignore := opfs.DefaultIgnore()
	ignoreFile := filepath.Join(root, ".boltignore")
	if _, statErr := os.Stat(ignoreFile); statErr == nil {
		ignore = opfs.LoadIgnoreFile(ignoreFile)
	}

	backend, err := opfs.FromSetting(backendName, root, opfs.Options{Ignore: ignore})
	if err != nil {
		return err
	}
	defer backend.Cleanup() //nolint:errcheck

	tombs, err := db.Tombstones()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := mirror.New(ctx, backend, tombs)
	if err != nil {
		return err
	}
	defer m.Close()
	l.Info("session started", "root", root, "backend", backendName, "files", m.FileCount())

	// Live updates are a convenience; a watch failure only means no
	// change stream, never a failed session.
	cancelWatch, err := backend.Watch("", m.ProcessEvents)
	if err != nil {
		l.Warn("change watch unavailable", "err", err)
	} else {
		defer cancelWatch()
	}

	changes := m.Subscribe()
	defer m.Unsubscribe(changes)
	go func() {
		for change := range changes {
			l.Info("tree changed", "kind", change.Kind, "path", change.Path)
		}
	}()

	disk := sandboxfs.NewDisk()
	sy := syncer.New(backend, disk, syncer.Options{
		Interval: viper.GetDuration("sync-interval"),
		Ignore:   ignore.Match,
	})
	sy.Run(ctx)
	return nil
}
