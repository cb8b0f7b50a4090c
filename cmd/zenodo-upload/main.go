package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"zenodo-upload/internal/app"
	"zenodo-upload/internal/config"
	"zenodo-upload/internal/zenodo"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// newApp reads the config and creates a ZenodoApp. The caller must defer a.Close().
// operation names the CLI command being run (e.g. "Upload", "History").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.ZenodoApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := app.LoadConfig(defaults)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewZenodoApp(cmd.Context(), cfg, operation, app.Options{
		Parameters: strings.Join(args, " "),
		Verbose:    verbose,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "zenodo-upload",
	Short:        "Publish files as new versions of Zenodo depositions",
	SilenceUsage: true,
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload DEPOSITION_ID FILE VERSION [ACCESS_TOKEN]",
	Short: "Upload a file as a new version of a deposition",
	Long: `Upload FILE as a new version of the Zenodo deposition DEPOSITION_ID.

DEPOSITION_ID is a record id (e.g. 3726935 for https://zenodo.org/record/3726935)
or a concept id; concept ids are resolved to their latest version.

The access token needs the deposit:actions and deposit:write scopes. It is taken
from ACCESS_TOKEN, then $ZENODO_ACCESS_TOKEN, then the config file.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Upload", args[:3])
		if err != nil {
			return err
		}
		defer a.Close()

		ua := app.UploadArgs{
			DepositionID: args[0],
			Path:         args[1],
			Version:      args[2],
		}
		if len(args) == 4 {
			ua.Token = args[3]
		}
		if cmd.Flags().Changed("sandbox") {
			v, _ := cmd.Flags().GetBool("sandbox")
			ua.Sandbox = &v
		}
		if cmd.Flags().Changed("checksum") {
			v, _ := cmd.Flags().GetBool("checksum")
			ua.Checksum = &v
		}

		pub, err := a.Upload(cmd.Context(), ua)
		if err != nil {
			var discarded *zenodo.DraftDiscardedError
			if errors.As(err, &discarded) {
				fmt.Fprintln(cmd.ErrOrStderr(), "File is unchanged since the latest version, nothing was published.")
			}
			return err
		}

		out := cmd.OutOrStdout()
		if pub.DOI == "" {
			fmt.Fprintf(out, "Published, but Zenodo's response could not be read: %s\n", pub.Error)
			return nil
		}
		fmt.Fprintf(out, "Generated new versioned DOI: %s, can take a while to be found\n", pub.DOI)
		fmt.Fprintf(out, "Generated new Zenodo upload: %s\n", pub.HTML)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Host ID: %s\n", hostID)
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		printConfig(cmd.OutOrStdout(), defaults["config_path"], cfg)
		return nil
	},
}

func printConfig(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "Configuration from %s:\n\n", path)
	fmt.Fprintf(w, "Host ID:   %s\n", cfg.HostID)
	fmt.Fprintf(w, "Base Dir:  %s\n", cfg.BaseDir)
	fmt.Fprintf(w, "Log Dir:   %s\n", cfg.LogDir)

	env := zenodo.EnvironmentFor(cfg.Zenodo.Sandbox)
	if custom := cfg.Zenodo.Environment(); custom != nil {
		env = *custom
	}
	fmt.Fprintf(w, "Zenodo:    %s\n", env.APIURL)
	token := "(not set)"
	if cfg.Zenodo.AccessToken != "" {
		token = "(set)"
	}
	fmt.Fprintf(w, "Token:     %s\n", token)
	fmt.Fprintf(w, "Checksum:  %v\n", cfg.Zenodo.ChecksumEnabled())
	fmt.Fprintf(w, "Timeout:   %s\n", cfg.Zenodo.Timeout())
	fmt.Fprintf(w, "Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)

	if vcfg, err := cfg.ArchiveVault(); err == nil && vcfg != nil {
		fmt.Fprintf(w, "Archive:   %s vault %q (encrypt: %v)\n", vcfg.Type, vcfg.Name, cfg.Archive.Encrypt)
	} else {
		fmt.Fprintln(w, "Archive:   disabled")
	}
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View publication history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", args)
		if err != nil {
			return err
		}
		defer a.Close()

		pubs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(pubs) == 0 {
			fmt.Fprintln(out, "No publications recorded.")
			return nil
		}

		for _, p := range pubs {
			duration := ""
			if p.FinishedAt != nil {
				duration = p.FinishedAt.Sub(p.StartedAt).Truncate(time.Millisecond).String()
			}
			target := p.DOI
			if target == "" {
				target = p.Error
			}
			fmt.Fprintf(out, "#%d  %s  %-9s  %d  %s  %s  %-8s  %s  %s\n",
				p.ID,
				p.StartedAt.Local().Format("2006-01-02 15:04:05"),
				p.Status,
				p.Reference,
				p.Version,
				p.FileName,
				humanize.Bytes(uint64(p.FileSize)),
				duration,
				target,
			)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "KeysInit", args)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeysConfigured() {
			return fmt.Errorf("archive keys already exist")
		}

		passphrase, err := promptNewPassphrase(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("creating keys: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Archive keys created. Keep the passphrase safe; encrypted archives cannot be restored without it.")
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Work with archived copies of published files",
}

var archiveGetCmd = &cobra.Command{
	Use:   "get CHECKSUM DEST",
	Short: "Restore the archived copy of a published file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ArchiveGet", args)
		if err != nil {
			return err
		}
		defer a.Close()

		checksum := strings.ToLower(args[0])
		encrypted, err := a.ArchiveEncrypted(checksum)
		if err != nil {
			return err
		}

		var passphrase string
		if encrypted {
			passphrase, err = promptPassphrase(cmd.ErrOrStderr(), "Passphrase: ")
			if err != nil {
				return err
			}
		}

		out, err := a.RestoreArchive(checksum, args[1], passphrase)
		if err != nil {
			return fmt.Errorf("restoring archive: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print all log records to stderr")

	uploadCmd.Flags().Bool("sandbox", false, "Publish to the Zenodo sandbox (https://sandbox.zenodo.org) instead of production")
	uploadCmd.Flags().Bool("checksum", true, "Skip publishing when the file is unchanged since the latest version")
	rootCmd.AddCommand(uploadCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of publications to show")
	rootCmd.AddCommand(historyCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)

	archiveCmd.AddCommand(archiveGetCmd)
	rootCmd.AddCommand(archiveCmd)
}
