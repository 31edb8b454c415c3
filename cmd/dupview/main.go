package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"dupview/internal/app"
	"dupview/internal/collection"
	"dupview/internal/config"
	"dupview/internal/manifest"
	"dupview/internal/naming"
	"dupview/internal/rawpath"
	"dupview/internal/secrets"
	"dupview/internal/sigtar"
	"dupview/internal/timefmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a DVApp for the --backend flag.
// The caller must defer a.Close().
func newApp(cmd *cobra.Command, operation string, parameters ...string) (*app.DVApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}
	backendName, _ := cmd.Flags().GetString("backend")
	a, err := app.NewDVApp(cmd.Context(), cfg, backendName, operation, strings.Join(parameters, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func chainFlags(cmd *cobra.Command) (chain, index int) {
	chain, _ = cmd.Flags().GetInt("chain")
	index, _ = cmd.Flags().GetInt("index")
	return chain, index
}

var rootCmd = &cobra.Command{
	Use:   "dupview",
	Short: "Inspect duplicity backup archives",
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
			return fmt.Errorf("getting defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		if root, _ := cmd.Flags().GetString("fs-root"); root != "" {
			cfg.Backends = append(cfg.Backends, config.BackendConfig{Type: "filesystem", Name: "default", FSRoot: root})
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Decode:      %s\n", cfg.Decode.Type)
		fmt.Printf("Passphrase:  %s\n", cfg.Passphrase.Type)
		fmt.Printf("Catalog:     %s\n", cfg.Catalog.Type)
		fmt.Printf("Backends:\n")
		for _, b := range cfg.Backends {
			switch b.Type {
			case "filesystem":
				fmt.Printf("  %-12s filesystem  %s\n", b.Name, b.FSRoot)
			case "s3":
				fmt.Printf("  %-12s s3          s3://%s/%s\n", b.Name, b.S3Bucket, b.S3Prefix)
			default:
				fmt.Printf("  %-12s %s\n", b.Name, b.Type)
			}
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chains, orphaned sets and problems at the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		cols, err := a.Scan(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(a.Location(), cols)
		return nil
	},
}

func printStatus(location string, cols *collection.Collections) {
	fmt.Printf("Location: %s\n", location)
	fmt.Printf("Found %d backup chain(s), %d orphaned set(s), %d unrecognized file(s)\n",
		len(cols.Chains), len(cols.Orphans), len(cols.Unrecognized))

	for ci, ch := range cols.Chains {
		fmt.Printf("\nChain %d (%s): %s to %s\n", ci, ch.Prefix,
			ch.Start.Local().Format(time.ANSIC), ch.End.Local().Format(time.ANSIC))
		fmt.Printf(" %-3s %-12s %-25s %s\n", "#", "Type", "Time", "Volumes")
		for i, si := range ch.Sets {
			printSet(fmt.Sprintf("%d", i), &cols.Sets[si])
		}
	}

	if len(cols.Orphans) > 0 {
		fmt.Printf("\nOrphaned sets:\n")
		for _, o := range cols.Orphans {
			printSet("-", &cols.Sets[o.Set])
			fmt.Printf("       reason: %s\n", o.Reason)
		}
	}
	for _, name := range cols.Unrecognized {
		fmt.Printf("unrecognized: %s\n", name)
	}
}

func printSet(label string, set *collection.BackupSet) {
	fmt.Printf(" %-3s %-12s %-25s %d\n", label, set.Type, set.Time().Local().Format(time.ANSIC), len(set.Volumes))
	for _, issue := range set.Issues {
		fmt.Printf("       issue: %s\n", issue)
	}
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the snapshots of a chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, _ := chainFlags(cmd)
		a, err := newApp(cmd, "Snapshots", fmt.Sprintf("chain=%d", chain))
		if err != nil {
			return err
		}
		defer a.Close()

		infos, chain, err := a.Snapshots(cmd.Context(), chain)
		if err != nil {
			return err
		}
		fmt.Printf("Chain %d:\n", chain)
		for _, s := range infos {
			state := ""
			if !s.Complete {
				state = "  [incomplete]"
			}
			fmt.Printf("%3d  %-12s  %s  %s  %d vol%s\n", s.Index, s.Type,
				naming.FormatTime(s.Time), s.Time.Local().Format(time.ANSIC), s.Volumes, state)
		}
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the files of a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, index := chainFlags(cmd)
		a, err := newApp(cmd, "List", fmt.Sprintf("chain=%d index=%d", chain, index))
		if err != nil {
			return err
		}
		defer a.Close()

		entries, at, err := a.List(cmd.Context(), chain, index)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot of %s (%d entries)\n", at.Local().Format(time.ANSIC), len(entries))
		now := time.Now()
		for _, e := range entries {
			fmt.Println(lsLine(e.Path, e.Stat, now))
		}
		return nil
	},
}

func lsLine(path []byte, st *sigtar.Stat, now time.Time) string {
	owner := st.Uname
	if owner == "" {
		owner = fmt.Sprint(st.UID)
	}
	group := st.Gname
	if group == "" {
		group = fmt.Sprint(st.GID)
	}
	size := fmt.Sprint(st.Size.Max)
	if !st.Size.Exact() {
		size = "~" + size
	}
	line := fmt.Sprintf("%s %-8s %-8s %10s %s %s",
		timefmt.Mode(st.Mode, st.Type), owner, group, size, timefmt.Pretty(st.ModTime, now), rawpath.Display(path))
	if st.Type == sigtar.TypeSymlink {
		line += " -> " + rawpath.Display(st.Linkname)
	}
	return line
}

// manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the manifest of a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, index := chainFlags(cmd)
		a, err := newApp(cmd, "Manifest", fmt.Sprintf("chain=%d index=%d", chain, index))
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Manifest(cmd.Context(), chain, index)
		if err != nil {
			return err
		}
		return manifest.Write(os.Stdout, m)
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the history of a path across a chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, _ := chainFlags(cmd)
		a, err := newApp(cmd, "FileHistory", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.FileHistory(cmd.Context(), chain, args[0])
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.Deleted {
				fmt.Printf("%3d  %s  deleted\n", v.Index, naming.FormatTime(v.Time))
				continue
			}
			fmt.Printf("%3d  %s  %s  size:%s  mtime:%s\n", v.Index, naming.FormatTime(v.Time),
				timefmt.Mode(v.Stat.Mode, v.Stat.Type), v.Stat.Size, v.Stat.ModTime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View dupview operation and scan history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		scans, _ := cmd.Flags().GetBool("scans")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		if scans {
			return printScans(a, limit)
		}

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %-10s  %s\n",
				op.ID, op.Operation, op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status, duration, op.Parameters)
		}
		return nil
	},
}

func printScans(a *app.DVApp, limit int) error {
	scans, err := a.ScanHistory(limit)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		fmt.Printf("No scans of %s recorded.\n", a.Location())
		return nil
	}
	for _, s := range scans {
		fmt.Printf("%s  %s  chains:%d  orphans:%d  unrecognized:%d\n",
			s.ID, s.ScannedAt.Local().Format("2006-01-02 15:04:05"), s.Chains, s.Orphans, s.Unrecognized)
	}
	return nil
}

// passphrase command
var passphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Manage the stored archive passphrase",
}

var passphraseSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the archive passphrase in the local age keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		p, err := secrets.NewPromptSource(os.Stdin, os.Stderr, "Archive passphrase: ").Passphrase()
		if err != nil {
			return err
		}
		if err := app.StorePassphrase(cfg, p); err != nil {
			return fmt.Errorf("storing passphrase: %w", err)
		}
		fmt.Printf("Passphrase stored in %s\n", cfg.Passphrase.SecretPath)
		if cfg.Passphrase.Type != "age" {
			fmt.Println(`Set [passphrase] type = "age" in the config to use it.`)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("backend", "b", "", "Backend name from the config (default: first backend)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("fs-root", "", "Directory holding a duplicity archive")

	passphraseCmd.AddCommand(passphraseSetCmd)

	for _, c := range []*cobra.Command{snapshotsCmd, lsCmd, manifestCmd, logCmd} {
		c.Flags().IntP("chain", "c", -1, "Chain number (default: most recent chain)")
	}
	for _, c := range []*cobra.Command{lsCmd, manifestCmd} {
		c.Flags().IntP("index", "i", -1, "Snapshot index within the chain (default: latest)")
	}

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().Bool("scans", false, "List recorded scans of the backend instead of operations")
	rootCmd.AddCommand(passphraseCmd)
}
