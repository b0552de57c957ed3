package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/autoresumefiller/autofill/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the user profile used for factual fields",
}

// -- profile show --

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the profile summary used in prompts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		prof, err := profile.Load(cfg.Profile.Path)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, prof.Summary())
		return nil
	},
}

// -- profile validate --

var profileValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a profile file against the schema",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Profile.Path
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := profile.Load(path); err != nil {
			return eris.Wrapf(err, "profile %s is invalid", path)
		}
		fmt.Fprintf(os.Stdout, "%s: valid\n", path)
		return nil
	},
}

// -- profile backups --

var profileBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List automatic profile backups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		backups, err := profile.ListBackups(cfg.Profile.Path)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Fprintln(os.Stderr, "No backups found.")
			return nil
		}
		formatBackups(os.Stdout, backups)
		return nil
	},
}

// -- profile restore --

var profileRestoreCmd = &cobra.Command{
	Use:   "restore <backup-name>",
	Short: "Restore the profile from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := profile.Restore(cfg.Profile.Path, args[0], cfg.Profile.MaxBackups); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "restored %s from %s\n", cfg.Profile.Path, args[0])
		return nil
	},
}

// -- profile export --

var profileExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the profile, its backups and the redacted config to a zip archive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "autofill_backup_" + time.Now().Format("20060102_150405") + ".zip"
		}
		m, err := exportProfile(output)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "exported %d files (%d bytes) to %s\n", m.FileCount, m.TotalSizeBytes, output)
		for _, missing := range m.Missing {
			fmt.Fprintf(os.Stderr, "not found: %s\n", missing)
		}
		return nil
	},
}

// -- profile import --

var profileImportCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Restore the profile and its backups from an export archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := importProfile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "restored %d files into %s\n", res.FilesRestored, cfg.Profile.Path)
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return nil
	},
}

// exportProfile writes the export archive for the configured profile to
// path. A partial archive is removed on failure.
func exportProfile(path string) (*profile.Manifest, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, eris.Wrapf(err, "create %s", path)
	}

	m, err := profile.Export(f, profile.ExportOptions{
		ProfilePath: cfg.Profile.Path,
		ConfigPath:  cfg.File,
		AppVersion:  version,
	})
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = eris.Wrapf(closeErr, "close %s", path)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return m, nil
}

// importProfile restores the configured profile from the archive at path.
func importProfile(path string) (*profile.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "stat %s", path)
	}
	return profile.Import(f, info.Size(), cfg.Profile.Path, cfg.Profile.MaxBackups)
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileValidateCmd)
	profileCmd.AddCommand(profileBackupsCmd)
	profileCmd.AddCommand(profileRestoreCmd)
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileImportCmd)

	profileExportCmd.Flags().String("output", "", "archive path (default autofill_backup_<timestamp>.zip)")
	rootCmd.AddCommand(profileCmd)
}

// formatBackups writes a tabular list of backups to w.
func formatBackups(out io.Writer, backups []profile.Backup) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCREATED\tSIZE")
	_, _ = fmt.Fprintln(w, "----\t-------\t----")
	for _, b := range backups {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", b.Name, b.CreatedAt.Local().Format("2006-01-02 15:04:05"), b.Size)
	}
	_ = w.Flush()
}
