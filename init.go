package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/repograph/internal/config"
)

// newInitCmd implements `repograph init`, which writes the default
// configuration file into a repository.
func newInitCmd(a *app) *cobra.Command {
	var dryRun, force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default " + config.FileName,
		Long: `Write the default configuration to <path>/` + config.FileName + `.

path defaults to the current directory. An existing file is left alone
unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			return runInit(a, root, dryRun, force)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the configuration without writing it")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	return cmd
}

func runInit(a *app, root string, dryRun, force bool) error {
	var buf bytes.Buffer
	if err := config.Default().WriteYAML(&buf); err != nil {
		return err
	}

	if dryRun {
		_, err := a.stdout.Write(buf.Bytes())
		return err
	}

	path := filepath.Join(root, config.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(a.stderr, "wrote %s\n", path)
	return nil
}
