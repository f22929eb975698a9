package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zeusync/jackal/internal/config"
	"github.com/zeusync/jackal/internal/core/vfs"
	"github.com/zeusync/jackal/internal/engine"
	"github.com/zeusync/jackal/internal/injector"
)

const configFlag = "config"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "jackal",
		Short:         "Jackal engine core: entity world, virtual file system and resource cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP(configFlag, "c", "jackal.yaml", "engine config file")

	rootCmd.AddCommand(
		NewRunCmd(),
		NewResolveCmd(),
		NewMountsCmd(),
	)
	return rootCmd
}

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine main loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := buildEngine(cmd, false)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return errors.Join(e.Run(ctx), e.Close())
		},
	}
}

func NewResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resolve [logical path]...",
		Short:   "Show which mount serves each logical path",
		Example: "jackal resolve tex/hero.png ~textures/wall.png",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			return resolvePaths(cmd.OutOrStdout(), e.FileSystem(), args)
		},
	}
}

func NewMountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mounts",
		Short: "List the configured mounts in search order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			e, err := buildEngine(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()
			return printMounts(cmd.OutOrStdout(), e.FileSystem().Mounts(), asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

// buildEngine loads the config named by --config. Inspection commands run
// quietly without devtools or file watching.
func buildEngine(cmd *cobra.Command, inspect bool) (*engine.Engine, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if inspect {
		cfg.LogLevel = "silent"
		cfg.Devtools.Enabled = false
		cfg.Resources.HotReload = false
	}
	return injector.InitializeEngine(cfg)
}

func resolvePaths(w io.Writer, fs *vfs.FileSystem, paths []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var errs error
	for _, p := range paths {
		loc, err := fs.Resolve(p)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t%v\n", p, err)
			errs = errors.Join(errs, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", loc.Logical, loc.Mount, loc.Physical)
	}
	return errors.Join(tw.Flush(), errs)
}

func printMounts(w io.Writer, mounts []vfs.MountInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(mounts)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRIORITY\tMOUNT POINT\tKIND\tSOURCE")
	for _, m := range mounts {
		point := m.MountPoint
		if point == "" {
			point = "-"
		} else {
			point = string(vfs.MountPointSymbol) + point
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", m.Name, m.Priority, point, m.Kind, m.Source)
	}
	return tw.Flush()
}
