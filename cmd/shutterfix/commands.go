package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/On-Jun9/ShutterFix/internal/config"
	"github.com/On-Jun9/ShutterFix/internal/csvio"
	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/internal/pipeline"
)

func addCommands(root *cobra.Command) {
	root.AddCommand(
		scanCmd(),
		listCmd("list", "List every record in the database", false),
		listCmd("issues", "List records that are not ok", true),
		removeCmd(),
		addCmd(),
		mapCmd(),
		fixCmd(),
		updateCmd(),
		writeCmd(),
		infoCmd(),
		profileCmd(),
		configCmd(),
	)
}

func scanCmd() *cobra.Command {
	var opts pipeline.ScanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Create or refresh the picture database and directory index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Scan(cmd.Context(), opts)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Rebuild, "rebuild", false, "re-probe every file instead of only new and unresolved ones")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "allow scanning over an existing database")
	return cmd
}

func listCmd(use, short string, problems bool) *cobra.Command {
	var out, filter string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.List(cmd.OutOrStdout(), pipeline.ListOptions{
					Problems: problems,
					Filter:   splitFilter(filter),
					Out:      out,
				})
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write CSV to this file instead of printing a table")
	cmd.Flags().StringVar(&filter, "filter", "", "comma separated field=value or field!=value terms")
	return cmd
}

func splitFilter(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func removeCmd() *cobra.Command {
	var name, pattern string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove records by exact path or by regular expression",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (name == "") == (pattern == "") {
				return fmt.Errorf("exactly one of --name or --regex is required")
			}
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Remove(cmd.Context(), name, pattern)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "remove every record with this base name")
	cmd.Flags().StringVarP(&pattern, "regex", "r", "", "remove every record whose path matches")
	return cmd
}

func addCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Classify one file into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Add(name, force)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "file to add, absolute or relative to the root")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing record")
	cmd.MarkFlagRequired("name")
	return cmd
}

func mapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map",
		Short: "Borrow capture dates from other photos in the same or a parent directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Map(cmd.Context())
				return err
			})
		},
	}
}

func fixCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Recover capture dates from secondary EXIF fields and filenames",
		RunE: func(cmd *cobra.Command, args []string) error {
			tweak := func(cfg *config.Config) {
				if pattern != "" {
					cfg.FilenamePattern = pattern
				}
			}
			return withPipeline(tweak, func(p *pipeline.Pipeline) error {
				_, err := p.Fix(cmd.Context())
				return err
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "regex", "", "filename pattern with year, month and day groups")
	return cmd
}

func updateCmd() *cobra.Command {
	var input string
	opts := csvio.UpdateOptions{Field: csvio.DefaultField, Value: csvio.DefaultValue}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply manual fixes from a reviewed CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Update(cmd.Context(), input, opts)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV file produced by list --out")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite a datetime already stored in the database")
	cmd.Flags().StringVar(&opts.Field, "field", csvio.DefaultField, "column carrying the review marker")
	cmd.Flags().StringVar(&opts.Value, "value", csvio.DefaultValue, "review marker value")
	cmd.MarkFlagRequired("input")
	return cmd
}

func writeCmd() *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write recovered capture dates back into the files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(nil, func(p *pipeline.Pipeline) error {
				_, err := p.Write(cmd.Context(), commit)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "rewrite files; without it only count what would change")
	return cmd
}

func infoCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the timestamp fields of one file",
		RunE: func(cmd *cobra.Command, args []string) error {
			tweak := func(cfg *config.Config) {
				if cfg.Root == "" {
					cfg.Root = "."
				}
			}
			return withPipeline(tweak, func(p *pipeline.Pipeline) error {
				info, err := p.Info(file)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "file\t%s\n", info.Path)
				fmt.Fprintf(tw, "has_exif\t%v\n", info.HasMetadata)
				for _, field := range metadata.TimestampFields {
					v, ok := info.Fields[field]
					if !ok {
						v = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\n", field, v)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to inspect")
	cmd.MarkFlagRequired("file")
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved configuration profiles",
	}

	var description string
	save := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the current configuration as a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			pm, err := config.NewProfileManager()
			if err != nil {
				return err
			}
			if err := pm.Save(args[0], description, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s\n", args[0])
			return nil
		},
	}
	save.Flags().StringVar(&description, "description", "", "short description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := config.NewProfileManager()
			if err != nil {
				return err
			}
			profiles, err := pm.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tROOT\tCREATED\tDESCRIPTION")
			for _, p := range profiles {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Config.Root, p.CreatedAt.Format("2006-01-02 15:04"), p.Description)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pm, err := config.NewProfileManager()
			if err != nil {
				return err
			}
			return pm.Delete(args[0])
		},
	}

	cmd.AddCommand(save, list, del)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write the resolved configuration to PATH (.yaml or .toml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd)
	return cmd
}
