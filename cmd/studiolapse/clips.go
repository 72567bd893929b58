package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studiolapse/studiolapse-agent/internal/medialib"
)

var clipsCmd = &cobra.Command{
	Use:     "clips",
	Aliases: []string{"clip", "c"},
	Short:   "Manage the clips of a project",
}

var clipsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clips, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			id, err := projectOrSelected(ctx, cmd, a)
			if err != nil {
				return err
			}
			p, err := a.projects.Get(ctx, id)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URI\tADDED")
			for _, c := range p.Clips {
				fmt.Fprintf(tw, "%s\t%s\n", c.URI, humanize.Time(c.CreatedAt))
			}
			return tw.Flush()
		})
	},
}

var clipsAddCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Add recorded clips to a project",
	Long: `Add one or more recorded clips to a project. Files are referenced by
file:// URI; they are not copied unless --save-to-album is set, which also
registers each clip in the media library album.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		save, _ := cmd.Flags().GetBool("save-to-album")

		return withApp(func(ctx context.Context, a *app) error {
			id, err := projectOrSelected(ctx, cmd, a)
			if err != nil {
				return err
			}

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("clip %s: %w", arg, err)
				}
				if info.IsDir() {
					return fmt.Errorf("clip %s is a directory", arg)
				}

				if _, err := a.projects.AddClip(ctx, id, "file://"+path); err != nil {
					return fmt.Errorf("clip %s: %w", arg, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", filepath.Base(path), humanize.Bytes(uint64(info.Size())))

				if save {
					granted, err := a.library.RequestPermission(ctx)
					if err != nil {
						return err
					}
					if !granted {
						return fmt.Errorf("save %s to album: %w", arg, medialib.ErrPermissionDenied)
					}
					asset, err := medialib.SaveToAlbum(ctx, a.library, path, a.cfg.AlbumName())
					if err != nil {
						return fmt.Errorf("save %s to album: %w", arg, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "saved %s to album %s\n", asset.Filename, a.cfg.AlbumName())
				}
			}
			return nil
		})
	},
}

var clipsRemoveCmd = &cobra.Command{
	Use:   "remove <uri>",
	Short: "Remove a clip from a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			id, err := projectOrSelected(ctx, cmd, a)
			if err != nil {
				return err
			}
			uri := args[0]
			if filepath.IsAbs(uri) {
				uri = "file://" + uri
			}
			if err := a.projects.DeleteClip(ctx, id, uri); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", uri)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{clipsListCmd, clipsAddCmd, clipsRemoveCmd} {
		c.Flags().String("project", "", "Project ID (defaults to the selected project)")
	}
	clipsAddCmd.Flags().Bool("save-to-album", false, "Also save each clip into the media library album")

	clipsCmd.AddCommand(clipsListCmd)
	clipsCmd.AddCommand(clipsAddCmd)
	clipsCmd.AddCommand(clipsRemoveCmd)
}
