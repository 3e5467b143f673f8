package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/imagex"
	"github.com/spf13/cobra"
)

type resizeOptions struct {
	out     string
	size    string
	mode    string
	upscale bool
	dryRun  bool
	widths  []int
	width   int
	fit     bool
}

func newResizeCmd() *cobra.Command {
	opts := &resizeOptions{}

	cmd := &cobra.Command{
		Use:   "resize [flags] IMAGE...",
		Short: "Create resized versions of images",
		Long: `Create resized versions of images below the output directory.

With --size every image is resized to that size. With --widths the
predefined width nearest to --width is used instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "derivatives", "output directory")
	cmd.Flags().StringVarP(&opts.size, "size", "s", "", `target size, "WxH" or "Wx" for an unrestricted height`)
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "max", "resize mode: max, min or crop")
	cmd.Flags().BoolVar(&opts.upscale, "upscale", false, "allow enlarging images")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "only print the sizes and paths")
	cmd.Flags().IntSliceVar(&opts.widths, "widths", nil, "predefined widths")
	cmd.Flags().IntVar(&opts.width, "width", 0, "requested width, used with --widths")
	cmd.Flags().BoolVar(&opts.fit, "fit", false, "pick the widest predefined width not wider than --width")
	return cmd
}

func (o *resizeOptions) run(cmd *cobra.Command, args []string) error {
	resizer := adaptimg.NewImageResizer(imagex.Engine{}, adaptimg.NewBasedirPathGenerator(o.out))

	var resize func(src *adaptimg.ImageFileInfo) (*adaptimg.ImageFileInfo, error)
	switch {
	case len(o.widths) > 0:
		adaptive, err := adaptimg.NewAdaptiveImageResizerForWidths(resizer, o.widths...)
		if err != nil {
			return err
		}
		resize = func(src *adaptimg.ImageFileInfo) (*adaptimg.ImageFileInfo, error) {
			return adaptive.Resize(cmd.Context(), !o.dryRun, src, o.width, o.fit)
		}

	case o.size != "":
		w, h, err := adaptimg.ParseSize(o.size)
		if err != nil {
			return err
		}
		mode, err := adaptimg.ParseMode(o.mode)
		if err != nil {
			return err
		}
		def, err := adaptimg.NewImageResizeDefinition(w, h, mode, o.upscale)
		if err != nil {
			return err
		}
		resize = func(src *adaptimg.ImageFileInfo) (*adaptimg.ImageFileInfo, error) {
			return resizer.Resize(cmd.Context(), def, src, !o.dryRun, nil)
		}

	default:
		return errors.New("either --size or --widths is required")
	}

	for _, path := range args {
		src, err := adaptimg.InspectFile(path)
		if err != nil {
			return err
		}
		im, err := resize(src)
		if err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s %s\n", path, src.Size(), im.Pathname(), im.Size())
	}
	return nil
}

type thumbOptions struct {
	out  string
	size string
	mode string
}

func newThumbCmd() *cobra.Command {
	opts := &thumbOptions{}

	cmd := &cobra.Command{
		Use:   "thumb [flags] IMAGE...",
		Short: "Create stripped thumbnails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, h, err := adaptimg.ParseSize(opts.size)
			if err != nil {
				return err
			}
			if h.IsUnrestricted() {
				return errors.Errorf("thumbnails need a height, got %s", opts.size)
			}
			mode, err := adaptimg.ParseMode(opts.mode)
			if err != nil {
				return err
			}
			resizer := adaptimg.NewImageResizer(imagex.Engine{}, adaptimg.NewBasedirPathGenerator(opts.out))
			g, err := adaptimg.NewThumbnailGenerator(resizer, w, h.Value(), mode, adaptimg.NewSharpen())
			if err != nil {
				return err
			}

			for _, path := range args {
				src, err := adaptimg.InspectFile(path)
				if err != nil {
					return err
				}
				im, err := g.Thumbnail(cmd.Context(), true, src)
				if err != nil {
					return errors.Wrap(err, path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s %s\n", path, im.Pathname(), im.Size())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "thumbnails", "output directory")
	cmd.Flags().StringVarP(&opts.size, "size", "s", "100x100", "thumbnail size")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "crop", "max (inset) or crop (outbound)")
	return cmd
}

type fileInfo struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	MimeType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation int    `json:"orientation,omitempty"`
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info IMAGE...",
		Short: "Print type, size and orientation of images as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				im, err := adaptimg.InspectFile(path)
				if err != nil {
					return err
				}
				err = enc.Encode(&fileInfo{
					Path:        im.Pathname(),
					Type:        im.Type().String(),
					MimeType:    im.MimeType(),
					Width:       im.Width(),
					Height:      im.Height(),
					Orientation: im.Orientation(),
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
