package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgFile string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "adaptimg",
		Short:   "Responsive image derivatives",
		Version: adaptimg.VERSION,
		Long: `adaptimg generates and caches resized versions of images.

Example usage:
  adaptimg resize --size 300x200 --mode crop photo.jpg
  adaptimg resize --widths 320,640,1280 --width 500 photo.jpg
  adaptimg info photo.jpg
  adaptimg tag --config adaptimg.toml --class content /photos/a.jpg
  adaptimg warm --config adaptimg.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(cmd.ErrOrStderr())
			if opts.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "server config file (default $CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(
		newResizeCmd(),
		newThumbCmd(),
		newInfoCmd(),
		newTagCmd(opts),
		newRewriteCmd(opts),
		newWarmCmd(opts),
	)
	return cmd
}

// loadServer configures the classes, thumbnails and cache of a server
// config without listening.
func (o *rootOptions) loadServer() (*server.Server, error) {
	conf, err := server.NewConfigFromFile(o.cfgFile, os.Getenv("CONFIG"))
	if err != nil {
		return nil, err
	}
	if o.verbose {
		conf.LogLevel = "debug"
	}
	srv := server.New(conf)
	if err := srv.Configure(); err != nil {
		return nil, errors.Wrap(err, "configuring")
	}
	return srv, nil
}
