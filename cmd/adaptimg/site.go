package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newTagCmd(root *rootOptions) *cobra.Command {
	var (
		class string
		attrs []string
	)

	cmd := &cobra.Command{
		Use:   "tag [flags] URL",
		Short: "Render a responsive img element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.loadServer()
			if err != nil {
				return err
			}
			extra := map[string]string{}
			for _, a := range attrs {
				k, v, ok := strings.Cut(a, "=")
				if !ok {
					return errors.Errorf("invalid attribute %q, want key=value", a)
				}
				extra[k] = v
			}
			tag, err := srv.Helper.ImgTag(args[0], class, extra)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tag)
			return nil
		},
	}

	cmd.Flags().StringVarP(&class, "class", "c", "", "image class")
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "additional attribute as key=value")
	cmd.MarkFlagRequired("class")
	return cmd
}

func newRewriteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite [FILE]",
		Short: "Make the marked img elements of an HTML document responsive",
		Long: `Read an HTML document from FILE or stdin and write it to stdout with
every img element carrying a data-image-class attribute made responsive.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.loadServer()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			n, err := srv.Helper.RewriteHTML(in, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logrus.WithField("images", n).Info("rewrote document")
			return nil
		},
	}
}

func newWarmCmd(root *rootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "warm [DIR]",
		Short: "Generate all versions of all images below the source directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := root.loadServer()
			if err != nil {
				return err
			}
			dir := srv.Config.SourceDir
			if len(args) == 1 {
				dir = args[0]
			}

			srv.Warmer.Concurrency = concurrency
			n, err := srv.Warmer.WarmDir(cmd.Context(), dir, srv.Router.URLFor)
			fmt.Fprintf(cmd.OutOrStdout(), "%d versions in %s\n", n, srv.Config.CacheDir)
			return err
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "images warmed at once (default number of CPUs)")
	return cmd
}
