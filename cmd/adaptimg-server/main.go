package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/server"
	"github.com/sirupsen/logrus"
)

var (
	flags    = flag.NewFlagSet("adaptimg", flag.ExitOnError)
	confFile = flags.String("config", "", "path to config file")
)

func main() {
	var err error
	flags.Parse(os.Args[1:])

	conf, err := server.NewConfigFromFile(*confFile, os.Getenv("CONFIG"))
	if err != nil {
		logrus.Fatal(err)
	}

	srv := server.New(conf)
	if err := srv.Configure(); err != nil {
		logrus.Fatal(err)
	}

	logrus.Infof("** Adaptimg Server v%s at %s **", adaptimg.VERSION, srv.Config.Bind)
	logrus.Infof("** Engine: %s", srv.Engine.Version())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              srv.Config.Bind,
		Handler:           srv.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		srv.Close()

		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := hs.Shutdown(sctx); err != nil {
			logrus.WithError(err).Error("graceful shutdown")
		}
	}()

	if srv.Config.SSL.Cert != "" && srv.Config.SSL.Key != "" {
		err = hs.ListenAndServeTLS(srv.Config.SSL.Cert, srv.Config.SSL.Key)
	} else {
		err = hs.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err.Error())
	}
	<-done
	srv.Shutdown()
}
