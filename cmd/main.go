package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalcopier/cmd/syncer"
	"signalcopier/src/bootstrap"
	"signalcopier/src/database"
	"signalcopier/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signalcopier CMD"
	app.Usage = "The signalcopier command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		syncerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal ingestion API server`,
	}
	syncerCMD = cli.Command{
		Name:        "syncer",
		Usage:       "run broker reconciliation daemon",
		Action:      syncerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the periodic broker reconciliation loop`,
	}
)

func serverAction(_ *cli.Context) error {
	logrus.Info("Starting server CMD")

	if err := database.InitMainDB(); err != nil {
		return err
	}

	deps, cleanup, err := bootstrap.Build()
	if err != nil {
		return err
	}
	defer cleanup()

	server.StartServer(server.GetConfig().Port, deps)
	return nil
}

func syncerAction(_ *cli.Context) error {
	logrus.Info("Starting syncer CMD")
	logrus.WithField("cmd", "syncer")

	if err := database.InitMainDB(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	return syncer.StartLoop(ctx)
}
