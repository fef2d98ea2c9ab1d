package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/pickfab/cmd/modeld/handlers"
	configs "github.com/opst/pickfab/pkg/configs/modeld"
	"github.com/opst/pickfab/pkg/domain/model/manager"
	"github.com/opst/pickfab/pkg/echoutil"
	"github.com/opst/pickfab/pkg/utils/filewatch"
)

func main() {

	pconfig := flag.String(
		"config", os.Getenv("PICKFAB_MODELD_CONFIG"), "path to config file",
	)
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	defer cancel()

	conf, err := configs.LoadModeldConfig(*pconfig)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	{
		// quit to restart when the config file is updated.
		wctx, wcancel, err := filewatch.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			log.Fatalf("can not watch configration: %s", err)
		}
		defer wcancel()
		ctx = wctx
	}

	mgr, err := manager.New(
		conf.Model().Root(),
		manager.WithTrainerCommand(conf.Model().Trainer()),
		manager.WithPredictorCommand(conf.Model().Predictor()),
		manager.WithStaleAfter(conf.Model().StaleAfter()),
	)
	if err != nil {
		log.Fatalf("can not prepare model root: %s", err)
	}

	e := BuildServer(mgr, *loglevel)

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := e.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		if err := ctx.Err(); err != nil {
			e.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			e.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		e.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()

		if err := e.Shutdown(qctx); err != nil {
			e.Logger.Fatalf("Shutdown with error. %+v", err)
			os.Exit(1)
		}
		os.Exit(exit)
	}
}

func BuildServer(mgr *manager.Manager, loglevel string) *echo.Echo {

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())

	echoutil.SetLevel(e, loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	e.POST("/predict/", handlers.PredictHandler(mgr))
	e.POST("/train/", handlers.TrainHandler(mgr, func(err error) {
		if err != nil {
			e.Logger.Error("training failed:", err)
			return
		}
		e.Logger.Info("training completed")
	}))
	e.GET("/status/", handlers.StatusHandler(mgr))
	e.POST("/setup/", handlers.SetupHandler(mgr))
	e.GET("/health/", handlers.HealthHandler())

	return e
}
