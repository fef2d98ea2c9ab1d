package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	configs "github.com/opst/pickfab/pkg/configs/backend"
	kcx "github.com/opst/pickfab/pkg/configs/extras"
	"github.com/opst/pickfab/pkg/domain/keychain"
	"github.com/opst/pickfab/pkg/domain/keychain/keyprovider"
	"github.com/opst/pickfab/pkg/domain/pickfab"
	"github.com/opst/pickfab/pkg/echoutil"
	"github.com/opst/pickfab/pkg/utils/filewatch"

	"github.com/opst/pickfab/cmd/pickd/handlers"
)

func main() {

	pconfig := flag.String(
		"config", os.Getenv("PICKFAB_BACKEND_CONFIG"), "path to config file",
	)
	schemaRepo := flag.String("schema-repo", os.Getenv("PICKFAB_SCHEMA"), "schema repository path")
	extraConfigPath := flag.String("extra-apis-config", "", "path to extra api config file")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	conf, err := configs.LoadBackendConfig(*pconfig)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	cluster, err := pickfab.New(
		ctx, conf.Cluster(), pickfab.WithSchemaRepository(*schemaRepo),
	)
	if err != nil {
		log.Fatalf("can not reach database: %s", err)
	}
	{
		ctx_, ccan := cluster.Schema().Database().Context(ctx)
		defer ccan()
		ctx = ctx_
	}

	e := BuildServer(cluster, conf, *loglevel)

	extraApis := kcx.Config{}
	if *extraConfigPath != "" {
		x, err := kcx.Load(*extraConfigPath)
		if err != nil {
			log.Fatalf("can not read configration: %s", err)
		}
		extraApis = x

		wctx, wcancel, err := filewatch.UntilModifyContext(ctx, *extraConfigPath)
		if err != nil {
			log.Fatalf("can not watch configration: %s", err)
		}
		defer wcancel()
		context.AfterFunc(wctx, func() {
			log.Println("extra API config file is updated. quit to restart server.")
			graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.Shutdown(graceful); err != nil {
				log.Printf("error on shutdown by extra API config update: %s", err)
			}
		})
	}
	for _, ex := range extraApis.Endpoints {
		log.Printf("register extra api: %s => %s", ex.Path, ex.ProxyTo)
		if ex.Path == "/api" || strings.HasPrefix(ex.Path, "/api/") {
			log.Fatalf("/api/... is reserved by Pickfab: %s", ex.Path)
		}
		if err := handlers.ExtraAPI(e, ex, echoutil.Proxy); err != nil {
			log.Fatalf("can not set extra api: %s", err)
		}
	}

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		addr := fmt.Sprintf(":%d", conf.Port())
		var err error
		if cert, key := *pcert, *pkey; cert != "" && key != "" {
			err = e.StartTLS(addr, cert, key)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
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

func BuildServer(cluster pickfab.Pickfab, conf *configs.BackendConfig, loglevel string) *echo.Echo {

	e := echo.New()
	e.Pre(middleware.AddTrailingSlash())

	echoutil.SetLevel(e, loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	dbProject := cluster.Project().Database()

	{
		projectName := "projectName"
		e.POST(api("projects"), handlers.RegisterProjectHandler(dbProject))
		e.GET(api("projects"), handlers.FindProjectHandler(dbProject))
		e.GET(api("projects/:projectName"), handlers.GetProjectHandler(dbProject, projectName))
		e.DELETE(api("projects/:projectName"), handlers.DeleteProjectHandler(dbProject, projectName))

		e.POST(api("projects/:projectName/loop"), handlers.StartLoopHandler(
			dbProject, cluster.Controller(), projectName,
		))
		e.PUT(api("projects/:projectName/retry"), handlers.RetryTrainingHandler(
			dbProject, cluster.Controller(), projectName,
		))
	}

	{
		verifyKeyProvider := keyprovider.New(
			conf.Cluster().Keychains().SignKeyForWebhookToken().Name(),
			cluster.Keychain().Database(),
			keyprovider.WithPolicy(pickfab.WebhookKeyPolicy),
		)
		e.POST(api("webhooks/annotation"), handlers.AnnotationWebhookHandler(
			webhookTokenVerifier(verifyKeyProvider),
			cluster.Controller(),
		))
	}

	return e
}

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

func webhookTokenVerifier(kp keyprovider.KeyProvider) handlers.TokenVerifier {
	return func(ctx context.Context, token string) error {
		kc, err := kp.GetKeychain(ctx)
		if err != nil {
			return err
		}
		_, err = keychain.VerifyJWS[*jwt.RegisteredClaims](kc, token)
		return err
	}
}
