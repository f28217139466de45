// Command order boots the order service: HTTP API, RPC server, and the
// discard-unpaid-reservation scheduler, wired from internal/config.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/metalalive/ecommerce-go/internal/auth"
	"github.com/metalalive/ecommerce-go/internal/confidential"
	"github.com/metalalive/ecommerce-go/internal/config"
	orderapi "github.com/metalalive/ecommerce-go/internal/order/api"
	orderrpc "github.com/metalalive/ecommerce-go/internal/order/rpcapi"
	orderscheduler "github.com/metalalive/ecommerce-go/internal/order/scheduler"
	"github.com/metalalive/ecommerce-go/internal/order/usecase"
	"github.com/metalalive/ecommerce-go/internal/rpcport"
	"github.com/metalalive/ecommerce-go/internal/rpcport/broker"
	"github.com/metalalive/ecommerce-go/internal/rpcport/dummy"
	"github.com/metalalive/ecommerce-go/internal/rpcport/mockfile"
	"github.com/metalalive/ecommerce-go/internal/store"
	"github.com/metalalive/ecommerce-go/internal/store/inmem"
	"github.com/metalalive/ecommerce-go/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("[order] config load failed")
	}
	setupLogging(cfg.Logging)

	var secrets confidential.Reader
	if cfg.Confidentiality.UserSpace != nil {
		secrets, err = confidential.LoadUserSpace(cfg.Confidentiality.UserSpace.SysPath)
		if err != nil {
			log.Fatal().Err(err).Msg("[order] confidentiality load failed")
		}
	}

	ds, migrationsDir := openDataStore(cfg, secrets)
	for _, label := range []string{
		"order_line_set", "order_billing", "order_shipping", "job_scheduler",
		"order_cart", "order_product_price", "order_product_policy",
		"order_stock_level", "order_buyer_credential", "order_returns",
	} {
		if err := ds.CreateTable(context.Background(), label); err != nil {
			log.Fatal().Err(err).Str("table", label).Msg("[order] create table failed")
		}
	}
	_ = migrationsDir

	keystore := auth.NewKeystore(cfg.Auth.KeystoreURL)
	if err := keystore.Refresh(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("[order] initial keystore refresh failed")
	}

	svc := usecase.NewService(ds)

	rpcClient, rpcServer := openRPC(cfg, secrets)
	orderrpc.Register(rpcServer, svc)

	srv := orderapi.NewServer(svc, keystore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go keystore.RunRefreshLoop(ctx, time.Duration(cfg.Auth.UpdatePeriodMins)*time.Minute)
	go orderscheduler.RunDiscardUnpaid(ctx, svc, 30*time.Second)
	go func() {
		if err := rpcServer.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("[order] rpc server stopped")
		}
	}()
	_ = rpcClient

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("[order] listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("[order] server stopped")
	}
}

func setupLogging(cfg config.Logging) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	for _, l := range cfg.Loggers {
		if l.Level != "" {
			if lvl, err := zerolog.ParseLevel(l.Level); err == nil {
				zerolog.SetGlobalLevel(lvl)
			}
		}
	}
}

func openDataStore(cfg *config.Config, secrets confidential.Reader) (store.DataStore, string) {
	for _, entry := range cfg.DataStore {
		if entry.DbServer != nil {
			dsn := entry.DbServer.DbName
			if secrets != nil && entry.DbServer.ConfidentialityPath != "" {
				if v, err := secrets.Lookup(entry.DbServer.ConfidentialityPath); err == nil {
					dsn = v
				}
			}
			db, err := sqlstore.Open(dsn)
			if err != nil {
				log.Fatal().Err(err).Msg("[order] sql store open failed")
			}
			return db, "migrations/order"
		}
	}
	return inmem.New(), ""
}

func openRPC(cfg *config.Config, secrets confidential.Reader) (rpcport.Client, rpcport.Server) {
	switch {
	case cfg.RPC.AMQP != nil:
		url := cfg.RPC.AMQP.ConfidentialID
		if secrets != nil {
			if v, err := secrets.Lookup(cfg.RPC.AMQP.ConfidentialID); err == nil {
				url = v
			}
		}
		client, err := broker.DialClient(url, broker.Attributes{
			Vhost:       cfg.RPC.AMQP.Attributes.Vhost,
			MaxChannels: cfg.RPC.AMQP.Attributes.MaxChannels,
			TimeoutSecs: cfg.RPC.AMQP.Attributes.TimeoutSecs,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("[order] amqp dial failed")
		}
		return client, broker.NewServer(client.Conn())
	case cfg.RPC.Mock != nil:
		backend, err := mockfile.Load(cfg.RPC.Mock.TestData)
		if err != nil {
			log.Fatal().Err(err).Msg("[order] mock rpc fixture load failed")
		}
		return backend, dummy.New()
	default:
		d := dummy.New()
		return d, d
	}
}
