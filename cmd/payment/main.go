// Command payment boots the payment service: HTTP API and the
// refund-request sync scheduler, wired from internal/config the same
// way cmd/order does.
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
	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/auth"
	"github.com/metalalive/ecommerce-go/internal/confidential"
	"github.com/metalalive/ecommerce-go/internal/config"
	"github.com/metalalive/ecommerce-go/internal/currency"
	"github.com/metalalive/ecommerce-go/internal/currency/staticfeed"
	paymentapi "github.com/metalalive/ecommerce-go/internal/payment/api"
	"github.com/metalalive/ecommerce-go/internal/payment/repo"
	paymentrpc "github.com/metalalive/ecommerce-go/internal/payment/rpcapi"
	paymentscheduler "github.com/metalalive/ecommerce-go/internal/payment/scheduler"
	"github.com/metalalive/ecommerce-go/internal/payment/usecase"
	"github.com/metalalive/ecommerce-go/internal/processor"
	"github.com/metalalive/ecommerce-go/internal/processor/mock"
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
		log.Fatal().Err(err).Msg("[payment] config load failed")
	}
	setupLogging(cfg.Logging)

	var secrets confidential.Reader
	if cfg.Confidentiality.UserSpace != nil {
		secrets, err = confidential.LoadUserSpace(cfg.Confidentiality.UserSpace.SysPath)
		if err != nil {
			log.Fatal().Err(err).Msg("[payment] confidentiality load failed")
		}
	}

	ds := openDataStore(cfg, secrets)
	for _, label := range []string{
		"charge_buyer_toplvl", "merchant_profile", "payout_meta", "order_refund",
		"order_replica_cache", "job_scheduler",
	} {
		if err := ds.CreateTable(context.Background(), label); err != nil {
			log.Fatal().Err(err).Str("table", label).Msg("[payment] create table failed")
		}
	}

	keystore := auth.NewKeystore(cfg.Auth.KeystoreURL)
	if err := keystore.Refresh(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("[payment] initial keystore refresh failed")
	}

	paymentRepo := repo.New(ds)
	proc := openProcessor(cfg)
	curPort := openCurrency(cfg)
	rpcClient, rpcServer := openRPC(cfg, secrets)

	svc := usecase.NewService(paymentRepo, proc, rpcClient, curPort)
	paymentrpc.Register(rpcServer, svc)

	srv := paymentapi.NewServer(svc, keystore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, _, err := curPort.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("[payment] initial fx refresh failed")
	}

	go keystore.RunRefreshLoop(ctx, time.Duration(cfg.Auth.UpdatePeriodMins)*time.Minute)
	go paymentscheduler.RunSyncRefundReq(ctx, svc, time.Minute)
	go func() {
		if err := rpcServer.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("[payment] rpc server stopped")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("[payment] listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("[payment] server stopped")
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

func openDataStore(cfg *config.Config, secrets confidential.Reader) store.DataStore {
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
				log.Fatal().Err(err).Msg("[payment] sql store open failed")
			}
			return db
		}
	}
	return inmem.New()
}

// openProcessor selects the configured Charge3party backend. Only the
// mock backend exists today (no networked Stripe client is wired; see
// DESIGN.md), so every third_parties[] entry resolves to it regardless
// of name.
func openProcessor(_ *config.Config) processor.Port {
	return mock.New()
}

func openCurrency(cfg *config.Config) currency.Port {
	for _, tp := range cfg.ThirdParties {
		if tp.DataSrc != "" {
			feed, err := staticfeed.Load(tp.DataSrc)
			if err != nil {
				log.Fatal().Err(err).Msg("[payment] fx feed load failed")
			}
			return currency.NewPort(feed)
		}
	}
	return currency.NewPort(noopFeed{})
}

type noopFeed struct{}

func (noopFeed) FetchRates(_ context.Context, _ string) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
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
			log.Fatal().Err(err).Msg("[payment] amqp dial failed")
		}
		return client, broker.NewServer(client.Conn())
	case cfg.RPC.Mock != nil:
		backend, err := mockfile.Load(cfg.RPC.Mock.TestData)
		if err != nil {
			log.Fatal().Err(err).Msg("[payment] mock rpc fixture load failed")
		}
		return backend, dummy.New()
	default:
		d := dummy.New()
		return d, d
	}
}
