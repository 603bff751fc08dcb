package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"property-market-onchain/handler/middleware"
	propertyHandler "property-market-onchain/handler/property"
	webHandler "property-market-onchain/handler/web"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the property market page and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				rt.cfg.Server.Port = port
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
	return cmd
}

func serve(ctx context.Context) error {
	cfg, log := rt.cfg, rt.logger

	// --- 1. 画面とコントローラー ---
	hub := webHandler.NewHub(log, middleware.OriginChecker(cfg.Server.AllowedOrigins))
	defer hub.Close()
	page := webHandler.NewPage(hub)
	controller := rt.newController(page)

	if err := controller.Initialize(ctx); err != nil {
		log.Warn("Initial wallet connection failed; use Connect wallet to retry", zap.Error(err))
	}

	// --- 2. ウォレット・コントラクトイベントの監視 ---
	go controller.WatchProvider(ctx, cfg.Wallet.WatchInterval)
	if cfg.Node.WSURL != "" {
		go func() {
			if err := controller.WatchEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Contract event listener stopped", zap.Error(err))
			}
		}()
	}

	// --- 3. ルーティングの設定 ---
	mw := middleware.New(log, rt.registry, cfg.Server.AllowedOrigins)
	router := mux.NewRouter()

	router.Handle("/health", mw.Standard().ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})).Methods("GET")

	webHandler.NewWebHandler(controller, page, hub, log).RegisterRoutes(router, func(f http.HandlerFunc) http.Handler {
		return mw.Standard().ThenFunc(f)
	})
	propertyHandler.NewPropertyHandler(controller).RegisterRoutes(router, func(f http.HandlerFunc) http.Handler {
		return mw.API().ThenFunc(f)
	})

	// --- 4. CORSミドルウェアの設定（許可オリジンがなければ同一オリジンのみ） ---
	var handler http.Handler = router
	if len(cfg.Server.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler(router)
	}

	// --- 5. サーバー起動 ---
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Property market starting", zap.String("addr", srv.Addr), zap.String("contract", cfg.Contract.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
