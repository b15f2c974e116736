package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/cube-auth/auth"
	"github.com/jrsteele09/cube-auth/edge"
	"github.com/jrsteele09/cube-auth/gateway"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/jrsteele09/cube-auth/internal/metrics"
	"github.com/jrsteele09/cube-auth/profile"
	"github.com/jrsteele09/cube-auth/provider"
	"github.com/jrsteele09/cube-auth/server"
	"github.com/spf13/cobra"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Run the authentication service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, config.RoleAuth)
			if err != nil {
				return err
			}
			displayAppname(cfg.GetAppName())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			codec, err := newCodec(cfg)
			if err != nil {
				return err
			}
			states, closeStates, err := newStateRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStates() }()

			m := metrics.New()
			idp := provider.New(cfg, provider.WithLogger(logger), provider.WithObserver(m.ProviderCall))
			svc, err := auth.NewService(idp, codec, states, profile.NewClient(cfg.GetProfileServiceURL(), codec),
				auth.WithStateTTL(cfg.GetStateTTL()),
				auth.WithCredentialTTL(cfg.GetCredentialTTL()),
				auth.WithLogger(logger),
				auth.WithOutcomeObserver(m.LoginOutcome),
			)
			if err != nil {
				return err
			}

			guard := edge.NewGuard(codec,
				edge.WithAllowList(server.PublicRoutes...),
				edge.WithLogger(logger),
				edge.WithRejectionHook(m.EdgeRejection),
			)
			srv := server.New(cfg, server.WithMetrics(m), server.WithLogger(logger))
			srv.MountAuth(svc, guard, cfg.GetStateTTL())
			return srv.ListenAndServe(ctx, listenAddr(opts, cfg))
		},
	}
}

func newProfileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Run the profile service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, config.RoleProfile)
			if err != nil {
				return err
			}
			displayAppname(cfg.GetAppName())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			codec, err := newCodec(cfg)
			if err != nil {
				return err
			}

			m := metrics.New()
			guard := edge.NewGuard(codec, edge.WithLogger(logger), edge.WithRejectionHook(m.EdgeRejection))
			srv := server.New(cfg, server.WithMetrics(m), server.WithLogger(logger))
			profile.NewHandlers(profile.NewInMemoryRepo(), guard).Register(srv)
			return srv.ListenAndServe(ctx, listenAddr(opts, cfg))
		},
	}
}

func newGatewayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the API gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, config.RoleGateway)
			if err != nil {
				return err
			}
			displayAppname(cfg.GetAppName())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			codec, err := newCodec(cfg)
			if err != nil {
				return err
			}

			m := metrics.New()
			guard := edge.NewGuard(codec, edge.WithLogger(logger), edge.WithRejectionHook(m.EdgeRejection))
			gw, err := gateway.New(cfg.GetAuthServiceURL(), cfg.GetProfileServiceURL(), guard, m, gateway.WithLogger(logger))
			if err != nil {
				return err
			}
			return server.Serve(ctx, listenAddr(opts, cfg), gw, logger)
		},
	}
}
