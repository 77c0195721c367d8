package main

import (
	"context"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/config"
	"github.com/wardenhq/service-identity/service/handlers"
	"github.com/wardenhq/service-identity/service/repository"
)

func main() {

	ctx := context.Background()
	serviceName := "service_identity"

	cfg, err := frame.ConfigLoadWithOIDC[config.IdentityConfig](ctx)
	if err != nil {
		util.Log(ctx).WithError(err).Fatal("could not process configs")
		return
	}

	ctx, svc := frame.NewServiceWithContext(ctx, serviceName, frame.WithConfig(&cfg))
	log := svc.Log(ctx)

	serviceOptions := []frame.Option{frame.WithDatastore()}

	srv := handlers.NewAuthServer(ctx, svc, &cfg)

	// Handle database migration if requested
	if handleDatabaseMigration(ctx, svc, srv, cfg, log) {
		return
	}

	defaultServer := frame.WithHTTPHandler(srv.SetupRouterV1(ctx))
	serviceOptions = append(serviceOptions, defaultServer)

	svc.Init(ctx, serviceOptions...)

	log.WithField("server http port", cfg.HTTPPort()).
		Info(" Initiating server operations")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Error("could not run service")
	}
}

// handleDatabaseMigration performs database migration if configured to do so.
// The role and permission catalogue is seeded in the same run.
func handleDatabaseMigration(
	ctx context.Context,
	svc *frame.Service,
	srv *handlers.AuthServer,
	cfg config.IdentityConfig,
	log *util.LogEntry,
) bool {
	serviceOptions := []frame.Option{frame.WithDatastore()}

	if cfg.DoDatabaseMigrate() {
		svc.Init(ctx, serviceOptions...)

		err := repository.Migrate(ctx, svc, cfg.GetDatabaseMigrationPath())
		if err != nil {
			log.WithError(err).Fatal("main -- Could not migrate successfully")
		}

		err = srv.Authz().Seed(ctx)
		if err != nil {
			log.WithError(err).Fatal("main -- Could not seed access catalogue")
		}
		return true
	}
	return false
}
