package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"servicelines-be/internal/bootstrap"
	"servicelines-be/internal/config"
	"servicelines-be/internal/server"
	"servicelines-be/internal/tracer"
	"servicelines-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (postgres session store only)
	var gormDB *gorm.DB
	if cfg.Store.Backend == config.StorePostgres {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			log.Panicf("Unable to migrate session tables: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	defer container.Close()

	// 4. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Otel, container.Logger)
	defer shutdownTracer(context.Background())

	// 5. Start Background Services
	go container.WebSocketHub.Run(ctx)
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Update consumer failed to start: %v", err)
	}
	if container.EventAuditService != nil {
		if err := container.EventAuditService.Start(ctx); err != nil {
			container.Logger.Warn("Main", "Event audit disabled", map[string]interface{}{"error": err.Error()})
		}
	}
	if container.StoreJanitor != nil {
		go container.StoreJanitor.Run(ctx)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	// 7. Run Server until a shutdown signal arrives
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			container.Logger.Error("Main", "Server stopped", map[string]interface{}{"error": err.Error()})
		}
	case <-ctx.Done():
		container.Logger.Info("Main", "Shutting down", nil)
		if err := srv.Shutdown(10 * time.Second); err != nil {
			container.Logger.Warn("Main", "Server shutdown incomplete", map[string]interface{}{"error": err.Error()})
		}
	}

	// Let in-flight pipeline runs persist their results.
	container.WorkflowService.Shutdown()
}
