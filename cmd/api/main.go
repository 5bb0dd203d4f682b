package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"altitude/internal/server"
)

func gracefulShutdown(fiberServer *server.FiberServer, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("[MAIN] Shutting down gracefully, press Ctrl+C again to force")
	if err := fiberServer.Shutdown(); err != nil {
		log.Printf("[MAIN] Shutdown error: %v", err)
	}

	done <- true
}

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	done := make(chan bool, 1)

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", srv.Port())); err != nil {
			log.Fatalf("[MAIN] Listen error: %v", err)
		}
	}()

	go gracefulShutdown(srv, done)

	<-done
	log.Println("[MAIN] Graceful shutdown complete")
}
