package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chitrakatha/internal/acquisition"
	"chitrakatha/internal/catalog"
	"chitrakatha/internal/channel"
	"chitrakatha/internal/config"
	"chitrakatha/internal/httpapi"
	"chitrakatha/internal/playback"
	"chitrakatha/internal/session"
)

func main() {
	configPath := flag.String("config", "chitrakatha.json", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	surface := playback.NewClockSurface()
	agent := acquisition.NewAgentClient(cfg.AgentURL)
	controller := session.NewController(surface, agent)

	dialCtx, cancelDial := context.WithTimeout(context.Background(), 15*time.Second)
	ch, err := channel.Dial(dialCtx, cfg.ServerURL, controller.Callbacks())
	cancelDial()
	if err != nil {
		log.Fatalf("room channel: dial %s: %v", cfg.ServerURL, err)
	}
	controller.AttachChannel(ch)

	cat := catalog.NewClient(cfg.CinemetaURL, cfg.TorrentioURL)
	server := httpapi.NewServer(controller, cat)

	go func() {
		log.Printf("Control API listening on %s", cfg.ListenAddr)
		if err := server.Start(cfg.ListenAddr); err != nil {
			log.Printf("Control API stopped: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("Shutting down...")
	case <-ch.Done():
		log.Println("Room channel closed, shutting down...")
	}

	controller.Leave()
	_ = ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
	log.Println("Client stopped")
}
