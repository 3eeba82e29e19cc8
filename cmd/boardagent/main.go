package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robochess/server/internal/apiclient"
)

// boardagent registers a physical board controller with the game server and
// keeps its registration alive with periodic heartbeats.
func main() {
	serverURL := getenvDefault("SERVER_URL", "http://localhost:8080")
	boardID := strings.TrimSpace(os.Getenv("BOARD_ID"))
	version := getenvDefault("BOARD_VERSION", "1.0.0")
	interval := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}
	if boardID == "" {
		log.Fatal("BOARD_ID is required")
	}

	client := apiclient.NewClient(serverURL, apiclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	rec, err := client.RegisterController(ctx, boardID, version)
	cancel()
	if err != nil {
		log.Fatalf("register error: %v", err)
	}
	log.Printf("registered board=%s version=%s game=%q", rec.BoardID, rec.BoardVersion, rec.GameID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	currentGame := rec.GameID
	for {
		select {
		case <-sigCh:
			log.Println("shutting down")
			return
		case <-ticker.C:
			hctx, hcancel := context.WithTimeout(context.Background(), 8*time.Second)
			rec, err := client.Heartbeat(hctx, boardID)
			hcancel()
			if err != nil {
				log.Printf("heartbeat error: %v", err)
				continue
			}
			if rec.GameID != currentGame {
				log.Printf("game assignment changed: %q -> %q", currentGame, rec.GameID)
				currentGame = rec.GameID
			}
		}
	}
}

func getenvDefault(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
