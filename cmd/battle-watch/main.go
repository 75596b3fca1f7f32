// Command battle-watch opens an engine battle on a running server and prints
// every ply until the game ends.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	corebattle "github.com/park285/battle-chess/internal/battle"
	"github.com/park285/battle-chess/internal/battleclient"
	"github.com/park285/battle-chess/internal/httpapi"
)

func main() {
	baseURL := getenvDefault("BATTLE_BASE_URL", "http://localhost:8080")
	wsURL := getenvDefault("BATTLE_WS_URL", "ws://localhost:8081")
	gameID := strings.TrimSpace(os.Getenv("BATTLE_ID"))
	limit := 10 * time.Minute
	if v := os.Getenv("WATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("WATCH_TIMEOUT: %v", err)
		}
		limit = d
	}

	client := battleclient.NewClient(baseURL, battleclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	if gameID == "" {
		created, err := client.Create(ctx, getenvDefault("WHITE", "engine"), getenvDefault("BLACK", "engine"))
		if err != nil {
			log.Fatalf("create error: %v", err)
		}
		gameID = created.ID
		log.Printf("created battle %s", gameID)
	}

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	feed := battleclient.NewFeed(battleclient.FeedURL(wsURL, gameID), 5)
	feed.OnStateChange(func(state battleclient.FeedState) {
		log.Printf("feed state: %s", state)
		if state == battleclient.FeedFailed {
			closeDone()
		}
	})
	feed.OnMessage(func(msg *httpapi.FeedMessage) {
		switch msg.Kind {
		case corebattle.EventMoved, corebattle.EventUndone:
			if msg.Move != nil {
				fmt.Printf("%3d. %-5s %-7s %s\n", msg.Move.Ply, msg.Move.Color, msg.Move.Notation, msg.Status)
			}
		case corebattle.EventTick, corebattle.EventThinking:
		case corebattle.EventFinished:
			fmt.Println(msg.Status)
			closeDone()
		default:
			fmt.Printf("[%s] %s\n", msg.Kind, msg.Status)
			if msg.Kind == corebattle.EventSnapshot && msg.View.Outcome.Over() {
				closeDone()
			}
		}
	})

	if err := feed.Connect(ctx); err != nil {
		log.Fatalf("feed connect error: %v", err)
	}
	if _, err := client.Control(ctx, gameID, "start"); err != nil {
		log.Printf("start error: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case <-sigCh:
	case <-ctx.Done():
		log.Printf("watch timed out after %s", limit)
	}

	cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ccancel()
	_ = feed.Close(cctx)

	hist, err := client.History(cctx, gameID)
	if err != nil {
		log.Printf("history error: %v", err)
		return
	}
	fmt.Println(hist.MoveText)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
