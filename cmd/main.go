package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abraxas-365/personal-ai-core/pkg/config"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
)

// main is a minimal local-first front-end over pkg/core: a stdin/stdout
// chat loop. Any HTTP or GUI wrapping is a collaborator's concern; this
// binary exists to exercise the composition root, not to be the product's
// real interface.
func main() {
	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		logx.SetLevel(logx.LevelDebug)
	case "warn":
		logx.SetLevel(logx.LevelWarn)
	case "error":
		logx.SetLevel(logx.LevelError)
	default:
		logx.SetLevel(logx.LevelInfo)
	}

	logx.Info("starting personal-ai-core")

	cfg := config.Load()
	container := NewContainer(cfg)
	defer container.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runChatLoop(ctx, container)
}

// runChatLoop reads lines from stdin and feeds each one to
// Core.ProcessMessage, keeping the same conversation for the process
// lifetime. It exits on ctx cancellation (SIGINT/SIGTERM) or EOF.
func runChatLoop(ctx context.Context, c *Container) {
	fmt.Println("personal-ai-core ready. Type a message and press enter; Ctrl-D to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	var conversationID *kernel.ID

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		result, err := c.Core.ProcessMessage(ctx, line, conversationID)
		if err != nil {
			logx.WithError(err).Error("failed to process message")
			continue
		}

		conversationID = &result.ConversationID
		fmt.Println(result.Response)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
