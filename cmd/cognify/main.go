// Command cognify is a line-oriented terminal client for the Cognify chat
// server. It drives the full conversation core: optimistic sends over the
// realtime channel, watchdog timeouts, regeneration and title derivation.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cognify-ai/cognify/internal/channel"
	"github.com/cognify-ai/cognify/internal/config"
	"github.com/cognify-ai/cognify/internal/conversation"
	"github.com/cognify-ai/cognify/internal/correlator"
	"github.com/cognify-ai/cognify/internal/directory"
	"github.com/cognify-ai/cognify/internal/model/chat"
	"github.com/cognify-ai/cognify/internal/notice"
	"github.com/cognify-ai/cognify/internal/storage"
	"github.com/cognify-ai/cognify/internal/transcript"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()

	notices := notice.Func(func(level notice.Level, message string) {
		fmt.Printf("! [%s] %s\n", level, message)
	})

	transcripts := transcript.NewStore()
	chats := directory.New()
	ids := chat.NewIDClock()
	watchdog := correlator.New(transcripts, notices, ids, nil, correlator.DefaultTimeout)

	ch := channel.New(channel.DefaultOptions(cfg.SocketURL, cfg.Token))
	store := storage.NewHTTPStore(cfg.APIBase, cfg.Token)

	ctrl := conversation.New(conversation.Config{
		Transcripts: transcripts,
		Chats:       chats,
		Watchdog:    watchdog,
		Channel:     ch,
		Store:       store,
		Notices:     notices,
		IDs:         ids,
		UserID:      cfg.UserID,
	})
	defer ctrl.Close()

	ch.OnEvent(func(ev channel.Envelope) {
		ctrl.HandleEvent(ev)
		if ev.Event == channel.EventAIResponse && ev.Chat == chats.Current() {
			fmt.Printf("\ncognify> %s\n> ", ev.Content)
		}
	})
	ch.OnConnectivityError(ctrl.OnConnectivityError)

	if err := ch.Connect(ctx); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	if err := ctrl.RefreshChats(ctx); err == nil {
		printChats(chats)
	}

	fmt.Println(`Commands: /chats /new /open <n> /rename <title> /delete /regen /quit`)
	repl(ctx, ctrl, chats, transcripts)
}

func repl(ctx context.Context, ctrl *conversation.Controller, chats *directory.Directory, transcripts *transcript.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/chats":
			printChats(chats)
		case line == "/new":
			if created, err := ctrl.NewChat(ctx); err == nil {
				fmt.Printf("created %q (%s)\n", created.Title, created.ID)
			}
		case strings.HasPrefix(line, "/open "):
			openChat(ctx, ctrl, chats, transcripts, strings.TrimPrefix(line, "/open "))
		case strings.HasPrefix(line, "/rename "):
			if id := chats.Current(); id != "" {
				ctrl.RenameChat(ctx, id, strings.TrimPrefix(line, "/rename "))
			}
		case line == "/delete":
			if id := chats.Current(); id != "" {
				ctrl.DeleteChat(ctx, id)
			}
		case line == "/regen":
			if id := chats.Current(); id != "" {
				ctrl.Regenerate(id)
			}
		case line != "":
			sendLine(ctx, ctrl, chats, line)
		}
		fmt.Print("> ")
	}
}

func sendLine(ctx context.Context, ctrl *conversation.Controller, chats *directory.Directory, line string) {
	chatID := chats.Current()
	if chatID == "" {
		created, err := ctrl.NewChat(ctx)
		if err != nil {
			return
		}
		chatID = created.ID
	}
	if err := ctrl.Send(chatID, line); err != nil {
		log.Printf("send failed: %v", err)
	}
}

func openChat(ctx context.Context, ctrl *conversation.Controller, chats *directory.Directory, transcripts *transcript.Store, arg string) {
	arg = strings.TrimSpace(arg)
	list := chats.List()

	chatID := arg
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(list) {
		chatID = list[n-1].ID
	}

	if err := ctrl.OpenChat(ctx, chatID); err != nil {
		return
	}
	for _, m := range transcripts.Messages(chatID) {
		prefix := "you"
		if m.Role == chat.RoleModel {
			prefix = "cognify"
		} else if m.Role == chat.RoleSystem {
			prefix = "system"
		}
		fmt.Printf("%s> %s\n", prefix, m.Content)
	}
}

func printChats(chats *directory.Directory) {
	for i, c := range chats.List() {
		fmt.Printf("%2d. %s\n", i+1, c.Title)
	}
}
