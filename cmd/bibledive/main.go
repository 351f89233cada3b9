// Command bibledive is an interactive terminal client for the BibleDive
// gateway: log in, chat with streamed replies, browse topic plans and
// lessons, and manage the account.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/bibledive/bibledive-go/internal/auth"
	"github.com/bibledive/bibledive-go/internal/config"
	"github.com/bibledive/bibledive-go/internal/service"
	"github.com/bibledive/bibledive-go/internal/state"
	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

const (
	envLocal = "local"
	envProd  = "prod"
)

// generationTimeout bounds the wait on slow correlated generation calls.
const generationTimeout = 2 * time.Minute

var (
	promptColor  = color.New(color.FgCyan)
	senderColor  = color.New(color.FgGreen, color.Bold)
	streamColor  = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed)
	headingColor = color.New(color.FgMagenta, color.Bold)
)

type app struct {
	log        *slog.Logger
	session    *auth.Session
	chats      *state.ChatStore
	reconciler *state.Reconciler
	user       *state.UserStore
	lessons    *state.LessonStore
	plans      *state.TopicPlanStore

	chatSvc    *service.ChatService
	messageSvc *service.MessageService
	userSvc    *service.UserService
	lessonSvc  *service.LessonService
	planSvc    *service.TopicPlanService
	testSvc    *service.AssessmentService

	userID      string
	currentChat uint64
	provisional bool // currentChat is a client-side placeholder id
}

func main() {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	a := newApp(log, cfg)

	scanner := bufio.NewScanner(os.Stdin)
	username := prompt(scanner, "username: ")
	password := prompt(scanner, "password: ")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	userID, err := a.session.Login(ctx, username, password)
	cancel()
	if err != nil {
		errColor.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	a.userID = userID
	a.user.SetUserID(userID)

	promptColor.Printf("logged in as %s\n", username)
	a.bootstrap()

	fmt.Println("Type a message, or /help for commands ('quit' to exit):")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		a.handle(line)
		if !a.session.LoggedIn() {
			break
		}
	}
	a.session.Logout()
}

func newApp(log *slog.Logger, cfg *config.Config) *app {
	a := &app{log: log}

	a.chats = state.NewChatStore()
	a.reconciler = state.NewReconciler(log, a.chats)
	a.user = state.NewUserStore()
	a.lessons = state.NewLessonStore()
	a.plans = state.NewTopicPlanStore()

	api := auth.NewAPIClient(cfg.API.BaseURL)
	creds := auth.NewCredentials(api)

	mgr := ws.NewManager(ws.Options{
		Logger:     log,
		Token:      creds.AccessToken,
		RetryDelay: cfg.Websocket.RetryDelay,
		MaxRetries: cfg.Websocket.MaxRetries,
		FlushDelay: cfg.Websocket.FlushDelay,
	})
	mgr.OnReconnect(a.bootstrap)

	a.chatSvc = service.NewChatService(log, mgr, creds.AccessToken,
		a.onSummaries, a.chats.SetMessages)
	a.messageSvc = service.NewMessageService(log, mgr, creds.AccessToken,
		a.onFragment, a.onStreamComplete)
	a.userSvc = service.NewUserService(log, mgr, creds.AccessToken, a.user.SetUser)
	a.lessonSvc = service.NewLessonService(log, mgr, creds.AccessToken,
		a.lessons.SetAll, a.lessons.SetAll)
	a.planSvc = service.NewTopicPlanService(log, mgr, creds.AccessToken,
		a.plans.Upsert, a.plans.SetAll, a.onOverview)
	a.testSvc = service.NewAssessmentService(log, mgr, creds.AccessToken, nil)

	a.session = auth.NewSession(log, api, creds, mgr, cfg.Websocket.Endpoint,
		a.chats, a.reconciler, a.user, a.lessons, a.plans)
	return a
}

// bootstrap re-syncs the caches; runs after login and after every reconnect.
func (a *app) bootstrap() {
	if a.userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.chatSvc.ChatSummaries(ctx, a.userID); err != nil {
		a.log.Warn("failed to request chat summaries", slog.Any("error", err))
	}
	if err := a.userSvc.UserInfo(ctx, a.userID); err != nil {
		a.log.Warn("failed to request user info", slog.Any("error", err))
	}
}

func (a *app) handle(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		a.sendMessage(ctx, line)
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		printHelp()
	case "/chats":
		for _, chat := range a.chats.Chats() {
			fmt.Printf("  %d  %s\n", chat.ID, chat.Name)
		}
	case "/open":
		a.openChat(ctx, fields[1:])
	case "/delete":
		a.deleteChat(ctx, fields[1:])
	case "/deleteall":
		if ok, err := a.chatSvc.DeleteAllChats(ctx, a.userID); err != nil {
			errColor.Printf("delete failed: %v\n", err)
		} else if ok {
			a.chats.Clear()
			a.currentChat = 0
			a.provisional = false
			fmt.Println("all chats deleted")
		}
	case "/plans":
		if err := a.planSvc.AllByUser(ctx, a.userID); err != nil {
			errColor.Printf("request failed: %v\n", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
		for _, p := range a.plans.Plans() {
			fmt.Printf("  %d  %s\n", p.ID, p.Title)
		}
	case "/overview":
		if len(fields) < 2 {
			errColor.Println("usage: /overview <prompt>")
			return
		}
		prompt := strings.TrimSpace(strings.TrimPrefix(line, "/overview"))
		if err := a.planSvc.GenerateOverview(ctx, a.userID, prompt); err != nil {
			errColor.Printf("request failed: %v\n", err)
		}
	case "/lessons":
		a.generateLessons(fields[1:])
	case "/test":
		a.generateTest(fields[1:])
	case "/passwd":
		a.updatePassword(ctx, fields[1:])
	case "/logout":
		a.session.Logout()
	default:
		errColor.Printf("unknown command %s\n", fields[0])
	}
}

// sendMessage appends the optimistic entry and starts the stream. A brand-new
// conversation gets a provisional id until the server assigns the real one.
func (a *app) sendMessage(ctx context.Context, body string) {
	chatID := a.currentChat
	if chatID == 0 {
		chatID = uint64(time.Now().UnixMilli())
		a.currentChat = chatID
		a.provisional = true
	}
	a.chats.AddLocal(wire.Message{
		ChatID:    chatID,
		Sender:    a.userID,
		Body:      body,
		CreatedAt: time.Now(),
	})
	if err := a.messageSvc.Send(ctx, chatID, a.userID, body); err != nil {
		errColor.Printf("send failed: %v\n", err)
	}
}

func (a *app) openChat(ctx context.Context, args []string) {
	id, ok := parseID(args)
	if !ok {
		errColor.Println("usage: /open <chat-id>")
		return
	}
	a.currentChat = id
	a.provisional = false
	if err := a.chatSvc.RecentMessages(ctx, id, 0); err != nil {
		errColor.Printf("request failed: %v\n", err)
		return
	}
	time.Sleep(500 * time.Millisecond)
	if chat, ok := a.chats.Chat(id); ok {
		headingColor.Printf("--- %s ---\n", chat.Name)
		for _, msg := range chat.Messages {
			senderColor.Printf("[%s] ", msg.Sender)
			fmt.Println(msg.Body)
		}
	}
}

func (a *app) deleteChat(ctx context.Context, args []string) {
	id, ok := parseID(args)
	if !ok {
		errColor.Println("usage: /delete <chat-id>")
		return
	}
	if ok, err := a.chatSvc.DeleteChat(ctx, id); err != nil {
		errColor.Printf("delete failed: %v\n", err)
	} else if ok {
		a.chats.Remove(id)
		if a.currentChat == id {
			a.currentChat = 0
			a.provisional = false
		}
		fmt.Println("chat deleted")
	}
}

func (a *app) generateLessons(args []string) {
	id, ok := parseID(args)
	if !ok {
		errColor.Println("usage: /lessons <plan-id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	fmt.Println("generating lessons...")
	lessons, err := a.lessonSvc.GenerateLessons(ctx, id)
	if err != nil {
		errColor.Printf("generation failed: %v\n", err)
		return
	}
	for _, l := range lessons {
		fmt.Printf("  %d  %s\n", l.ID, l.Title)
	}
}

func (a *app) generateTest(args []string) {
	id, ok := parseID(args)
	if !ok {
		errColor.Println("usage: /test <lesson-id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), generationTimeout)
	defer cancel()

	fmt.Println("generating test...")
	test, err := a.testSvc.Generate(ctx, id, service.QuestionCounts{
		MultipleChoice: 3,
		FillInTheBlank: 2,
		ShortAnswer:    2,
		MatchOptions:   1,
	})
	if err != nil {
		errColor.Printf("generation failed: %v\n", err)
		return
	}
	headingColor.Printf("--- %s ---\n", test.Title)
	for i, q := range test.Questions {
		fmt.Printf("%d. %s\n", i+1, q.QuestionText)
	}
}

func (a *app) updatePassword(ctx context.Context, args []string) {
	if len(args) != 2 {
		errColor.Println("usage: /passwd <current> <new>")
		return
	}
	user, ok := a.user.User()
	if !ok {
		errColor.Println("profile not loaded yet")
		return
	}
	authorized, err := a.userSvc.VerifyPassword(ctx, user.ID, args[0])
	if err != nil {
		errColor.Printf("verify failed: %v\n", err)
		return
	}
	if !authorized {
		errColor.Println("current password is wrong")
		return
	}
	if ok, err := a.userSvc.UpdatePassword(ctx, user.ID, args[1]); err != nil {
		errColor.Printf("update failed: %v\n", err)
	} else if ok {
		fmt.Println("password updated")
	}
}

func (a *app) onSummaries(summaries []wire.ChatSummary) {
	a.chats.SetSummaries(summaries)
}

func (a *app) onFragment(frag wire.Message) {
	if a.provisional && frag.ChatID != 0 && frag.ChatID != a.currentChat {
		// Server assigned the real id for the conversation we opened
		// provisionally. Re-file the optimistic entries under it.
		a.chats.Rename(a.currentChat, frag.ChatID)
		a.currentChat = frag.ChatID
		a.provisional = false
	}
	a.reconciler.ApplyFragment(frag)
	streamColor.Print(frag.Body)
}

func (a *app) onStreamComplete() {
	a.reconciler.CompleteStream()
	fmt.Println()
}

func (a *app) onOverview(overview string) {
	headingColor.Println("--- plan overview ---")
	fmt.Println(overview)
}

func printHelp() {
	fmt.Print(`  /chats                 list conversations
  /open <id>             open a conversation and show recent messages
  /delete <id>           delete a conversation
  /deleteall             delete all conversations
  /plans                 list topic plans
  /overview <prompt>     generate a topic plan overview
  /lessons <plan-id>     generate lessons for a plan
  /test <lesson-id>      generate a test for a lesson
  /passwd <cur> <new>    change password
  /logout                log out and exit
`)
}

func prompt(scanner *bufio.Scanner, label string) string {
	promptColor.Print(label)
	if !scanner.Scan() {
		os.Exit(1)
	}
	return strings.TrimSpace(scanner.Text())
}

func parseID(args []string) (uint64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
