// Command sessionctl performs the interactive first-login flow: it
// prompts for the Telegram login code (and 2FA password, if the
// account has one) on the terminal, then writes the resulting session
// file to SESSION_PATH so the worker process can start without any
// further interaction.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
)

// terminalAuth implements auth.UserAuthenticator by prompting stdin.
// SignUp is intentionally unimplemented: this tool logs in an existing
// user account, it never creates one.
type terminalAuth struct {
	phone string
}

func (terminalAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("account sign-up is not supported, log in with an existing account")
}

func (terminalAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (terminalAuth) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the code Telegram sent you: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func (a terminalAuth) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

func (terminalAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Enter your 2FA password: ")
	bytePwd, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bytePwd)), nil
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	if cfg.TelegramPhoneNumber == "" {
		log.Error("TELEGRAM_PHONE_NUMBER is required to run sessionctl")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionStorage := &telegram.FileSessionStorage{Path: cfg.SessionPath}
	client := telegram.NewClient(cfg.TelegramAPIID, cfg.TelegramAPIHash, telegram.Options{
		SessionStorage: sessionStorage,
	})

	flow := auth.NewFlow(terminalAuth{phone: cfg.TelegramPhoneNumber}, auth.SendCodeOptions{})

	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if status.Authorized {
			fmt.Println("Already logged in, session file is up to date.")
			return nil
		}
		if err := flow.Run(ctx, client.Auth()); err != nil {
			return err
		}
		self, err := client.Self(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s %s (@%s). Session written to %s\n", self.FirstName, self.LastName, self.Username, cfg.SessionPath)
		return nil
	})
	if err != nil {
		log.Error("sessionctl failed", "error", err)
		os.Exit(1)
	}
}
