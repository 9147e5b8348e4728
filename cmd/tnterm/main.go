// Command tnterm is the thin CLI entry point (spec §6 "CLI collaborator"):
// it maps flags to Controller calls and hands off to the bubbletea viewer.
// It carries no protocol logic of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cwilbanks/tnterm/internal/config"
	"github.com/cwilbanks/tnterm/internal/controller"
	"github.com/cwilbanks/tnterm/internal/guidemo"
	"github.com/cwilbanks/tnterm/internal/logging"
)

func main() {
	server := flag.String("server", "", "host to connect to")
	port := flag.Int("port", 23, "port to connect to")
	user := flag.String("user", "", "sign-on username")
	password := flag.String("password", "", "sign-on password")
	useTLS := flag.Bool("ssl", false, "wrap the connection in TLS")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification (loud warning)")
	caBundle := flag.String("ca-bundle", "", "path to a PEM/DER CA bundle for TLS verification")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	flag.Parse()

	if *server == "" {
		fmt.Fprintln(os.Stderr, "tnterm: --server is required")
		os.Exit(1)
	}
	if *useTLS && *port == 23 {
		*port = 992
	}
	if *insecure {
		fmt.Fprintln(os.Stderr, "tnterm: WARNING --insecure disables TLS certificate and hostname verification")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.New()

	username, pw := *user, *password
	if username == "" {
		var err error
		username, pw, err = guidemo.PromptCredentials()
		if err != nil {
			fmt.Fprintln(os.Stderr, "tnterm:", err)
			os.Exit(1)
		}
	}
	if username != "" {
		cfg.SetCredentials(username, pw)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := logging.New(os.Stderr, level)

	ctl := controller.New(24, 80, cfg, logging.DisplayAdapter{Log: log})
	tlsOpts := controller.TLSOptions{
		Enabled:           *useTLS,
		VerifyCertificate: !*insecure,
		CABundlePath:      *caBundle,
	}

	model := guidemo.New(ctl, *server, *port, tlsOpts)
	p := tea.NewProgram(model)

	go func() {
		<-ctx.Done()
		ctl.Disconnect()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tnterm:", err)
		os.Exit(1)
	}
}
