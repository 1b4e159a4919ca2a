package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/eleven-am/livecaption/internal/app"
	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/peer"
	"github.com/eleven-am/livecaption/internal/transcription"
	"github.com/eleven-am/livecaption/internal/translate"
)

var errUnknownCommand = errors.New("unknown command, try /help")

const helpText = `commands:
  /call <id>     call a peer
  /accept        answer the incoming call
  /reject        refuse the incoming call
  /cancel        stop ringing an outgoing call
  /end           hang up
  /lang <code>   change your caption language
  /captions      resume captions after they were switched off
  /status        show the session
  /quit          leave
anything else is spoken into the call`

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the relay and take or place calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&cfg.Relay, "relay", cfg.Relay, "relay websocket URL")
	cmd.Flags().StringVar(&cfg.ID, "id", cfg.ID, "preferred peer id")
	cmd.Flags().StringVarP(&cfg.Language, "lang", "l", cfg.Language, "caption language")
	cmd.Flags().DurationVar(&cfg.WordDelay, "word-delay", cfg.WordDelay, "pause between spoken words")
	return cmd
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	log := newLogger(cfg.LogLevel)
	view := newConsole(out, cfg.NoColor)

	client, err := peer.Dial(ctx, peer.Config{URL: cfg.Relay, ID: cfg.ID}, log)
	if err != nil {
		return fmt.Errorf("join relay: %w", err)
	}

	translator, closeCache, err := newTranslator(log)
	if err != nil {
		client.Close()
		return err
	}
	defer closeCache()

	loop := eventloop.New(clock.New(), log)
	speech := transcription.NewScript(cfg.WordDelay)
	a, err := app.New(app.Config{
		Transport:   client,
		Runtime:     loop,
		View:        view,
		Speech:      speech,
		Translator:  translator,
		Language:    cfg.Language,
		RingTimeout: cfg.RingTimeout,
		Log:         log,
	})
	if err != nil {
		client.Close()
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loop.Run(ctx)
	go a.Run(ctx)

	fmt.Fprintln(out, helpText)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r := &repl{session: a, out: out}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, ok := parseLine(line)
			if !ok {
				continue
			}
			quit, err := r.exec(ctx, c)
			if err != nil {
				view.Errorf("%s: %v", c.name, err)
			}
			if quit {
				return nil
			}
		}
	}
}

// newTranslator caches translations in redis when REDIS_ADDR is set and in
// process memory otherwise.
func newTranslator(log *slog.Logger) (*translate.Cached, func(), error) {
	google := translate.NewGoogle(translate.GoogleConfig{Endpoint: cfg.TranslateEndpoint}, log)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache := translate.NewRedisCache(client, 0)
		return translate.NewCached(google, cache, log), func() { client.Close() }, nil
	}

	cache, err := translate.NewLRUCache(cfg.TranslateCache)
	if err != nil {
		return nil, nil, fmt.Errorf("translation cache: %w", err)
	}
	return translate.NewCached(google, cache, log), func() {}, nil
}

type command struct {
	name string
	arg  string
}

// parseLine turns one input line into a command. Lines without a leading
// slash are spoken.
func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", arg: line}, true
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

type session interface {
	CallUser(ctx context.Context, target string) error
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	Cancel(ctx context.Context) error
	End(ctx context.Context) error
	Say(text string) error
	SetLanguage(ctx context.Context, code string) error
	EnableCaptions(ctx context.Context) error
	Snapshot(ctx context.Context) (app.Snapshot, error)
}

type repl struct {
	session session
	out     io.Writer
}

func (r *repl) exec(ctx context.Context, c command) (bool, error) {
	switch c.name {
	case "say":
		return false, r.session.Say(c.arg)
	case "call":
		if c.arg == "" {
			return false, errors.New("usage: /call <id>")
		}
		return false, r.session.CallUser(ctx, c.arg)
	case "accept":
		return false, r.session.Accept(ctx)
	case "reject":
		return false, r.session.Reject(ctx)
	case "cancel":
		return false, r.session.Cancel(ctx)
	case "end", "hangup":
		return false, r.session.End(ctx)
	case "lang":
		return false, r.session.SetLanguage(ctx, c.arg)
	case "captions":
		return false, r.session.EnableCaptions(ctx)
	case "status":
		s, err := r.session.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "id=%s state=%s remote=%s language=%s captions=%t listening=%t\n",
			s.Session.LocalID, s.Session.State, s.Session.RemoteID, s.Language, s.CaptionsEnabled, s.Listening)
		return false, nil
	case "help":
		fmt.Fprintln(r.out, helpText)
		return false, nil
	case "quit", "exit":
		return true, nil
	}
	return false, errUnknownCommand
}
