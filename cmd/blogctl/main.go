package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-blog-session/client"
	"github.com/jrsteele09/go-blog-session/internal/config"
	"github.com/jrsteele09/go-blog-session/internal/errors"
	"github.com/jrsteele09/go-blog-session/session"
	"github.com/jrsteele09/go-blog-session/terminator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: blogctl <command> [flags]

commands:
  login -u <username>    log in (password from BLOG_PASSWORD or stdin)
  whoami                 show the current session
  get <path>             GET an API path and print its data
  logout [-local]        end the session
  watch [-metrics addr]  keep the session fresh and follow logouts from other clients
`

func main() {
	_ = godotenv.Load()

	c := config.New()
	setupLogging(c)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(c, os.Args[1], os.Args[2:]); err != nil {
		log.Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func run(c config.Config, command string, args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	blog, err := client.New(c, client.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer blog.Close()

	switch command {
	case "login":
		return login(ctx, blog, args)
	case "whoami":
		return whoami(blog)
	case "get":
		return get(ctx, blog, args)
	case "logout":
		return logout(ctx, blog, args)
	case "watch":
		displayAppname(c.GetAppName())
		return watch(ctx, blog, reg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func login(ctx context.Context, blog *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", os.Getenv("BLOG_USERNAME"), "username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("login: -u is required")
	}

	password := os.Getenv("BLOG_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("login: read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	user, err := blog.Login(ctx, *username, password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%s)\n", user.DisplayName(), user.Role.DisplayName())
	return nil
}

func whoami(blog *client.Client) error {
	s := blog.Session()
	if !s.IsAuthenticated {
		fmt.Println("Not logged in")
		return nil
	}
	v := blog.Validation()
	status := blog.Status()

	fmt.Printf("User:       %s (#%d, %s)\n", s.User.DisplayName(), s.User.ID, s.User.Role.DisplayName())
	fmt.Printf("Expires at: %s (in %s)\n", s.ExpiresAt.Format(time.RFC3339), v.ExpiresIn.Round(time.Second))
	fmt.Printf("Valid:      %t\n", v.IsValid)
	fmt.Printf("Refresh:    %t\n", v.ShouldRefresh)
	if status.Token != nil {
		fmt.Printf("Token exp:  %s\n", status.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func get(ctx context.Context, blog *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("get: expected exactly one path")
	}
	data, err := client.Get[json.RawMessage](ctx, blog, args[0])
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(data, &pretty); err != nil {
		fmt.Println(string(data))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func logout(ctx context.Context, blog *client.Client, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	local := fs.Bool("local", false, "clear the local session without contacting the server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *local {
		return blog.ForceLogout(ctx, terminator.ReasonLogout)
	}
	return blog.Logout(ctx)
}

// watch refreshes the token ahead of expiry and follows logouts broadcast by other clients
// until interrupted.
func watch(ctx context.Context, blog *client.Client, reg *prometheus.Registry, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	metricsAddr := fs.String("metrics", "", "serve prometheus metrics on this address")
	interval := fs.Duration("interval", time.Minute, "how often to check the token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	unsubscribe := blog.Subscribe(func(s session.Session) {
		log.Info().Bool("authenticated", s.IsAuthenticated).Time("expiresAt", s.ExpiresAt).Msg("Session changed")
	})
	defer unsubscribe()

	stopListening, err := blog.Listen(ctx, func() {
		log.Warn().Msg("Logged out by another client")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Cross-client logout not available with this storage")
	} else {
		defer stopListening()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			if blog.Session().IsAuthenticated {
				if _, err := blog.EnsureValid(ctx); err != nil && ctx.Err() == nil {
					log.Err(err).Msg("Keeping session fresh failed")
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if *metricsAddr != "" {
		server := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		g.Go(func() error {
			return listenAndServe(server)
		})
		g.Go(func() error {
			<-ctx.Done()
			return shutdown(server)
		})
	}

	log.Info().Msg("Watching session, press Ctrl+C to stop")
	return g.Wait()
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Metrics listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
