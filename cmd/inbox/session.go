package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/catalog"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/logger"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/messaging"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/msgclient"
)

type session struct {
	me      messaging.User
	client  *msgclient.Client
	inbox   *messaging.Inbox
	catalog *catalog.Lookup
	log     *zap.Logger
	out     io.Writer
}

// toaster prints user facing notifications to stderr.
type toaster struct {
	w io.Writer
}

func (t toaster) Success(msg string) { fmt.Fprintln(t.w, "✓", msg) }

func (t toaster) Failure(msg string, err error) { fmt.Fprintf(t.w, "✗ %s: %v\n", msg, err) }

func openSession(c *cli.Context) (*session, error) {
	token := c.String("token")
	if token == "" {
		return nil, errors.New("no session token, set PT_TOKEN or --token")
	}

	log := logger.New("pasar-tani-inbox", c.String("log-level"))
	client := msgclient.New(c.String("api"), token)

	me, err := client.Me(c.Context)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	lookup, err := catalog.NewLookup(client, c.Int("catalog-cache"))
	if err != nil {
		return nil, err
	}

	inbox := messaging.NewInbox(client, me, messaging.Options{
		Poller: messaging.PollerConfig{
			ThreadInterval:   c.Duration("thread-interval"),
			ListInterval:     c.Duration("list-interval"),
			RefreshPerMinute: c.Int("refresh-per-minute"),
		},
		Log:      log,
		Notifier: toaster{w: c.App.ErrWriter},
	})
	// one-shot commands fetch through sync only; watch starts the loops
	inbox.SetVisible(false)

	return &session{
		me:      me,
		client:  client,
		inbox:   inbox,
		catalog: lookup,
		log:     log,
		out:     c.App.Writer,
	}, nil
}

func (s *session) close() {
	s.inbox.Close()
	_ = s.log.Sync()
}

// sync loads the conversation list once before a command acts on it.
func (s *session) sync(ctx context.Context) error {
	return reported(s.inbox.Refresh(ctx))
}

// reported turns an error the inbox already showed to the user into a bare
// exit status.
func reported(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit("", 1)
}

// watch redraws on every state change until interrupted.
func (s *session) watch(ctx context.Context, draw func(messaging.Snapshot)) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.inbox.SetVisible(true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.inbox.Changes():
			draw(s.inbox.Snapshot())
		}
	}
}

func (s *session) productLabel(ctx context.Context, id *int64) string {
	if id == nil {
		return ""
	}
	p, err := s.catalog.Product(ctx, *id)
	if err != nil {
		s.log.Debug("product lookup failed", zap.Int64("product_id", *id), zap.Error(err))
		return fmt.Sprintf("product #%d", *id)
	}
	return p.Label()
}
