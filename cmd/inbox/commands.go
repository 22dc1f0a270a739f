package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/messaging"
)

var peerFlag = &cli.Int64Flag{
	Name:     "peer",
	Aliases:  []string{"p"},
	Usage:    "User id of the other participant",
	Required: true,
}

var idFlag = &cli.Int64Flag{
	Name:     "id",
	Usage:    "Message id",
	Required: true,
}

func conversationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "conversations",
		Aliases: []string{"ls"},
		Usage:   "List conversations, most recent first",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep polling and redraw on changes"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.sync(c.Context); err != nil {
				return err
			}
			printConversations(s, s.inbox.Snapshot())

			if c.Bool("watch") {
				s.inbox.Open(c.Context)
				s.watch(c.Context, func(snap messaging.Snapshot) { printConversations(s, snap) })
			}
			return nil
		},
	}
}

func threadCommand() *cli.Command {
	return &cli.Command{
		Name:  "thread",
		Usage: "Show the conversation with one user and mark it read",
		Flags: []cli.Flag{
			peerFlag,
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Keep polling for new messages"},
			&cli.BoolFlag{Name: "keep-unread", Usage: "Do not mark shown messages read"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			peer := messaging.Identity(c.Int64("peer"))
			s.inbox.OpenThread(c.Context, peer)
			if err := s.sync(c.Context); err != nil {
				return err
			}

			draw := func(snap messaging.Snapshot) {
				printThread(c.Context, s, snap, peer)
				if !c.Bool("keep-unread") {
					_, _ = s.inbox.MarkConversationRead(c.Context, peer)
				}
			}
			draw(s.inbox.Snapshot())

			if c.Bool("follow") {
				s.watch(c.Context, draw)
			}
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a message",
		Flags: []cli.Flag{
			peerFlag,
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Message text", Required: true},
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "Subject, defaults to a reply to the latest message"},
			&cli.Int64Flag{Name: "product", Usage: "Id of the listing the message is about"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			peer := messaging.Identity(c.Int64("peer"))
			s.inbox.OpenThread(c.Context, peer)
			if err := s.sync(c.Context); err != nil {
				return err
			}

			var opts []messaging.SendOption
			if subject := c.String("subject"); subject != "" {
				opts = append(opts, messaging.WithSubject(subject))
			}
			if product := c.Int64("product"); product > 0 {
				opts = append(opts, messaging.WithProduct(product))
			}

			msg, err := s.inbox.Send(c.Context, peer, c.String("body"), opts...)
			if err != nil {
				if draft := s.inbox.Draft(peer); draft != "" {
					fmt.Fprintf(c.App.ErrWriter, "draft kept: %q\n", draft)
				}
				return reported(err)
			}
			fmt.Fprintf(s.out, "sent #%d %q\n", msg.ID, msg.Subject)
			return nil
		},
	}
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Mark one received message read",
		Flags: []cli.Flag{idFlag},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.sync(c.Context); err != nil {
				return err
			}
			if err := s.inbox.MarkRead(c.Context, c.Int64("id")); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "unread: %d\n", s.inbox.Badge())
			return nil
		},
	}
}

func readAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "read-all",
		Usage: "Mark every received message read",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.sync(c.Context); err != nil {
				return err
			}
			_, err = s.inbox.MarkAllRead(c.Context)
			return reported(err)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a message for both participants",
		Flags: []cli.Flag{idFlag},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			return reported(s.inbox.Delete(c.Context, c.Int64("id")))
		},
	}
}

func unreadCommand() *cli.Command {
	return &cli.Command{
		Name:  "unread",
		Usage: "Show unread counts",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.sync(c.Context); err != nil {
				return err
			}
			snap := s.inbox.Snapshot()
			fmt.Fprintf(s.out, "unread: %d\n", snap.Badge)
			for _, conv := range snap.Conversations {
				if conv.UnreadCount > 0 {
					fmt.Fprintf(s.out, "  %-24s %d\n", peerLabel(conv), conv.UnreadCount)
				}
			}
			if n, err := s.inbox.CountUnread(c.Context); err == nil && n != snap.Badge {
				s.log.Sugar().Debugf("server reports %d unread, local badge is %d", n, snap.Badge)
			}
			return nil
		},
	}
}

func printConversations(s *session, snap messaging.Snapshot) {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "PEER\tUNREAD\tLAST\tSUBJECT\tPREVIEW\n")
	for _, conv := range snap.Conversations {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			peerLabel(conv),
			conv.UnreadCount,
			conv.Latest.SentAt.Local().Format(time.DateTime),
			conv.Latest.Subject,
			preview(conv.Latest.Body, 40),
		)
	}
	_ = w.Flush()
	fmt.Fprintf(s.out, "%d unread\n", snap.Badge)
}

func printThread(ctx context.Context, s *session, snap messaging.Snapshot, peer messaging.Identity) {
	conv, ok := snap.Conversation(peer)
	if !ok {
		fmt.Fprintf(s.out, "no messages with user %d\n", peer)
		return
	}

	fmt.Fprintf(s.out, "── %s ──\n", peerLabel(conv))
	for _, m := range conv.Thread() {
		who := conv.PeerName
		if m.SenderID == snap.Me.ID {
			who = "you"
		}
		mark := " "
		if !m.Read && m.SenderID == peer {
			mark = "*"
		}
		status := ""
		if m.ID == 0 {
			status = " (sending)"
		}
		fmt.Fprintf(s.out, "%s [%s] %s%s: %s\n", mark, m.SentAt.Local().Format(time.DateTime), who, status, m.Body)
		if label := s.productLabel(ctx, m.ProductID); label != "" {
			fmt.Fprintf(s.out, "    about %s\n", label)
		}
	}
	for _, o := range snap.Failed() {
		if o.PeerID == peer {
			fmt.Fprintf(s.out, "! not sent: %q (%v)\n", o.Request.Body, o.Err)
		}
	}
}

func peerLabel(conv messaging.Conversation) string {
	if conv.PeerName != "" {
		return conv.PeerName
	}
	if conv.PeerEmail != "" {
		return conv.PeerEmail
	}
	return fmt.Sprintf("user %d", conv.PeerID)
}

func preview(body string, n int) string {
	body = strings.Join(strings.Fields(body), " ")
	r := []rune(body)
	if len(r) <= n {
		return body
	}
	return string(r[:n-1]) + "…"
}
