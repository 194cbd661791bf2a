// Command postkeeper runs the post lifecycle bot.
//
// Usage:
//
//	postkeeper [global flags] <command> [command flags]
//
// Commands:
//
//	start            run the scheduled tasks and the webhook server until interrupted
//	post             generate one post (-topic, -media, -poll)
//	check-mentions   evaluate new mentions once
//	check-approvals  poll pending approvals once
//	list             print stored posts (-status)
//	publish-stuck    publish a post left in approved (-id)
//	decide           apply a reviewer decision (-approval, -action, -text, -actor)
//	token            issue a webhook bearer token (-actor, -ttl)
//	version          print build data
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/app"
	"github.com/dmitrijs2005/postkeeper/internal/approvals/gateway"
	"github.com/dmitrijs2005/postkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/postkeeper/internal/config"
	"github.com/dmitrijs2005/postkeeper/internal/flagx"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/dmitrijs2005/postkeeper/internal/webhook"
)

var errUsage = errors.New("usage: postkeeper [-c config] [-d dir] [-store driver] [-dsn dsn] [-cache driver] [-a addr] <start|post|check-mentions|check-approvals|list|publish-stuck|decide|token|version>")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global, rest := flagx.SplitArgs(args, config.FlagNames)
	if len(rest) == 0 {
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "version" {
		buildinfo.PrintBuildData(stdout)
		return nil
	}

	cfg, err := config.Load(global)
	if err != nil {
		return err
	}
	if cmd == "token" {
		return issueToken(cfg, cmdArgs, stdout)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "start":
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()
		return a.Run(ctx)
	case "post":
		return postOnce(ctx, a, cmdArgs, stdout)
	case "check-mentions":
		r, err := a.CheckMentionsOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "mentions: seen=%d replied=%d skipped=%d low_score=%d failed=%d\n",
			r.Seen, r.Replied, r.Skipped, r.LowScore, r.Failed)
		return nil
	case "check-approvals":
		r, err := a.CheckApprovalsOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "approvals: checked=%d published=%d rejected=%d pending=%d failed=%d\n",
			r.Checked, r.Published, r.Rejected, r.Pending, r.Failed)
		for _, id := range r.Stuck {
			fmt.Fprintf(stdout, "stuck in approved: %s (re-drive with publish-stuck -id %s)\n", id, id)
		}
		return nil
	case "list":
		return list(ctx, a, cmdArgs, stdout)
	case "publish-stuck":
		return publishStuck(ctx, a, cmdArgs, stdout)
	case "decide":
		return decide(ctx, a, cmdArgs, stdout)
	}
	return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func postOnce(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("post")
	topic := fs.String("topic", "", "post topic")
	withMedia := fs.Bool("media", false, "include generated media")
	withPoll := fs.Bool("poll", false, "include a poll")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := a.PostOnce(ctx, *topic, *withMedia, *withPoll)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "post %s is %s", p.ID, p.Status)
	if p.ApprovalID != "" {
		fmt.Fprintf(stdout, " (approval %s)", p.ApprovalID)
	}
	fmt.Fprintln(stdout)
	return nil
}

func list(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	statusFlag := fs.String("status", string(models.StatusPending), "status to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := models.ParseStatus(*statusFlag)
	if err != nil {
		return err
	}

	ps, err := a.List(ctx, status)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tAPPROVAL\tREPLY TO\tTEXT")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Status, p.CreatedAt.Format(time.RFC3339), p.ApprovalID, p.ReplyTargetID, p.Content().Preview(50))
	}
	return w.Flush()
}

func publishStuck(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("publish-stuck")
	id := fs.String("id", "", "post id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("publish-stuck: -id is required")
	}
	out, err := a.PublishStuck(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "post %s published as %s\n", out.PostID, out.ExternalID)
	return nil
}

func decide(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := newFlagSet("decide")
	var p gateway.Payload
	var text string
	fs.StringVar(&p.ApprovalID, "approval", "", "approval id")
	fs.StringVar(&p.Action, "action", "", "approve, reject or edit")
	fs.StringVar(&text, "text", "", "edited text")
	fs.StringVar(&p.ActorRef, "actor", "cli", "actor reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if text != "" {
		p.EditedText = &text
	}

	d, err := p.Decision()
	if err != nil {
		return err
	}
	if err := a.Decide(ctx, d); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s applied to %s\n", d.Action(), d.Approval())
	return nil
}

func issueToken(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("token")
	actor := fs.String("actor", "ops", "actor recorded with decisions")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("token: no jwt secret configured")
	}
	tok, err := webhook.GenerateToken(*actor, []byte(cfg.JWTSecret), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}
