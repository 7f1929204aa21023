package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dispomail/dispomail/internal/database"
	"github.com/dispomail/dispomail/internal/export"
	"github.com/dispomail/dispomail/internal/service"
	"github.com/dispomail/dispomail/internal/verifier"
	"github.com/dispomail/dispomail/pkg/models"
)

func handleGenerate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	prefix := fs.String("prefix", "", "Local-part prefix (random name fragment if empty)")
	tag := fs.String("tag", "", "Tag to assign (created if missing)")
	count := fs.Int("count", 1, "How many addresses to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mailboxes := service.NewMailboxService(a.db, a.cfg, a.logger)
	for i := 0; i < *count; i++ {
		mb, err := mailboxes.Generate(ctx, *prefix, *tag)
		if err != nil {
			return err
		}
		fmt.Println(mb.Address)
	}
	return nil
}

func handleList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (pending, verified, failed, expired)")
	tagName := fs.String("tag", "", "Filter by tag name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := database.MailboxFilter{}
	var err error
	if filter.Status, err = statusFilter(*status); err != nil {
		return err
	}
	if *tagName != "" {
		tag, err := a.db.GetTagByName(ctx, *tagName)
		if err != nil {
			return fmt.Errorf("looking up tag %s: %w", *tagName, err)
		}
		filter.TagID = tag.ID
	}

	boxes, err := a.db.ListMailboxes(ctx, filter)
	if err != nil {
		return err
	}
	for _, mb := range boxes {
		printMailbox(mb)
	}
	return nil
}

func handleVerify(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	address := fs.String("address", "", "Mailbox address to verify (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *address == "" {
		fs.Usage()
		return fmt.Errorf("--address is required")
	}

	verifications := service.NewVerificationService(a.db, a.cfg, a.logger)
	mb, outcome, err := verifications.Verify(ctx, *address)
	if err != nil {
		return err
	}

	if outcome.Found() {
		fmt.Printf("verified %s code=%s\n", mb.Address, outcome.Code)
		return nil
	}

	switch outcome.FailureReason {
	case verifier.FailureCancelled:
		fmt.Println("verification cancelled")
	case verifier.FailureAuth:
		fmt.Println("verification failed: backend rejected the credentials")
	case verifier.FailureNotFound:
		fmt.Println("verification failed: no code arrived, try again later")
	default:
		fmt.Printf("verification failed: %s\n", outcome.FailureReason)
	}
	return nil
}

func handleExpire(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("expire", flag.ExitOnError)
	maxAttempts := fs.Int("max-attempts", a.cfg.ExpireMaxAttempts, "Expire after this many attempts")
	maxAge := fs.Duration("max-age", a.cfg.ExpireMaxAge, "Expire mailboxes older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	verifications := service.NewVerificationService(a.db, a.cfg, a.logger)
	expired, err := verifications.ExpireStale(ctx, *maxAttempts, *maxAge)
	if err != nil {
		return err
	}
	fmt.Printf("expired %d mailboxes\n", expired)
	return nil
}

func handleTag(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tag", flag.ExitOnError)
	address := fs.String("address", "", "Mailbox address (required)")
	name := fs.String("name", "", "Tag name; empty clears the tag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *address == "" {
		fs.Usage()
		return fmt.Errorf("--address is required")
	}

	mailboxes := service.NewMailboxService(a.db, a.cfg, a.logger)
	return mailboxes.Tag(ctx, *address, *name)
}

func handleExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "Output format: csv or json")
	out := fs.String("out", "-", "Output file, '-' for stdout")
	status := fs.String("status", "", "Only export mailboxes with this status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := database.MailboxFilter{}
	var err error
	if filter.Status, err = statusFilter(*status); err != nil {
		return err
	}

	boxes, err := a.db.ListMailboxes(ctx, filter)
	if err != nil {
		return err
	}

	w, closeOut, err := exportableWriter(*out)
	if err != nil {
		return err
	}
	defer closeOut()

	switch *format {
	case "csv":
		return export.WriteCSV(w, boxes)
	case "json":
		return export.WriteJSON(w, boxes)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func handleImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	format := fs.String("format", "", "Input format: csv or json (guessed from extension if empty)")
	in := fs.String("in", "", "Input file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("--in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *in, err)
	}
	defer f.Close()

	kind := *format
	if kind == "" {
		kind = guessFormat(*in)
	}

	var boxes []*models.Mailbox
	switch kind {
	case "csv":
		boxes, err = export.ReadCSV(f)
	case "json":
		boxes, err = export.ReadJSON(f)
	default:
		return fmt.Errorf("unknown format %q", kind)
	}
	if err != nil {
		return err
	}

	mailboxes := service.NewMailboxService(a.db, a.cfg, a.logger)
	added, skipped, err := mailboxes.Import(ctx, boxes)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d mailboxes, skipped %d duplicates\n", added, skipped)
	return nil
}

func handleStats(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := a.db.GetStatistics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total:    %d\n", stats.Total)
	fmt.Printf("pending:  %d\n", stats.Pending)
	fmt.Printf("verified: %d\n", stats.Verified)
	fmt.Printf("failed:   %d\n", stats.Failed)
	fmt.Printf("expired:  %d\n", stats.Expired)
	fmt.Printf("tagged:   %d\n", stats.Tagged)
	return nil
}

func guessFormat(path string) string {
	switch {
	case len(path) > 5 && path[len(path)-5:] == ".json":
		return "json"
	default:
		return "csv"
	}
}
