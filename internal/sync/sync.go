// Package sync reconciles registered card sources with the flashcard store:
// new source content becomes flashcards with default scheduling state, and
// imported cards whose content disappeared are soft-deleted.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ciaranmul/recollect/internal/cardhash"
	"github.com/ciaranmul/recollect/internal/domain"
	"github.com/ciaranmul/recollect/internal/gitsource"
	"github.com/ciaranmul/recollect/internal/parser"
	"github.com/ciaranmul/recollect/internal/srs"
	"github.com/ciaranmul/recollect/internal/storage"
)

// Report summarizes one sync run.
type Report struct {
	SourcesSynced int `json:"sourcesSynced"`
	CardsAdded    int `json:"cardsAdded"`
	CardsRemoved  int `json:"cardsRemoved"`
	Errors        int `json:"errors"`
}

// TypeForPath classifies a source path as "git" or "local".
func TypeForPath(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

// Run reconciles the sources registered by one user against the store.
func Run(ctx context.Context, db *storage.DB, userID, reposDir string, log *slog.Logger) (Report, error) {
	var report Report

	sources, err := db.ListUserSources(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to load sources: %w", err)
	}
	if len(sources) == 0 {
		log.InfoContext(ctx, "no card sources registered", "user_id", userID)
		return report, nil
	}

	if err := os.MkdirAll(reposDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		log.InfoContext(ctx, "syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		localPath := source.Path
		if source.Type == "git" {
			localPath, err = checkoutPath(reposDir, source.Path)
			if err != nil {
				log.ErrorContext(ctx, "cannot place git checkout", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localPath, log); err != nil {
				log.ErrorContext(ctx, "git sync failed", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
		}

		added, removed, errs := reconcile(ctx, db, source, localPath, log)
		report.CardsAdded += added
		report.CardsRemoved += removed
		report.Errors += errs
		report.SourcesSynced++

		if err := db.TouchSource(ctx, source.ID, time.Now()); err != nil {
			log.WarnContext(ctx, "failed to stamp source sync time", "source_id", source.ID, "error", err)
		}
	}

	log.InfoContext(ctx, "sync complete",
		"sources", report.SourcesSynced,
		"added", report.CardsAdded,
		"removed", report.CardsRemoved,
		"errors", report.Errors)
	return report, nil
}

// reconcile walks one source directory, imports unseen cards into the
// source's deck, and soft-deletes imported cards no longer present.
func reconcile(ctx context.Context, db *storage.DB, source storage.Source, dir string, log *slog.Logger) (added, removed, errs int) {
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		contents, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			log.WarnContext(ctx, "failed to parse card file", "path", path, "error", parseErr)
			errs++
			return nil
		}

		for _, content := range contents {
			hash := cardhash.Sum(content)
			seen[hash] = true

			existing, findErr := db.FindFlashcardByHash(ctx, source.UserID, source.DeckID, hash)
			if findErr != nil {
				log.WarnContext(ctx, "hash lookup failed", "hash", hash, "error", findErr)
				errs++
				continue
			}
			if existing != nil {
				continue
			}

			fc := &domain.Flashcard{
				ID:          uuid.NewString(),
				UserID:      source.UserID,
				DeckID:      source.DeckID,
				Question:    content.Question,
				Answer:      content.Answer,
				Context:     content.Context,
				ContentHash: hash,
				Stability:   srs.DefaultStability,
				Difficulty:  srs.DefaultDifficulty,
				CreatedAt:   time.Now(),
			}
			if insertErr := db.InsertFlashcard(ctx, fc); insertErr != nil {
				log.WarnContext(ctx, "failed to import card", "hash", hash, "error", insertErr)
				errs++
				continue
			}
			added++
		}
		return nil
	})
	if walkErr != nil {
		log.ErrorContext(ctx, "failed to walk source directory", "path", dir, "error", walkErr)
		errs++
		return added, removed, errs
	}

	imported, err := db.ListImportedHashes(ctx, source.UserID, source.DeckID)
	if err != nil {
		log.ErrorContext(ctx, "failed to list imported cards", "deck_id", source.DeckID, "error", err)
		errs++
		return added, removed, errs
	}
	for hash, cardID := range imported {
		if seen[hash] {
			continue
		}
		if err := db.SoftDeleteFlashcard(ctx, source.UserID, cardID); err != nil {
			log.WarnContext(ctx, "failed to remove orphaned card", "flashcard_id", cardID, "error", err)
			errs++
			continue
		}
		removed++
	}
	return added, removed, errs
}

// checkoutPath maps a git URL to a stable location under baseDir.
func checkoutPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		return filepath.Join(baseDir, parsed.Host, strings.TrimSuffix(parsed.Path, ".git")), nil
	}

	// scp-style: git@host:owner/repo.git
	if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
		if host, repoPath, ok := strings.Cut(rest, ":"); ok {
			return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
