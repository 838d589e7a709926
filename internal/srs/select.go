package srs

import (
	"sort"
	"time"
)

// DefaultSessionLimit caps how many cards enter a session when the caller
// does not configure a limit.
const DefaultSessionLimit = 20

// Candidate is the slice of flashcard state the selector needs.
type Candidate struct {
	ID             string
	NextDueAt      *time.Time
	LastReviewedAt *time.Time
}

// SelectDue ranks candidates and returns the ones due for review, at most
// limit of them. A limit of zero or less yields an empty result.
//
// Priority, highest first: never-reviewed cards in their input order, then
// reviewed cards by ascending due date, with reviewed-but-no-due-date cards
// ranked last among the reviewed. After ranking, only cards that are due
// (no due date, or due date at or before now) survive.
func SelectDue(cards []Candidate, limit int, now time.Time) []Candidate {
	if limit <= 0 || len(cards) == 0 {
		return nil
	}

	var unseen, reviewed []Candidate
	for _, c := range cards {
		if c.LastReviewedAt == nil {
			unseen = append(unseen, c)
		} else {
			reviewed = append(reviewed, c)
		}
	}

	sort.SliceStable(reviewed, func(i, j int) bool {
		a, b := reviewed[i].NextDueAt, reviewed[j].NextDueAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})

	ranked := append(unseen, reviewed...)

	var due []Candidate
	for _, c := range ranked {
		if c.NextDueAt != nil && c.NextDueAt.After(now) {
			continue
		}
		due = append(due, c)
		if len(due) == limit {
			break
		}
	}
	return due
}
