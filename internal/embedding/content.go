package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/corner-places/venue-engine/internal/normalize"
)

// ErrInsufficientContent is returned when a venue has too little usable text to embed.
var ErrInsufficientContent = errors.New("no valid content for embedding")

const (
	maxReviews          = 5
	maxReviewChars      = 300
	minContentChars     = 50
	minDescriptionChars = 10
	lowInfoMaxChars     = 100
	minHoursTextChars   = 5
)

var lowInfoPatterns = []string{
	"not available", "n/a", "none", "unknown", "null",
	"undefined", "to be added", "coming soon",
}

// Notes is curated editorial text about a venue.
type Notes struct {
	WhyWeLikeIt string
	About       string
	NeedToKnow  string
}

// Document is everything about a venue that feeds its embedding text.
type Document struct {
	Name         string
	Neighborhood string
	Price        normalize.Price
	Address      string
	Hours        normalize.Hours
	Description  string
	Tags         []string
	Notes        Notes
	Reviews      []string
}

// ValidateText reports whether a description carries enough information to
// embed, with the reason when it does not.
func ValidateText(text string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return false, "text is empty"
	}
	if utf8.RuneCountInString(text) < minDescriptionChars {
		return false, "text is too short"
	}

	lower := strings.ToLower(text)
	for _, pattern := range lowInfoPatterns {
		if strings.Contains(lower, pattern) && utf8.RuneCountInString(text) < lowInfoMaxChars {
			return false, fmt.Sprintf("text contains low-information pattern: %s", pattern)
		}
	}
	return true, ""
}

// BuildContent composes the embedding input for a venue. Section order is
// fixed so identical venues always produce identical text.
func BuildContent(doc Document) (string, error) {
	parts := []string{"Name: " + strings.TrimSpace(doc.Name)}

	if doc.Neighborhood != "" {
		parts = append(parts, "Neighborhood: "+doc.Neighborhood)
	}

	if doc.Price.Text != "" {
		line := "Price Range: " + doc.Price.Text
		if doc.Price.Label != "" {
			line += " (" + doc.Price.Label + ")"
		}
		parts = append(parts, line)
	}

	if doc.Address != "" {
		parts = append(parts, "Address: "+doc.Address)
	}

	if hours := hoursSection(doc.Hours); hours != "" {
		parts = append(parts, hours)
	}

	if doc.Description != "" {
		if ok, _ := ValidateText(doc.Description); ok {
			parts = append(parts, "Description: "+doc.Description)
		}
	}

	if len(doc.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(doc.Tags, ", "))
	}

	if notes := notesSection(doc.Notes); notes != "" {
		parts = append(parts, notes)
	}

	if reviews := reviewsSection(doc.Reviews); reviews != "" {
		parts = append(parts, reviews)
	}

	content := strings.Join(parts, "\n\n")
	if utf8.RuneCountInString(content) < minContentChars {
		return "", ErrInsufficientContent
	}
	return content, nil
}

// ContentHash returns the hex SHA-256 of composed content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func hoursSection(h normalize.Hours) string {
	if h.Structured() {
		days := make([]string, 0, len(h.Days))
		for _, d := range h.Days {
			days = append(days, d.Day+": "+d.Hours)
		}
		section := "Hours: " + strings.Join(days, ", ")
		if summary := normalize.ParseHoursPatterns(h).Summary(); summary != "" {
			section += "\nSchedule: " + summary
		}
		return section
	}
	if text := strings.TrimSpace(h.Text); utf8.RuneCountInString(text) > minHoursTextChars {
		return "Hours: " + text
	}
	return ""
}

func notesSection(n Notes) string {
	var lines []string
	if n.WhyWeLikeIt != "" {
		lines = append(lines, "Why we like it: "+n.WhyWeLikeIt)
	}
	if n.About != "" {
		lines = append(lines, "About: "+n.About)
	}
	if n.NeedToKnow != "" {
		lines = append(lines, "Need to know: "+n.NeedToKnow)
	}
	return strings.Join(lines, "\n")
}

func reviewsSection(reviews []string) string {
	lines := make([]string, 0, maxReviews)
	for _, r := range reviews {
		if len(lines) == maxReviews {
			break
		}
		if strings.TrimSpace(r) == "" {
			continue
		}
		lines = append(lines, "- "+truncateRunes(r, maxReviewChars))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Reviews:\n" + strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
