// Package heuristics holds the pure text-scanning helpers the email agent
// uses for its data-quality pass: urgency scoring and contact, date, and
// amount extraction.
package heuristics

import (
	"regexp"
	"strconv"
	"strings"
)

// Urgency levels, from highest to lowest.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

var (
	highUrgencyKeywords   = []string{"urgent", "asap", "emergency", "immediate", "critical", "important"}
	mediumUrgencyKeywords = []string{"soon", "timely", "attention", "priority", "please respond"}

	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`\b(?:\+\d{1,3}[-\s]?)?\(?\d{3}\)?[-\s]?\d{3}[-\s]?\d{4}\b`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)? (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4}\b`),
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s?\d+(?:,\d{3})*(?:\.\d{2})?`),
		regexp.MustCompile(`(?i)\d+(?:,\d{3})*(?:\.\d{2})?\s?(?:dollars|USD|EUR|GBP)`),
		regexp.MustCompile(`(?i)(?:USD|EUR|GBP)\s?\d+(?:,\d{3})*(?:\.\d{2})?`),
	}

	nonNumeric = regexp.MustCompile(`[^\d.]`)

	wordBoundaryCache = map[string]*regexp.Regexp{}
)

func init() {
	for _, kw := range highUrgencyKeywords {
		wordBoundaryCache[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	for _, kw := range mediumUrgencyKeywords {
		wordBoundaryCache[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
}

// Urgency classifies an email as high, medium, or low urgency based on
// keyword tiers over the combined subject and body.
func Urgency(subject, body string) string {
	combined := strings.ToLower(subject + " " + body)

	for _, kw := range highUrgencyKeywords {
		if wordBoundaryCache[kw].MatchString(combined) {
			return UrgencyHigh
		}
	}
	for _, kw := range mediumUrgencyKeywords {
		if wordBoundaryCache[kw].MatchString(combined) {
			return UrgencyMedium
		}
	}
	return UrgencyLow
}

// SenderDomain extracts the domain part of an email address, or "" when
// the input has no @-part.
func SenderDomain(address string) string {
	idx := strings.LastIndex(address, "@")
	if idx < 0 || idx == len(address)-1 {
		return ""
	}
	return strings.TrimRight(address[idx+1:], ">")
}

// Contacts extracts email addresses and phone numbers mentioned in text.
func Contacts(text string) []string {
	var contacts []string
	contacts = append(contacts, emailPattern.FindAllString(text, -1)...)
	contacts = append(contacts, phonePattern.FindAllString(text, -1)...)
	return contacts
}

// Dates extracts date-shaped strings mentioned in text.
func Dates(text string) []string {
	var dates []string
	for _, p := range datePatterns {
		dates = append(dates, p.FindAllString(text, -1)...)
	}
	return dates
}

// Amounts extracts monetary amounts mentioned in text.
func Amounts(text string) []string {
	var amounts []string
	for _, p := range amountPatterns {
		amounts = append(amounts, p.FindAllString(text, -1)...)
	}
	return amounts
}

// PotentialValue estimates business value as the largest numeric amount
// found. Returns (0, false) when no amount parses.
func PotentialValue(amounts []string) (float64, bool) {
	best, found := 0.0, false
	for _, amount := range amounts {
		cleaned := nonNumeric.ReplaceAllString(amount, "")
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}
