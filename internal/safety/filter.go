// Package safety implements the multi-layer input safety pipeline that
// gates every inference call: sanitisation, length and emptiness
// checks, PII redaction, prompt-injection detection, blocked-topic
// matching, and an optional external moderation classifier.
package safety

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/xiaot623/converse/internal/metrics"
)

// Threat grades how hostile a rejected input looked.
type Threat string

const (
	ThreatLow    Threat = "low"
	ThreatMedium Threat = "medium"
	ThreatHigh   Threat = "high"
)

// moderationThreshold is the classifier confidence above which a
// harmful label becomes a hard failure.
const moderationThreshold = 0.8

// Result is the verdict from running the pipeline on one input. It is
// transient: produced once per raw input, consumed once, never stored.
type Result struct {
	IsSafe      bool
	Reason      string
	CleanedText string
	PIIKinds    []string
	ThreatLevel Threat
}

// Violation is the error kind CheckOrReject signals for unsafe input.
// It is user-correctable: the HTTP layer maps it to a 4xx response.
type Violation struct {
	Reason      string
	ThreatLevel Threat
}

func (v *Violation) Error() string { return v.Reason }

// Filter runs the layered safety checks. The zero value is not usable;
// construct with New.
type Filter struct {
	maxInputLength int
	blockedTopics  []*regexp.Regexp
	topicNames     []string
	moderator      Moderator
}

// New builds a Filter. blockedTopics are matched case-insensitively on
// word boundaries; moderator may be nil to disable the external
// moderation layer.
func New(maxInputLength int, blockedTopics []string, moderator Moderator) *Filter {
	f := &Filter{
		maxInputLength: maxInputLength,
		moderator:      moderator,
	}
	for _, topic := range blockedTopics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" {
			continue
		}
		f.blockedTopics = append(f.blockedTopics, regexp.MustCompile(`\b`+regexp.QuoteMeta(topic)+`\b`))
		f.topicNames = append(f.topicNames, topic)
	}
	return f
}

// Check runs the full pipeline on raw input. It never fails with an
// error: an unsafe input is expressed through IsSafe=false and Reason.
// Layers run cheapest first and short-circuit on the first failure,
// bounding worst-case latency on adversarial input.
func (f *Filter) Check(ctx context.Context, raw string) Result {
	// Layer 1: sanitise. Always runs, never fails.
	cleaned := sanitize(raw)

	// Layer 2: length.
	if utf8.RuneCountInString(cleaned) > f.maxInputLength {
		metrics.SafetyViolationsTotal.WithLabelValues("input_too_long").Inc()
		return Result{
			IsSafe:      false,
			Reason:      fmt.Sprintf("Input exceeds maximum length of %d characters.", f.maxInputLength),
			CleanedText: truncateRunes(cleaned, f.maxInputLength),
			ThreatLevel: ThreatLow,
		}
	}

	// Layer 3: emptiness.
	if strings.TrimSpace(cleaned) == "" {
		metrics.SafetyViolationsTotal.WithLabelValues("empty_input").Inc()
		return Result{
			IsSafe:      false,
			Reason:      "Input cannot be empty.",
			ThreatLevel: ThreatLow,
		}
	}

	// Layer 4: PII redaction. Detection only; never fails the request.
	cleaned, piiKinds := redactPII(cleaned)

	// Layer 5: injection / jailbreak detection.
	if match := detectInjection(cleaned); match != "" {
		metrics.SafetyViolationsTotal.WithLabelValues("prompt_injection").Inc()
		log.WithField("match", truncateRunes(match, 60)).Warn("prompt injection attempt detected")
		return Result{
			IsSafe:      false,
			Reason:      "Potential prompt injection or jailbreak attempt detected.",
			CleanedText: cleaned,
			PIIKinds:    piiKinds,
			ThreatLevel: ThreatHigh,
		}
	}

	// Layer 6: blocked topics.
	if topic := f.matchBlockedTopic(cleaned); topic != "" {
		metrics.SafetyViolationsTotal.WithLabelValues("blocked_topic").Inc()
		log.WithField("topic", topic).Info("blocked topic detected")
		return Result{
			IsSafe:      false,
			Reason:      fmt.Sprintf("Topic not supported: %q.", topic),
			CleanedText: cleaned,
			PIIKinds:    piiKinds,
			ThreatLevel: ThreatMedium,
		}
	}

	// Layer 7: external moderation classifier (optional). Classifier
	// errors are non-fatal; only a confident harmful classification
	// fails the input.
	if f.moderator != nil && f.flaggedByModeration(ctx, cleaned) {
		metrics.SafetyViolationsTotal.WithLabelValues("moderation").Inc()
		return Result{
			IsSafe:      false,
			Reason:      "Content flagged by moderation model.",
			CleanedText: cleaned,
			PIIKinds:    piiKinds,
			ThreatLevel: ThreatHigh,
		}
	}

	return Result{
		IsSafe:      true,
		CleanedText: cleaned,
		PIIKinds:    piiKinds,
		ThreatLevel: ThreatLow,
	}
}

// CheckOrReject runs Check and converts a negative verdict into a
// *Violation error, returning the cleaned text on success.
func (f *Filter) CheckOrReject(ctx context.Context, raw string) (string, error) {
	result := f.Check(ctx, raw)
	if !result.IsSafe {
		return "", &Violation{Reason: result.Reason, ThreatLevel: result.ThreatLevel}
	}
	return result.CleanedText, nil
}

func sanitize(text string) string {
	text = html.UnescapeString(text)
	text = htmlTagRe.ReplaceAllString(text, "")
	text = controlCharRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// redactPII replaces detected PII with typed placeholders and reports
// the kinds found. Card numbers are redacted before phone numbers so a
// long digit run is classified once, by the most specific pattern.
func redactPII(text string) (string, []string) {
	var kinds []string

	if emailRe.MatchString(text) {
		text = emailRe.ReplaceAllString(text, "[EMAIL REDACTED]")
		kinds = append(kinds, "email")
	}
	if creditCardRe.MatchString(text) {
		text = creditCardRe.ReplaceAllString(text, "[CREDIT CARD REDACTED]")
		kinds = append(kinds, "credit_card")
	}
	if redacted, found := redactSSN(text); found {
		text = redacted
		kinds = append(kinds, "ssn")
	}
	if phoneRe.MatchString(text) {
		text = phoneRe.ReplaceAllString(text, "[PHONE REDACTED]")
		kinds = append(kinds, "phone")
	}
	if ipAddressRe.MatchString(text) {
		text = ipAddressRe.ReplaceAllString(text, "[IP REDACTED]")
		kinds = append(kinds, "ip_address")
	}

	if len(kinds) > 0 {
		log.WithField("kinds", kinds).Info("PII detected and redacted")
	}
	return text, kinds
}

// redactSSN redacts SSN-like patterns, excluding the never-issued
// ranges (area 000/666/9xx, group 00, serial 0000) that the pattern
// alone cannot express without lookahead.
func redactSSN(text string) (string, bool) {
	found := false
	redacted := ssnRe.ReplaceAllStringFunc(text, func(match string) string {
		digits := strings.NewReplacer("-", "", " ", "").Replace(match)
		area, group, serial := digits[:3], digits[3:5], digits[5:]
		if area == "000" || area == "666" || area[0] == '9' || group == "00" || serial == "0000" {
			return match
		}
		found = true
		return "[SSN REDACTED]"
	})
	return redacted, found
}

func detectInjection(text string) string {
	for _, pattern := range injectionPatterns {
		if match := pattern.FindString(text); match != "" {
			return match
		}
	}
	return ""
}

func (f *Filter) matchBlockedTopic(text string) string {
	lowered := strings.ToLower(text)
	for i, pattern := range f.blockedTopics {
		if pattern.MatchString(lowered) {
			return f.topicNames[i]
		}
	}
	return ""
}

func (f *Filter) flaggedByModeration(ctx context.Context, text string) bool {
	classifications, err := f.moderator.Classify(ctx, truncateRunes(text, 512))
	if err != nil {
		log.WithError(err).Warn("moderation classifier error (non-fatal)")
		return false
	}
	for _, c := range classifications {
		label := strings.ToLower(c.Label)
		if (label == "toxic" || label == "hate" || label == "harmful") && c.Score > moderationThreshold {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
