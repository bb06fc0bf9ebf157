package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	idPrint  = message.NewPrinter(language.Indonesian)
)

const (
	PrefixBill    = "INV"
	PrefixPayment = "PAY"

	DefaultDocumentNumberTemplate = "{PREFIX}-{YYYY}{MM}{DD}-{SEQ4}"
)

// FormatDocumentNumber renders a bill or payment number from a template,
// the issue time and a per-day sequence value. It has no side effects.
func FormatDocumentNumber(template, prefix string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("document number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid document sequence: %d", seq)
	}
	if max := MaxSequence(template); max > 0 && seq > max {
		return "", fmt.Errorf("document sequence %d exceeds %d", seq, max)
	}

	out := template
	out = strings.ReplaceAll(out, "{PREFIX}", strings.ToUpper(strings.TrimSpace(prefix)))

	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))

	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in document number format: %s", out)
	}
	return out, nil
}

// MaxSequence is the largest sequence a padded {SEQn} token can hold,
// or 0 when the template has no fixed width.
func MaxSequence(template string) int64 {
	match := seqPadRe.FindStringSubmatch(template)
	if len(match) != 2 {
		return 0
	}
	width, err := strconv.Atoi(match[1])
	if err != nil || width <= 0 || width > 18 {
		return 0
	}
	max := int64(1)
	for i := 0; i < width; i++ {
		max *= 10
	}
	return max - 1
}

// Rupiah formats an amount as "Rp 1.500.000".
func Rupiah(amount int64) string {
	if amount < 0 {
		return "-Rp " + idPrint.Sprintf("%d", -amount)
	}
	return "Rp " + idPrint.Sprintf("%d", amount)
}

// Date formats a calendar date as "2 Jan 2006".
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2 Jan 2006")
}

// Period formats a billing period as "January 2024".
func Period(start time.Time) string {
	return start.Format("January 2006")
}
