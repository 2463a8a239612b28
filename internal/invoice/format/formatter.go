// Package format renders display numbers for invoices.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// DefaultNumberTemplate yields numbers such as INV-2025-000042.
const DefaultNumberTemplate = "INV-{YYYY}-{SEQ6}"

// NumberFormatter turns a tenant's sequential invoice number into the
// display form. Supported tokens are {YYYY}, {YY}, {MM}, {DD}, {SEQ} and
// {SEQn} for a sequence zero-padded to n digits.
type NumberFormatter struct {
	template string
}

func NewNumberFormatter(template string) (*NumberFormatter, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		template = DefaultNumberTemplate
	}
	f := &NumberFormatter{template: template}
	if _, err := f.Format(time.Unix(0, 0).UTC(), 1); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *NumberFormatter) Format(at time.Time, seq int64) (string, error) {
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	at = at.UTC()
	out := strings.NewReplacer(
		"{YYYY}", at.Format("2006"),
		"{YY}", at.Format("06"),
		"{MM}", at.Format("01"),
		"{DD}", at.Format("02"),
		"{SEQ}", strconv.FormatInt(seq, 10),
	).Replace(f.template)

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		width, err := strconv.Atoi(seqPadRe.FindStringSubmatch(m)[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number template %q", f.template)
	}
	return out, nil
}

// MustFormat is Format for callers holding a validated formatter and a
// persisted, positive sequence.
func (f *NumberFormatter) MustFormat(at time.Time, seq int64) string {
	out, err := f.Format(at, seq)
	if err != nil {
		return strconv.FormatInt(seq, 10)
	}
	return out
}
