package nntp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOverview(t *testing.T) {
	t.Parallel()

	line := "4521\tRe: pointer aliasing\tjane@example.org (Jane)\t" +
		"Sat, 01 Feb 2026 10:11:12 GMT\t<abc@host>\t<prev@host>\t2048\t37\t" +
		"Xref: news.example.org comp.lang.c:4521"

	a := ParseOverview(line)

	assert.Equal(t, int64(4521), a.Number)
	assert.Equal(t, "Re: pointer aliasing", a.Subject)
	assert.Equal(t, "jane@example.org (Jane)", a.Author)
	assert.Equal(t, "Sat, 01 Feb 2026 10:11:12 GMT", a.Date)
	assert.Equal(t, "<abc@host>", a.MessageID)
	assert.Equal(t, "<prev@host>", a.References)
	assert.Equal(t, int64(2048), a.Bytes)
	assert.Equal(t, int64(37), a.Lines)
}

// TestParseOverviewShortLine verifies missing trailing fields decode to
// zero values instead of failing.
func TestParseOverviewShortLine(t *testing.T) {
	t.Parallel()

	a := ParseOverview("99\tonly a subject")

	assert.Equal(t, int64(99), a.Number)
	assert.Equal(t, "only a subject", a.Subject)
	assert.Empty(t, a.Author)
	assert.Empty(t, a.MessageID)
	assert.Zero(t, a.Bytes)
	assert.Zero(t, a.Lines)
}

func TestParseOverviewGarbageNumbers(t *testing.T) {
	t.Parallel()

	a := ParseOverview("notanumber\ts\ta\td\tm\tr\tmany\tfew")

	assert.Zero(t, a.Number)
	assert.Zero(t, a.Bytes)
	assert.Zero(t, a.Lines)
}

func TestParseHeaderBlock(t *testing.T) {
	t.Parallel()

	block := "Path: news.example.org!not-for-mail\n" +
		"From: bob@example.org (Bob)\n" +
		"Subject: undefined behavior question\n" +
		"Date: Sun, 02 Feb 2026 08:00:00 GMT\n" +
		"Message-ID: <xyz@host>\n" +
		"References: <abc@host>\n" +
		"Lines: 52\n" +
		"Bytes: 3100"

	a := ParseHeaderBlock(block)

	assert.Equal(t, "bob@example.org (Bob)", a.Author)
	assert.Equal(t, "undefined behavior question", a.Subject)
	assert.Equal(t, "Sun, 02 Feb 2026 08:00:00 GMT", a.Date)
	assert.Equal(t, "<xyz@host>", a.MessageID)
	assert.Equal(t, "<abc@host>", a.References)
	assert.Equal(t, int64(52), a.Lines)
	assert.Equal(t, int64(3100), a.Bytes)
	assert.Zero(t, a.Number, "article number is not carried in the block")
}

// TestParseHeaderBlockLastWins verifies a repeated header overwrites the
// earlier occurrence.
func TestParseHeaderBlockLastWins(t *testing.T) {
	t.Parallel()

	a := ParseHeaderBlock("Subject: first\nSubject: second")

	assert.Equal(t, "second", a.Subject)
}

func TestParseHeaderBlockCaseInsensitive(t *testing.T) {
	t.Parallel()

	a := ParseHeaderBlock("SUBJECT: shouting\nfrom: quiet@example.org")

	assert.Equal(t, "shouting", a.Subject)
	assert.Equal(t, "quiet@example.org", a.Author)
}

// TestParseHeaderBlockValueSpacing verifies exactly one leading space is
// trimmed from header values.
func TestParseHeaderBlockValueSpacing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, " padded", ParseHeaderBlock("Subject:  padded").Subject)
	assert.Equal(t, "tight", ParseHeaderBlock("Subject:tight").Subject)
}
