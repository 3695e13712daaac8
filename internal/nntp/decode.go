package nntp

import (
	"strconv"
	"strings"
)

// Article is a decoded article header record. Date keeps the raw server
// string; it is never reparsed.
type Article struct {
	Number     int64
	Subject    string
	Author     string
	Date       string
	MessageID  string
	References string
	Bytes      int64
	Lines      int64
}

// ParseOverview decodes one XOVER response line. Fields are tab-separated
// in the fixed order artnum, subject, author, date, message-id, references,
// bytes, lines; a trailing xref field is ignored. Missing trailing fields
// decode to empty strings or zero.
func ParseOverview(line string) Article {
	fields := strings.Split(line, "\t")
	text := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	num := func(i int) int64 {
		n, err := strconv.ParseInt(strings.TrimSpace(text(i)), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return Article{
		Number:     num(0),
		Subject:    text(1),
		Author:     text(2),
		Date:       text(3),
		MessageID:  text(4),
		References: text(5),
		Bytes:      num(6),
		Lines:      num(7),
	}
}

// ParseHeaderBlock scans a HEAD response body line by line, matching header
// names case-insensitively. When a header repeats, the last occurrence
// wins. Unmatched fields stay empty or zero; Number is not carried in the
// block and is filled by the caller.
func ParseHeaderBlock(block string) Article {
	var a Article
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimLeft(line, " \t")
		switch {
		case hasHeader(line, "Subject:"):
			a.Subject = headerValue(line, "Subject:")
		case hasHeader(line, "From:"):
			a.Author = headerValue(line, "From:")
		case hasHeader(line, "Date:"):
			a.Date = headerValue(line, "Date:")
		case hasHeader(line, "Message-ID:"):
			a.MessageID = headerValue(line, "Message-ID:")
		case hasHeader(line, "References:"):
			a.References = headerValue(line, "References:")
		case hasHeader(line, "Lines:"):
			a.Lines = headerNumber(line, "Lines:")
		case hasHeader(line, "Bytes:"):
			a.Bytes = headerNumber(line, "Bytes:")
		}
	}
	return a
}

func hasHeader(line, name string) bool {
	return len(line) >= len(name) && strings.EqualFold(line[:len(name)], name)
}

// headerValue returns the text after the header name with a single leading
// space trimmed.
func headerValue(line, name string) string {
	return strings.TrimPrefix(line[len(name):], " ")
}

func headerNumber(line, name string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(line[len(name):]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
