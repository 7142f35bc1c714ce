// Package parser turns raw extracted scripture text into ordered verse records.
//
// Parsing is a small finite-state machine. Each non-empty line is classified
// into an event and the transition table decides what happens to the open
// verse. A verse is flushed when the next marker arrives, when a new book
// starts or at end of input.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"biblerag/internal/canon"
	"biblerag/internal/domain"
)

type state int

const (
	stateNoBook state = iota
	stateAwaitingVerse
	stateInVerse
)

func (s state) String() string {
	switch s {
	case stateNoBook:
		return "NoBook"
	case stateAwaitingVerse:
		return "AwaitingVerse"
	case stateInVerse:
		return "InVerse"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

type event int

const (
	eventBook event = iota
	eventMarker
	eventText
	eventEnd
)

type action int

const (
	actIgnore action = iota
	actSetBook
	actFlushSetBook
	actOpenVerse
	actFlushOpenVerse
	actAppend
	actFlush
)

type transition struct {
	next state
	act  action
}

// transitions is the whole parser. Anything missing is a bug.
var transitions = map[state]map[event]transition{
	stateNoBook: {
		eventBook:   {stateAwaitingVerse, actSetBook},
		eventMarker: {stateNoBook, actIgnore},
		eventText:   {stateNoBook, actIgnore},
		eventEnd:    {stateNoBook, actIgnore},
	},
	stateAwaitingVerse: {
		eventBook:   {stateAwaitingVerse, actSetBook},
		eventMarker: {stateInVerse, actOpenVerse},
		eventText:   {stateAwaitingVerse, actIgnore},
		eventEnd:    {stateAwaitingVerse, actIgnore},
	},
	stateInVerse: {
		eventBook:   {stateAwaitingVerse, actFlushSetBook},
		eventMarker: {stateInVerse, actFlushOpenVerse},
		eventText:   {stateInVerse, actAppend},
		eventEnd:    {stateNoBook, actFlush},
	},
}

var markerRe = regexp.MustCompile(`\{?(\d+):(\d+)\}?`)

// Parser is a line-oriented verse parser. The zero value is not usable; use New.
type Parser struct {
	state   state
	book    string
	chapter int
	verse   int
	buf     []string
	out     []domain.VerseRecord
}

// New returns a parser in the NoBook state.
func New() *Parser { return &Parser{state: stateNoBook} }

// Parse runs a fresh parser over raw text and returns the records in
// document order.
func Parse(raw string) []domain.VerseRecord {
	p := New()
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		p.Line(line)
	}
	return p.End()
}

// Line feeds one raw line. Blank lines are skipped in every state.
func (p *Parser) Line(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if book, ok := canon.Lookup(trimmed); ok {
		p.fire(eventBook, book, 0, 0, "")
		return
	}
	if m := markerRe.FindStringSubmatchIndex(trimmed); m != nil {
		chapter, errC := strconv.Atoi(trimmed[m[2]:m[3]])
		verse, errV := strconv.Atoi(trimmed[m[4]:m[5]])
		if errC == nil && errV == nil && chapter > 0 && verse > 0 {
			rest := strings.TrimSpace(markerRe.ReplaceAllString(trimmed, ""))
			p.fire(eventMarker, "", chapter, verse, rest)
			return
		}
	}
	p.fire(eventText, "", 0, 0, trimmed)
}

// End flushes any open verse and returns everything parsed so far.
func (p *Parser) End() []domain.VerseRecord {
	p.fire(eventEnd, "", 0, 0, "")
	out := p.out
	p.out = nil
	return out
}

func (p *Parser) fire(ev event, book string, chapter, verse int, text string) {
	t := transitions[p.state][ev]
	switch t.act {
	case actSetBook:
		p.setBook(book)
	case actFlushSetBook:
		p.flush()
		p.setBook(book)
	case actOpenVerse:
		p.open(chapter, verse, text)
	case actFlushOpenVerse:
		p.flush()
		p.open(chapter, verse, text)
	case actAppend:
		p.buf = append(p.buf, text)
	case actFlush:
		p.flush()
	}
	p.state = t.next
}

func (p *Parser) setBook(book string) {
	p.book = book
	p.chapter, p.verse = 0, 0
	p.buf = p.buf[:0]
}

func (p *Parser) open(chapter, verse int, text string) {
	p.chapter, p.verse = chapter, verse
	p.buf = p.buf[:0]
	if text != "" {
		p.buf = append(p.buf, text)
	}
}

func (p *Parser) flush() {
	p.out = append(p.out, domain.VerseRecord{
		Book:    p.book,
		Chapter: p.chapter,
		Verse:   p.verse,
		Text:    strings.TrimSpace(strings.Join(p.buf, " ")),
	})
	p.buf = p.buf[:0]
}
