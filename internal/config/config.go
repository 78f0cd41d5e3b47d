// Package config parses the daemon's INI-like configuration grammar into
// a Model (spec.md §6, grounded on original_source/src/config.c). The
// grammar has five sections — [control], [sink-route], [source-route],
// [context], [default] — whose exact line shapes and defaulting rules are
// reproduced from the source rather than reinvented.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

var entryNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

type sectionType int

const (
	sectionNone sectionType = iota
	sectionControl
	sectionSink
	sectionSource
	sectionContext
	sectionDefault
)

var sectionHeaders = map[string]sectionType{
	"[control]":      sectionControl,
	"[sink-route]":   sectionSink,
	"[source-route]": sectionSource,
	"[context]":      sectionContext,
	"[default]":      sectionDefault,
}

var ruleTypeBySection = map[sectionType]model.RuleType{
	sectionSink:    model.RuleTypeSink,
	sectionSource:  model.RuleTypeSource,
	sectionContext: model.RuleTypeContext,
}

// elemDef accumulates a [control] section's key=value lines until the
// section closes, at which point the element is defined in one shot.
type elemDef struct {
	id, card, ifname, name string
	index, dev, subdev     int
	startLine              int
}

// elementRef is what a config-file elemid resolves to: the card it
// belongs to plus the element itself, needed together to build a
// SetValue/default rule.
type elementRef struct {
	card *model.Card
	elem *model.Element
}

// Loader parses a configuration file into a Model. It keeps its own
// dedup tables for card patterns, entry names, and control-element ids,
// because Model's builder methods don't dedupe on their own — the source
// memoizes all three the same way, via its cardtbl/entrytbl/elemtbl
// lookup tables.
type Loader struct {
	model *model.Model
	log   *log.Logger

	cardsByPattern map[string]*model.Card
	entriesByName  map[string]*model.Entry
	elementsByID   map[string]elementRef

	errs []error
}

// New returns a Loader that populates a fresh Model.
func New(logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}

	return &Loader{
		model:          model.New(),
		log:            logger.With("component", "config"),
		cardsByPattern: make(map[string]*model.Card),
		entriesByName:  make(map[string]*model.Entry),
		elementsByID:   make(map[string]elementRef),
	}
}

// Load reads and parses the file at path.
func Load(path string, logger *log.Logger) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	return New(logger).parse(f)
}

// LoadReader parses configuration text from r, for use by tests that
// don't want to round-trip through the filesystem.
func LoadReader(r io.Reader, logger *log.Logger) (*model.Model, error) {
	return New(logger).parse(r)
}

// parse scans r line by line, accumulating every ConfigError it finds
// rather than stopping at the first one, matching the source's
// parse-the-whole-file-then-fail behavior.
func (l *Loader) parse(r io.Reader) (*model.Model, error) {
	scanner := bufio.NewScanner(r)

	var (
		section sectionType
		elem    *elemDef
	)

	lineno := 0

	for scanner.Scan() {
		lineno++

		line, unterminated, err := preprocess(scanner.Text())
		if err != nil {
			l.fail(lineno, err.Error())

			continue
		}

		if unterminated {
			l.log.Warn(fmt.Sprintf("unterminated quoted string %q in line %d", scanner.Text(), lineno), "kind", "ConfigWarning")
		}

		if line == "" {
			continue
		}

		if newSection, ok := sectionHeaders[line]; ok {
			l.closeControlSection(section, elem)

			section = newSection
			if section == sectionControl {
				elem = &elemDef{index: model.Unbound, dev: model.Unbound, subdev: model.Unbound, startLine: lineno}
			} else {
				elem = nil
			}

			continue
		}

		if strings.HasPrefix(line, "[") {
			l.fail(lineno, fmt.Sprintf("invalid section header %q", line))

			continue
		}

		switch section {
		case sectionControl:
			l.parseControlLine(lineno, line, elem)
		case sectionSink, sectionSource, sectionContext:
			l.parseRouteLine(lineno, line, ruleTypeBySection[section])
		case sectionDefault:
			l.parseDefaultLine(lineno, line)
		default:
			l.fail(lineno, "definition outside of any section")
		}
	}

	l.closeControlSection(section, elem)

	if err := scanner.Err(); err != nil {
		l.fail(lineno, fmt.Sprintf("reading config: %s", err))
	}

	if len(l.errs) > 0 {
		return nil, errors.Join(l.errs...)
	}

	return l.model, nil
}

// preprocess strips blanks outside quotes, truncates at an unquoted '#',
// and rejects control characters, mirroring the source's
// preprocess_buffer. The second return value reports whether the line
// ended with an open quote still pending, a non-fatal condition the
// source logs with log_warning rather than treating as a parse error.
func preprocess(raw string) (string, bool, error) {
	var b strings.Builder

	quote := false

	for _, c := range raw {
		if !quote && (c == ' ' || c == '\t') {
			continue
		}

		if !quote && c == '#' {
			break
		}

		if c == '"' {
			quote = !quote

			continue
		}

		if c < 0x20 {
			return "", false, fmt.Errorf("illegal character %#02x", c)
		}

		b.WriteRune(c)
	}

	return b.String(), quote, nil
}

func (l *Loader) fail(lineno int, reason string) {
	err := &ConfigError{Line: lineno, Reason: reason}
	l.log.Error(err.Error(), "kind", "ConfigError")
	l.errs = append(l.errs, err)
}

// closeControlSection defines the accumulated control element, if the
// section being left was [control].
func (l *Loader) closeControlSection(section sectionType, elem *elemDef) {
	if section != sectionControl || elem == nil {
		return
	}

	l.defineElem(elem)
}

func (l *Loader) parseControlLine(lineno int, line string, elem *elemDef) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		l.fail(lineno, fmt.Sprintf("invalid definition %q", line))

		return
	}

	switch key {
	case "id":
		elem.id = value
	case "card":
		elem.card = value
	case "interface":
		elem.ifname = value
	case "name":
		elem.name = value
	case "index":
		n, err := parseUint(value)
		if err != nil {
			l.fail(lineno, fmt.Sprintf("invalid number %q", value))

			return
		}

		elem.index = n
	case "device":
		n, err := parseUint(value)
		if err != nil {
			l.fail(lineno, fmt.Sprintf("invalid number %q", value))

			return
		}

		elem.dev = n
	case "sub-device":
		n, err := parseUint(value)
		if err != nil {
			l.fail(lineno, fmt.Sprintf("invalid number %q", value))

			return
		}

		elem.subdev = n
	default:
		l.fail(lineno, fmt.Sprintf("invalid key %q", key))
	}
}

func parseUint(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	return n, nil
}

// defineElem builds the Card/Element pair for one completed [control]
// section and registers it under its elemid.
func (l *Loader) defineElem(e *elemDef) {
	if e.id == "" {
		l.fail(e.startLine, "control definition is missing id")

		return
	}

	if e.card == "" {
		l.fail(e.startLine, "control definition is missing card")

		return
	}

	if _, exists := l.elementsByID[e.id]; exists {
		l.fail(e.startLine, fmt.Sprintf("attempt to redefine control %q", e.id))

		return
	}

	ifname := e.ifname
	if ifname == "" {
		ifname = "*"
	}

	name := e.name
	if name == "" {
		name = "*"
	}

	card := l.getOrCreateCard(e.card)
	elem := l.model.DefineElement(card, ifname, name, e.index, e.dev, e.subdev)

	l.elementsByID[e.id] = elementRef{card: card, elem: elem}
}

// getOrCreateCard returns the Card matching namePattern, defining one
// (with a wildcard id — this grammar has no separate card-id field) the
// first time a given pattern is seen.
func (l *Loader) getOrCreateCard(namePattern string) *model.Card {
	if card, ok := l.cardsByPattern[namePattern]; ok {
		return card
	}

	card := l.model.DefineCard("*", namePattern)
	l.cardsByPattern[namePattern] = card

	return card
}

// getOrCreateEntry returns the Entry named name, defining it the first
// time it's referenced from any of the three routing sections.
func (l *Loader) getOrCreateEntry(name string) *model.Entry {
	if entry, ok := l.entriesByName[name]; ok {
		return entry
	}

	entry, err := l.model.DefineEntry(name)
	if err != nil {
		// Can't happen given the dedup above, but fall back to the
		// existing entry rather than losing the rules about to be
		// attached to it.
		entry, _ = l.model.Entry(name)
	}

	l.entriesByName[name] = entry

	return entry
}

const (
	outbandCancelToken = "@outband_cancellation@"
	outbandExecPrefix  = "@outband_execution@delay:"
	suspendPrefix      = "@suspend_execution@sleep:"
)

// parseRouteLine handles one line of [sink-route], [source-route] or
// [context]: entry=elemid:value, entry=@outband_execution@delay:N,
// entry=@outband_cancellation@, or entry=@suspend_execution@sleep:N.
func (l *Loader) parseRouteLine(lineno int, line string, ruleType model.RuleType) {
	entryName, rest, ok := strings.Cut(line, "=")
	if !ok {
		l.fail(lineno, fmt.Sprintf("invalid definition %q", line))

		return
	}

	if !entryNamePattern.MatchString(entryName) {
		l.fail(lineno, fmt.Sprintf("invalid entry id %q", entryName))

		return
	}

	entry := l.getOrCreateEntry(entryName)

	switch {
	case rest == outbandCancelToken:
		if _, err := l.model.DefineRuleOutband(entry, ruleType, -1, lineno); err != nil {
			l.fail(lineno, err.Error())
		}

	case strings.HasPrefix(rest, outbandExecPrefix):
		n, err := parseUint(strings.TrimPrefix(rest, outbandExecPrefix))
		if err != nil {
			l.fail(lineno, err.Error())

			return
		}

		if _, err := l.model.DefineRuleOutband(entry, ruleType, n, lineno); err != nil {
			l.fail(lineno, err.Error())
		}

	case strings.HasPrefix(rest, suspendPrefix):
		n, err := parseUint(strings.TrimPrefix(rest, suspendPrefix))
		if err != nil {
			l.fail(lineno, err.Error())

			return
		}

		if _, err := l.model.DefineRuleSuspend(entry, ruleType, n, lineno); err != nil {
			l.fail(lineno, err.Error())
		}

	default:
		elemid, value, ok := strings.Cut(rest, ":")
		if !ok {
			l.fail(lineno, fmt.Sprintf("invalid definition %q", line))

			return
		}

		ref, ok := l.elementsByID[elemid]
		if !ok {
			l.fail(lineno, fmt.Sprintf("unknown control %q", elemid))

			return
		}

		l.model.DefineRuleSetValue(entry, ruleType, ref.card, ref.elem, value, lineno)
	}
}

// parseDefaultLine handles one line of [default]: elemid:value, with no
// entry prefix.
func (l *Loader) parseDefaultLine(lineno int, line string) {
	elemid, value, ok := strings.Cut(line, ":")
	if !ok {
		l.fail(lineno, fmt.Sprintf("invalid definition %q", line))

		return
	}

	ref, ok := l.elementsByID[elemid]
	if !ok {
		l.fail(lineno, fmt.Sprintf("unknown control %q", elemid))

		return
	}

	l.model.DefineDefault(ref.card, ref.elem, value, lineno)
}
