package texttemplar

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Line-oriented template engine with HTML::Template style directives.
// Supported:
// - <TMPL_VAR NAME=x>
// - <TMPL_LOOP NAME=x> ... </TMPL_LOOP>
// - <TMPL_IF NAME=x> ... <TMPL_ELSE> ... </TMPL_IF>
// - <TMPL_IF COND="expr"> ... </TMPL_IF>
// A template is parsed once into a Document; the Document's structure is
// immutable afterwards and can be rendered any number of times.

// -----------------------------
// Tag patterns
// -----------------------------

// Tags are matched within a single line only ([ \t], never \s, so a tag can
// never span a line break). Names are bare or quoted word characters, with
// an optional NAME= attribute prefix, all case-insensitive.
var (
	rxVar       = regexp.MustCompile(`(?i)<TMPL_VAR[ \t]+(?:NAME[ \t]*=[ \t]*)?["']?(\w+)["']?[ \t]*>`)
	rxLoopOpen  = regexp.MustCompile(`(?i)<TMPL_LOOP[ \t]+(?:NAME[ \t]*=[ \t]*)?["']?(\w+)["']?[ \t]*>`)
	rxLoopClose = regexp.MustCompile(`(?i)</TMPL_LOOP[ \t]*>`)
	rxIfOpen    = regexp.MustCompile(`(?i)<TMPL_IF[ \t]+(?:COND[ \t]*=[ \t]*"([^"]+)"|(?:NAME[ \t]*=[ \t]*)?["']?(\w+)["']?)[ \t]*>`)
	rxIfClose   = regexp.MustCompile(`(?i)</TMPL_IF[ \t]*>`)
	rxElse      = regexp.MustCompile(`(?i)<TMPL_ELSE[ \t]*>`)
)

// varPattern builds the substitution pattern for one scalar name. Rendering
// re-matches the tag instead of remembering byte offsets, so several
// occurrences of the same name on one line all get replaced.
func varPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<TMPL_VAR[ \t]+(?:NAME[ \t]*=[ \t]*)?["']?` + regexp.QuoteMeta(name) + `["']?[ \t]*>`)
}

// -----------------------------
// Document
// -----------------------------

type docLine struct {
	text string
	// skipped lines were absorbed into a multi-line block body and are
	// elided from the rendered output.
	skipped bool
}

// placeholder tracks where one scalar name must be substituted.
type placeholder struct {
	lines []int
	rx    *regexp.Regexp
}

// blockSite is one occurrence of a loop block: the line holding its marker
// and the recursively parsed body.
type blockSite struct {
	line   int
	marker string
	body   *Document
}

// condSite is one occurrence of a conditional block. Either name (truthiness
// of a parameter) or cond (an expression source) is set, never both.
type condSite struct {
	line   int
	marker string
	name   string
	cond   string
	then   *Document
	els    *Document
}

// Document is the parsed, reusable representation of one template (or of
// one block body). Lines, placeholders, blocks and conds never change after
// Parse; only the parameter store is mutable.
type Document struct {
	lines        []docLine
	placeholders map[string]*placeholder
	blocks       map[string][]*blockSite
	blockNames   []string // insertion order of block names
	conds        []*condSite
	store        *paramStore

	strict   bool
	maxDepth int
	logger   *slog.Logger

	nextMarker int
}

// Parse parses a template source into a Document. The source is split on
// newlines; ParseLines accepts pre-split input.
func Parse(src string, opts ...Option) (*Document, error) {
	return ParseLines(strings.Split(src, "\n"), opts...)
}

// ParseLines parses an ordered sequence of lines into a Document.
func ParseLines(lines []string, opts ...Option) (*Document, error) {
	s := settings{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.legacy {
		expanded := make([]string, len(lines))
		for i, ln := range lines {
			expanded[i] = ExpandLegacyVars(ln)
		}
		lines = expanded
	}
	d, err := parseLines(lines, 0, s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("template parsed",
			"lines", len(d.lines),
			"vars", len(d.placeholders),
			"loops", len(d.blocks),
			"conds", len(d.conds))
	}
	return d, nil
}

func parseLines(lines []string, depth int, cfg Config, logger *slog.Logger) (*Document, error) {
	if depth > cfg.MaxDepth {
		return nil, NewStructuralError(fmt.Sprintf("block nesting exceeds maximum depth %d", cfg.MaxDepth), 0)
	}
	d := &Document{
		lines:        make([]docLine, len(lines)),
		placeholders: map[string]*placeholder{},
		blocks:       map[string][]*blockSite{},
		store:        newParamStore(cfg.Strict),
		strict:       cfg.Strict,
		maxDepth:     cfg.MaxDepth,
		logger:       logger,
	}
	for i, ln := range lines {
		d.lines[i] = docLine{text: ln}
	}

	for i := 0; i < len(d.lines); i++ {
		if d.lines[i].skipped {
			continue
		}
		if err := d.parseLine(i, depth, cfg); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// parseLine handles one line: extract every block starting on it (bodies may
// consume following lines), then index the remaining scalar tags.
func (d *Document) parseLine(i, depth int, cfg Config) error {
	next := i + 1 // next line available for multi-line bodies
	for {
		line := d.lines[i].text
		start, ok := nextBlockStart(line)
		if !ok {
			break
		}
		buf := line[start.end:]
		body, leftover, found := extractBlock(buf, start.open, start.close)
		for !found {
			if next >= len(d.lines) {
				return NewStructuralError(fmt.Sprintf("unmatched %s tag %q", start.kind, start.label), i+1)
			}
			buf += "\n" + d.lines[next].text
			d.lines[next].skipped = true
			next++
			body, leftover, found = extractBlock(buf, start.open, start.close)
		}

		marker := "\x00" + start.label + "#" + strconv.Itoa(d.nextMarker) + "\x00"
		d.nextMarker++

		if start.kind == tagLoop {
			nested, err := parseLines(strings.Split(body, "\n"), depth+1, cfg, d.logger)
			if err != nil {
				return err
			}
			name := strings.ToLower(start.label)
			if _, seen := d.blocks[name]; !seen {
				d.blockNames = append(d.blockNames, name)
			}
			d.blocks[name] = append(d.blocks[name], &blockSite{line: i, marker: marker, body: nested})
			d.store.declare(name)
		} else {
			thenBody, elseBody, hasElse := splitElse(body)
			thenDoc, err := parseLines(strings.Split(thenBody, "\n"), depth+1, cfg, d.logger)
			if err != nil {
				return err
			}
			site := &condSite{line: i, marker: marker, name: strings.ToLower(start.name), cond: start.cond, then: thenDoc}
			if hasElse {
				site.els, err = parseLines(strings.Split(elseBody, "\n"), depth+1, cfg, d.logger)
				if err != nil {
					return err
				}
			}
			d.conds = append(d.conds, site)
			if site.name != "" {
				d.store.declare(site.name)
			}
			// Branches share the enclosing scope, so every name a branch
			// declares is settable here and propagated down at render time.
			for name := range site.then.store.known {
				d.store.declare(name)
			}
			if site.els != nil {
				for name := range site.els.store.known {
					d.store.declare(name)
				}
			}
		}

		d.lines[i].text = line[:start.pos] + marker + leftover
	}

	// Scalar tags on the (possibly rewritten) line.
	for _, m := range rxVar.FindAllStringSubmatch(d.lines[i].text, -1) {
		name := strings.ToLower(m[1])
		ph, ok := d.placeholders[name]
		if !ok {
			ph = &placeholder{rx: varPattern(name)}
			d.placeholders[name] = ph
		}
		ph.lines = append(ph.lines, i)
		d.store.declare(name)
	}
	return nil
}

// -----------------------------
// Block scanning and extraction
// -----------------------------

type tagKind string

const (
	tagLoop tagKind = "TMPL_LOOP"
	tagIf   tagKind = "TMPL_IF"
)

type blockStart struct {
	kind  tagKind
	pos   int    // start of the tag in the line
	end   int    // end of the tag in the line
	name  string // NAME form (loops always have one)
	cond  string // COND form of TMPL_IF
	label string // name for markers and error messages
	open  *regexp.Regexp
	close *regexp.Regexp
}

// nextBlockStart returns the leftmost loop or conditional start tag on the
// line, if any.
func nextBlockStart(line string) (blockStart, bool) {
	var best blockStart
	found := false

	if m := rxLoopOpen.FindStringSubmatchIndex(line); m != nil {
		best = blockStart{
			kind:  tagLoop,
			pos:   m[0],
			end:   m[1],
			name:  line[m[2]:m[3]],
			label: line[m[2]:m[3]],
			open:  rxLoopOpen,
			close: rxLoopClose,
		}
		found = true
	}
	if m := rxIfOpen.FindStringSubmatchIndex(line); m != nil && (!found || m[0] < best.pos) {
		bs := blockStart{kind: tagIf, pos: m[0], end: m[1], open: rxIfOpen, close: rxIfClose}
		if m[2] >= 0 {
			bs.cond = line[m[2]:m[3]]
			bs.label = "if"
		} else {
			bs.name = line[m[4]:m[5]]
			bs.label = bs.name
		}
		best = bs
		found = true
	}
	return best, found
}

// extractBlock finds the end tag matching the start tag that immediately
// precedes buf. Candidate end tags are tried from the rightmost backwards
// and the first one whose preceding text is a well-balanced sub-document
// wins. Re-scanning the prefix per candidate is quadratic in the worst
// case; block bodies are small in practice.
func extractBlock(buf string, openRx, closeRx *regexp.Regexp) (body, leftover string, ok bool) {
	ends := closeRx.FindAllStringIndex(buf, -1)
	for i := len(ends) - 1; i >= 0; i-- {
		prefix := buf[:ends[i][0]]
		if wellBalanced(prefix, openRx, closeRx) {
			return prefix, buf[ends[i][1]:], true
		}
	}
	return "", "", false
}

// wellBalanced reports whether s contains start and end tags in matching
// pairs: equal counts, and no end tag before its start tag.
func wellBalanced(s string, openRx, closeRx *regexp.Regexp) bool {
	opens := openRx.FindAllStringIndex(s, -1)
	closes := closeRx.FindAllStringIndex(s, -1)
	if len(opens) != len(closes) {
		return false
	}
	depth, oi, ci := 0, 0, 0
	for oi < len(opens) || ci < len(closes) {
		if ci >= len(closes) || (oi < len(opens) && opens[oi][0] < closes[ci][0]) {
			depth++
			oi++
		} else {
			depth--
			ci++
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}

// splitElse splits a conditional body at its top-level TMPL_ELSE divider.
// An else tag belongs to this conditional only when the text before it is
// balanced with respect to both nested conditionals and nested loops.
func splitElse(body string) (thenBody, elseBody string, hasElse bool) {
	for _, m := range rxElse.FindAllStringIndex(body, -1) {
		prefix := body[:m[0]]
		if wellBalanced(prefix, rxIfOpen, rxIfClose) && wellBalanced(prefix, rxLoopOpen, rxLoopClose) {
			return prefix, body[m[1]:], true
		}
	}
	return body, "", false
}

// -----------------------------
// Shared-structure instances
// -----------------------------

// Instance returns a Document that shares all structural fields (lines,
// placeholder map, block table, conditionals) with d but owns fresh
// parameter stores throughout the tree. The structure is read-only after
// parsing, so instances may render concurrently; each instance's store must
// still not be written from two goroutines at once.
func (d *Document) Instance() *Document {
	nd := &Document{
		lines:        d.lines,
		placeholders: d.placeholders,
		blockNames:   d.blockNames,
		blocks:       make(map[string][]*blockSite, len(d.blocks)),
		conds:        make([]*condSite, len(d.conds)),
		store:        d.store.fresh(),
		strict:       d.strict,
		maxDepth:     d.maxDepth,
		logger:       d.logger,
	}
	for name, sites := range d.blocks {
		ns := make([]*blockSite, len(sites))
		for i, s := range sites {
			ns[i] = &blockSite{line: s.line, marker: s.marker, body: s.body.Instance()}
		}
		nd.blocks[name] = ns
	}
	for i, s := range d.conds {
		nc := &condSite{line: s.line, marker: s.marker, name: s.name, cond: s.cond, then: s.then.Instance()}
		if s.els != nil {
			nc.els = s.els.Instance()
		}
		nd.conds[i] = nc
	}
	return nd
}
