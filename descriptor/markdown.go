package descriptor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Markdown section headings. The parser matches them case-insensitively.
const (
	headingPrefix      = "# Integration: "
	sectionAssembly    = "Assembly"
	sectionChannels    = "Events / Channels"
	sectionCells       = "State Cells"
	sectionRegistries  = "Registries"
	sectionCapability  = "Capability Contracts"
	sectionExamples    = "Integration Examples"
	noExamplesSentence = "_No examples._"
)

// WriteMarkdown renders a normalized copy of d in the canonical descriptor
// layout. Table cells escape '|' and '\' with a backslash and encode newlines
// as <br>; suggested listeners are comma separated with literal commas
// escaped. Example code is written with LF line endings.
func WriteMarkdown(w io.Writer, d *Descriptor) error {
	if d == nil {
		return ErrNilDescriptor
	}
	d = d.Clone()
	d.Normalize()

	var md strings.Builder

	fmt.Fprintf(&md, "%s%s\n\n", headingPrefix, d.ModuleID)

	fmt.Fprintf(&md, "## %s\n\n", sectionAssembly)
	writeTable(&md, []string{"Field", "Value"}, [][]string{
		{"Name", d.Assembly.Name},
		{"Version", d.Assembly.Version},
		{"Import Path", d.Assembly.ImportPath},
	})

	if len(d.Channels) > 0 {
		rows := make([][]string, 0, len(d.Channels))
		for _, c := range d.Channels {
			rows = append(rows, []string{c.Name, c.PayloadType, c.Trigger, joinListeners(c.SuggestedListeners)})
		}
		fmt.Fprintf(&md, "## %s\n\n", sectionChannels)
		writeTable(&md, []string{"Name", "Payload Type", "Trigger", "Suggested Listeners"}, rows)
	}

	if len(d.Cells) > 0 {
		rows := make([][]string, 0, len(d.Cells))
		for _, c := range d.Cells {
			rows = append(rows, []string{c.Name, c.Type, c.Purpose})
		}
		fmt.Fprintf(&md, "## %s\n\n", sectionCells)
		writeTable(&md, []string{"Name", "Type", "Purpose"}, rows)
	}

	if len(d.Registries) > 0 {
		rows := make([][]string, 0, len(d.Registries))
		for _, r := range d.Registries {
			rows = append(rows, []string{r.Name, r.ItemType, r.Purpose})
		}
		fmt.Fprintf(&md, "## %s\n\n", sectionRegistries)
		writeTable(&md, []string{"Name", "Item Type", "Purpose"}, rows)
	}

	if len(d.Capabilities) > 0 {
		rows := make([][]string, 0, len(d.Capabilities))
		for _, c := range d.Capabilities {
			rows = append(rows, []string{c.Name, c.Purpose, c.WhenToImplement})
		}
		fmt.Fprintf(&md, "## %s\n\n", sectionCapability)
		writeTable(&md, []string{"Name", "Purpose", "When To Implement"}, rows)
	}

	fmt.Fprintf(&md, "## %s\n\n", sectionExamples)
	if len(d.Examples) == 0 {
		md.WriteString(noExamplesSentence + "\n")
	}
	for i, e := range d.Examples {
		if i > 0 {
			md.WriteString("\n")
		}
		fence := codeFence(e.Code)
		fmt.Fprintf(&md, "### %s\n\n%sgo\n", e.Title, fence)
		if e.Code != "" {
			md.WriteString(e.Code)
			md.WriteString("\n")
		}
		md.WriteString(fence + "\n")
	}

	_, err := io.WriteString(w, md.String())
	return err
}

// MarshalMarkdown returns the Markdown rendering of d.
func MarshalMarkdown(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTable(md *strings.Builder, header []string, rows [][]string) {
	md.WriteString("| " + strings.Join(header, " | ") + " |\n")
	md.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = escapeCell(c)
		}
		md.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	md.WriteString("\n")
}

func escapeCell(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' || s[i] == '|':
			b.WriteByte('\\')
			b.WriteByte(s[i])
		case s[i] == '\n':
			b.WriteString("<br>")
		case strings.HasPrefix(s[i:], "<br>"):
			b.WriteString(`\<`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func unescapeCell(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case strings.HasPrefix(s[i:], "<br>"):
			b.WriteByte('\n')
			i += len("<br>") - 1
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func unescapeBackslash(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func joinListeners(listeners []string) string {
	escaped := make([]string, len(listeners))
	for i, l := range listeners {
		l = strings.ReplaceAll(l, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(l, ",", `\,`)
	}
	return strings.Join(escaped, ", ")
}

// splitListeners parses a raw table cell produced by joinListeners.
func splitListeners(raw string) []string {
	var out []string
	for _, part := range splitEscaped(unescapeCell(raw), ',') {
		part = strings.TrimSpace(unescapeBackslash(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitEscaped splits s on sep bytes that are not preceded by a backslash
// escape. Escape sequences are kept in the returned pieces.
func splitEscaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func codeFence(code string) string {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// ParseMarkdown reads a descriptor in the canonical layout. Unknown sections
// and prose between tables are ignored; table columns are matched by header
// name, so column order is not significant.
func ParseMarkdown(r io.Reader) (*Descriptor, error) {
	p := &markdownParser{d: &Descriptor{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := p.line(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p.fence != "" {
		return nil, fmt.Errorf("%w: unterminated code block in example %q", ErrMalformedMarkdown, p.example.Title)
	}
	if !p.sawHeading {
		return nil, fmt.Errorf("%w: missing %q heading", ErrMalformedMarkdown, strings.TrimSpace(headingPrefix))
	}
	p.flushExample()
	p.d.Normalize()
	return p.d, nil
}

// UnmarshalMarkdown parses data with ParseMarkdown.
func UnmarshalMarkdown(data []byte) (*Descriptor, error) {
	return ParseMarkdown(bytes.NewReader(data))
}

type markdownParser struct {
	d          *Descriptor
	sawHeading bool
	section    string
	columns    map[string]int
	// bodyRows counts rows read since the header row; only the first may be
	// the delimiter row.
	bodyRows int

	example   *Example
	fence     string
	codeLines []string
}

func (p *markdownParser) line(raw string) error {
	if p.fence != "" {
		if strings.TrimSpace(raw) == p.fence {
			p.example.Code = strings.Join(p.codeLines, "\n")
			p.fence, p.codeLines = "", nil
			return nil
		}
		p.codeLines = append(p.codeLines, raw)
		return nil
	}

	line := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(line, "### "):
		if p.section == sectionExamples {
			p.flushExample()
			p.example = &Example{Title: strings.TrimSpace(line[4:])}
		}
	case strings.HasPrefix(line, "## "):
		p.flushExample()
		p.section = canonicalSection(strings.TrimSpace(line[3:]))
		p.columns, p.bodyRows = nil, 0
	case strings.HasPrefix(line, "# "):
		title := strings.TrimSpace(line[2:])
		name, ok := cutPrefixFold(title, strings.TrimSpace(headingPrefix[2:]))
		if !ok {
			return fmt.Errorf("%w: unexpected heading %q", ErrMalformedMarkdown, line)
		}
		p.d.ModuleID = strings.TrimSpace(name)
		p.sawHeading = true
	case strings.HasPrefix(line, "```"):
		if p.section != sectionExamples || p.example == nil {
			return fmt.Errorf("%w: code block outside an example", ErrMalformedMarkdown)
		}
		p.fence = line[:len(line)-len(strings.TrimLeft(line, "`"))]
		p.codeLines = nil
	case strings.HasPrefix(line, "|"):
		return p.row(line)
	}
	return nil
}

func (p *markdownParser) row(line string) error {
	parts := splitEscaped(line, '|')
	// Leading and trailing pipes leave empty outer pieces.
	if len(parts) < 3 {
		return fmt.Errorf("%w: short table row %q", ErrMalformedMarkdown, line)
	}
	parts = parts[1 : len(parts)-1]
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if p.columns == nil {
		p.columns = make(map[string]int, len(parts))
		for i, h := range parts {
			p.columns[strings.ToLower(h)] = i
		}
		p.bodyRows = 0
		return nil
	}
	p.bodyRows++
	if p.bodyRows == 1 && isSeparatorRow(parts) {
		return nil
	}

	cell := func(name string) string {
		i, ok := p.columns[name]
		if !ok || i >= len(parts) {
			return ""
		}
		return unescapeCell(parts[i])
	}

	switch p.section {
	case sectionAssembly:
		switch strings.ToLower(cell("field")) {
		case "name":
			p.d.Assembly.Name = cell("value")
		case "version":
			p.d.Assembly.Version = cell("value")
		case "import path":
			p.d.Assembly.ImportPath = cell("value")
		}
	case sectionChannels:
		var listeners []string
		if i, ok := p.columns["suggested listeners"]; ok && i < len(parts) {
			listeners = splitListeners(parts[i])
		}
		p.d.Channels = append(p.d.Channels, ChannelEntry{
			Name:               cell("name"),
			PayloadType:        cell("payload type"),
			Trigger:            cell("trigger"),
			SuggestedListeners: listeners,
		})
	case sectionCells:
		p.d.Cells = append(p.d.Cells, CellEntry{Name: cell("name"), Type: cell("type"), Purpose: cell("purpose")})
	case sectionRegistries:
		p.d.Registries = append(p.d.Registries, RegistryEntry{Name: cell("name"), ItemType: cell("item type"), Purpose: cell("purpose")})
	case sectionCapability:
		p.d.Capabilities = append(p.d.Capabilities, CapabilityEntry{
			Name:            cell("name"),
			Purpose:         cell("purpose"),
			WhenToImplement: cell("when to implement"),
		})
	}
	return nil
}

func (p *markdownParser) flushExample() {
	if p.example != nil {
		p.d.Examples = append(p.d.Examples, *p.example)
		p.example = nil
	}
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" || strings.Trim(c, "-:") != "" {
			return false
		}
	}
	return true
}

func canonicalSection(title string) string {
	for _, s := range []string{sectionAssembly, sectionChannels, sectionCells, sectionRegistries, sectionCapability, sectionExamples} {
		if strings.EqualFold(title, s) {
			return s
		}
	}
	return title
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
