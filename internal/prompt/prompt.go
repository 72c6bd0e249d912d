package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/chunk"
)

// Protocol selects the structured format each per-record answer must use.
type Protocol string

const (
	ProtocolJSON  Protocol = "json"
	ProtocolTable Protocol = "table"
)

// ParseProtocol maps a configuration value to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolJSON, ProtocolTable:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol %q (supported: json, table)", s)
	}
}

// Envelope is the compiled request for one chunk.
type Envelope struct {
	Instructions string
	Delimiter    string
	Payload      string
	Records      int
}

// Text renders the full request sent to the model gateway.
func (e Envelope) Text() string {
	return e.Instructions + "\n\n" + e.Payload
}

// Compiler builds envelopes. The zero Preamble uses defaultPreamble.
type Compiler struct {
	Items     []string
	Delimiter string
	Protocol  Protocol
	Keyed     bool
	Preamble  string
}

// Validate rejects compilers that cannot produce a usable request.
func (c Compiler) Validate() error {
	if len(c.Items) == 0 {
		return errors.New("prompt: at least one item is required")
	}
	if strings.TrimSpace(c.Delimiter) == "" {
		return errors.New("prompt: delimiter is required")
	}
	if _, err := ParseProtocol(string(c.Protocol)); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

// Compile builds the envelope for ch, reading each record's text from field.
// Record text is only trimmed; it is never rewritten.
func (c Compiler) Compile(ch chunk.Chunk, field string) Envelope {
	texts := make([]string, len(ch.Records))
	for i, rec := range ch.Records {
		text := strings.TrimSpace(rec.Field(field))
		if c.Keyed {
			text = fmt.Sprintf("%s %s", Marker(i+1), text)
		}
		texts[i] = text
	}

	return Envelope{
		Instructions: c.instructions(len(ch.Records)),
		Delimiter:    c.Delimiter,
		Payload:      strings.Join(texts, "\n"+c.Delimiter+"\n"),
		Records:      len(ch.Records),
	}
}

// Marker is the per-record tag used in keyed mode. Positions are 1-based within the chunk.
func Marker(position int) string {
	return fmt.Sprintf("[#%d]", position)
}

func (c Compiler) instructions(n int) string {
	preamble := c.Preamble
	if preamble == "" {
		preamble = defaultPreamble
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(preamble))
	fmt.Fprintf(&sb, "\n\nEvaluate each of the %d entries below against these items:\n", n)
	for _, item := range c.Items {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	sb.WriteString("\n")

	switch c.Protocol {
	case ProtocolTable:
		fmt.Fprintf(&sb, tableInstructions, tableHeader(c.Items))
	default:
		fmt.Fprintf(&sb, jsonInstructions, quotedList(c.Items))
		if c.Keyed {
			sb.WriteString(keyedInstructions)
		}
	}

	fmt.Fprintf(&sb, separatorInstructions, c.Delimiter)
	sb.WriteString("\nExample:\n")
	example := c.example()
	sb.WriteString(example)
	fmt.Fprintf(&sb, "\n%s\n", c.Delimiter)
	sb.WriteString(example)
	sb.WriteString("\n\nEntries:")
	return sb.String()
}

func (c Compiler) example() string {
	if c.Protocol == ProtocolTable {
		row := make([]string, len(c.Items))
		for i := range row {
			row[i] = "..."
		}
		return tableHeader(c.Items) + "\n" + tableRule(len(c.Items)) + "\n| " + strings.Join(row, " | ") + " |"
	}
	pairs := make([]string, 0, len(c.Items)+1)
	if c.Keyed {
		pairs = append(pairs, `"record": 1`)
	}
	for _, item := range c.Items {
		pairs = append(pairs, fmt.Sprintf("%q: \"...\"", item))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func quotedList(items []string) string {
	q := make([]string, len(items))
	for i, item := range items {
		q[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(q, ", ")
}

func tableHeader(items []string) string {
	return "| " + strings.Join(items, " | ") + " |"
}

func tableRule(n int) string {
	return "|" + strings.Repeat("---|", n)
}
