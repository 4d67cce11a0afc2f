// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package nquads

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pdiddy/indexer/pkg/types"
)

// FormatTerm renders a term in N-Triples syntax.
func FormatTerm(t types.Term) string {
	switch t.Kind {
	case types.KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case types.KindBlank:
		return "_:" + t.Value
	case types.KindLiteral:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" && t.Datatype != types.XSDString {
			return s + "^^<" + escapeIRI(t.Datatype) + ">"
		}
		return s
	}
	return ""
}

// FormatFact renders one N-Triples statement without a trailing newline.
func FormatFact(f types.Fact) string {
	return FormatTerm(f.Subject) + " " + FormatTerm(f.Predicate) + " " + FormatTerm(f.Object) + " ."
}

// WriteFacts writes facts as canonical N-Triples: sorted, de-duplicated,
// one statement per line. Equal fact sets produce identical bytes.
func WriteFacts(w io.Writer, facts []types.Fact) error {
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, FormatFact(f))
	}
	return writeSorted(w, lines)
}

// WriteGraphs writes graphs as canonical N-Quads. Facts of the default
// graph (empty name) are written without a graph label.
func WriteGraphs(w io.Writer, graphs []types.Graph) error {
	var lines []string
	for _, g := range graphs {
		label := ""
		if g.Name != "" {
			if strings.HasPrefix(g.Name, "_:") {
				label = " " + g.Name
			} else {
				label = " <" + escapeIRI(g.Name) + ">"
			}
		}
		for _, f := range g.Facts {
			lines = append(lines, FormatTerm(f.Subject)+" "+FormatTerm(f.Predicate)+" "+FormatTerm(f.Object)+label+" .")
		}
	}
	return writeSorted(w, lines)
}

// Marshal returns the canonical N-Triples form of facts.
func Marshal(facts []types.Fact) []byte {
	var b strings.Builder
	_ = WriteFacts(&b, facts)
	return []byte(b.String())
}

func writeSorted(w io.Writer, lines []string) error {
	sort.Strings(lines)
	bw := bufio.NewWriter(w)
	prev := ""
	for i, l := range lines {
		if i > 0 && l == prev {
			continue
		}
		prev = l
		if _, err := bw.WriteString(l); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func escapeLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r <= 0x20, r == '<', r == '>', r == '"', r == '{', r == '}', r == '|', r == '^', r == '`', r == '\\':
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
