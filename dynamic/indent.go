package dynamic

import "bytes"

// indentBuffer is the output buffer shared by the JSON and text writers. An
// indent of -1 produces compact output. When comma is true, elements are
// separated by commas (JSON); otherwise they are separated by whitespace alone
// (text format).
type indentBuffer struct {
	bytes.Buffer
	indent int
	comma  bool
}

func (b *indentBuffer) start() error {
	if b.indent >= 0 {
		b.indent++
		return b.newLine(false)
	}
	return nil
}

func (b *indentBuffer) sep() error {
	if b.indent >= 0 {
		_, err := b.WriteString(": ")
		return err
	}
	return b.WriteByte(':')
}

func (b *indentBuffer) end() error {
	if b.indent >= 0 {
		b.indent--
		return b.newLine(false)
	}
	return nil
}

func (b *indentBuffer) maybeNext(first *bool) error {
	if *first {
		*first = false
		return nil
	}
	return b.next()
}

func (b *indentBuffer) next() error {
	if b.indent >= 0 {
		return b.newLine(b.comma)
	} else if b.comma {
		return b.WriteByte(',')
	}
	return b.WriteByte(' ')
}

func (b *indentBuffer) newLine(comma bool) error {
	if comma {
		if err := b.WriteByte(','); err != nil {
			return err
		}
	}
	if err := b.WriteByte('\n'); err != nil {
		return err
	}
	for i := 0; i < b.indent; i++ {
		if _, err := b.WriteString("  "); err != nil {
			return err
		}
	}
	return nil
}
