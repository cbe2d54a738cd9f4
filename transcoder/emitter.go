package transcoder

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
)

// emitter serialises write events. It tracks open elements itself so an
// element end needs no name, and so unbalanced output is caught before the
// document is returned.
type emitter struct {
	buf  bytes.Buffer
	enc  *xml.Encoder
	open []string
}

func newEmitter() *emitter {
	e := &emitter{}
	e.enc = xml.NewEncoder(&e.buf)
	return e
}

func (e *emitter) write(ev WriteEvent) error {
	switch ev.Kind {
	case WriteDocumentStart:
		standalone := "no"
		if ev.Standalone {
			standalone = "yes"
		}
		inst := fmt.Sprintf(`version="%s" encoding="%s" standalone="%s"`, ev.Version, ev.Encoding, standalone)
		return e.enc.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(inst)})

	case WriteStartElement:
		e.open = append(e.open, ev.Name)
		return e.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: ev.Name}, Attr: ev.Attrs})

	case WriteText:
		return e.enc.EncodeToken(xml.CharData(ev.Text))

	case WriteRaw:
		if err := e.enc.Flush(); err != nil {
			return err
		}
		_, err := e.buf.WriteString(ev.Text)
		return err

	case WriteEndElement:
		if len(e.open) == 0 {
			return errors.New("element end without an open element")
		}
		name := e.open[len(e.open)-1]
		e.open = e.open[:len(e.open)-1]
		return e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})

	default:
		return fmt.Errorf("unknown write event kind %d", ev.Kind)
	}
}

// finish returns the serialised document.
func (e *emitter) finish() (string, error) {
	if len(e.open) > 0 {
		return "", fmt.Errorf("unclosed element <%s>", e.open[len(e.open)-1])
	}
	if err := e.enc.Close(); err != nil {
		return "", err
	}
	return e.buf.String(), nil
}
