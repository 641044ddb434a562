package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// csvDoc is a single-sheet UTF-8 CSV document built in memory.
type csvDoc struct {
	buf bytes.Buffer
	w   *csv.Writer
	rec []string
}

func newCSVDoc() *csvDoc {
	d := &csvDoc{}
	d.w = csv.NewWriter(&d.buf)
	return d
}

func (d *csvDoc) addRow(sheet int, cells []any) error {
	if sheet != 0 {
		return fmt.Errorf("csv: sheet %d out of range", sheet)
	}
	d.rec = d.rec[:0]
	for _, v := range cells {
		d.rec = append(d.rec, cellString(v))
	}
	return d.w.Write(d.rec)
}

func (d *csvDoc) bytes() ([]byte, error) {
	d.w.Flush()
	if err := d.w.Error(); err != nil {
		return nil, err
	}
	return append([]byte(nil), d.buf.Bytes()...), nil
}

func (d *csvDoc) close() error { return nil }

// cellString renders a cell for text containers. nil is empty.
func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
