package output

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is the spreadsheet limit on sheet name length, in characters.
const maxSheetName = 31

// workbook streams rows into one excelize file, one StreamWriter per sheet.
// Rows of a sheet must arrive in order; sheets may interleave.
type workbook struct {
	f       *excelize.File
	streams []*excelize.StreamWriter
	next    []int
}

func newWorkbook(names []string) (*workbook, error) {
	f := excelize.NewFile()
	wb := &workbook{f: f}
	for i, name := range names {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		sw, err := f.NewStreamWriter(name)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("stream %q: %w", name, err)
		}
		wb.streams = append(wb.streams, sw)
		wb.next = append(wb.next, 1)
	}
	f.SetActiveSheet(0)
	return wb, nil
}

func (wb *workbook) addRow(sheet int, cells []any) error {
	if sheet < 0 || sheet >= len(wb.streams) {
		return fmt.Errorf("xlsx: sheet %d out of range", sheet)
	}
	cell, err := excelize.CoordinatesToCellName(1, wb.next[sheet])
	if err != nil {
		return err
	}
	if err := wb.streams[sheet].SetRow(cell, cells); err != nil {
		return err
	}
	wb.next[sheet]++
	return nil
}

func (wb *workbook) bytes() ([]byte, error) {
	for _, sw := range wb.streams {
		if err := sw.Flush(); err != nil {
			return nil, err
		}
	}
	buf, err := wb.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (wb *workbook) close() error { return wb.f.Close() }

// sanitizeSheetNames makes names acceptable as sheet names: no []:*?/\
// characters, no leading or trailing apostrophe, at most 31 characters, and
// unique ignoring case. Names are sanitized for every format so filenames and
// sheet names agree.
func sanitizeSheetNames(sheets []Sheet) []Sheet {
	out := make([]Sheet, len(sheets))
	used := map[string]bool{}
	for i, s := range sheets {
		name := s.Name
		if strings.TrimSpace(name) == "" {
			name = s.Entity.Label()
		}
		name = strings.Map(func(r rune) rune {
			switch r {
			case '[', ']', ':', '*', '?', '/', '\\':
				return '-'
			}
			return r
		}, name)
		name = strings.Trim(name, "' \t\r\n")
		if name == "" {
			name = s.Entity.Label()
		}
		name = strings.TrimRight(truncate(name, maxSheetName), "' ")
		base := name
		for n := 2; used[strings.ToLower(name)]; n++ {
			suffix := fmt.Sprintf(" (%d)", n)
			name = truncate(base, maxSheetName-len(suffix)) + suffix
		}
		used[strings.ToLower(name)] = true
		s.Name = name
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
