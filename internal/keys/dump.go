package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HexDump formats data as 16-byte rows with an ASCII gutter.
func HexDump(data []byte) string {
	var sb strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := min(i+16, len(data))
		fmt.Fprintf(&sb, "%04X: ", i)
		for j := i; j < end; j++ {
			fmt.Fprintf(&sb, "%02X ", data[j])
		}
		sb.WriteString(strings.Repeat("   ", 16-(end-i)))
		sb.WriteString(" |")
		for j := i; j < end; j++ {
			if b := data[j]; b >= 32 && b <= 126 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SaveReport writes a capture of report into dir and returns its path.
func SaveReport(dir string, report []byte, now time.Time) (string, error) {
	if len(report) == 0 {
		return "", errors.New("report is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	full := filepath.Join(dir, fmt.Sprintf("hid_report_%s.txt", now.Format("20060102-150405")))
	body := fmt.Sprintf("# HID report captured %s\nlen=%d bytes\n\n%s\n\nraw=%s\n",
		now.Format(time.RFC3339), len(report), HexDump(report), strings.ToUpper(hex.EncodeToString(report)))
	if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
		return "", err
	}
	return full, nil
}
