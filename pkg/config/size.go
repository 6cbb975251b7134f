package config

import (
	"fmt"
	"strings"
)

// ByteSize is a byte count that YAML and environment values may spell as
// "100MB" or "1.5GB"
type ByteSize int64

// UnmarshalYAML accepts a plain integer or a size string
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	size, err := ParseSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// String formats the size for logs
func (b ByteSize) String() string {
	return FormatSize(int64(b))
}

// ParseSize parses a size string (e.g., "100MB", "1GB") into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("size string is empty")
	}

	var number float64
	var unit string
	n, err := fmt.Sscanf(sizeStr, "%f%s", &number, &unit)
	if n < 1 || (err != nil && n != 1) {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}
	if n == 1 {
		unit = "B"
	}
	if number < 0 {
		return 0, fmt.Errorf("negative size: %s", sizeStr)
	}

	switch strings.ToUpper(unit) {
	case "B":
		return int64(number), nil
	case "KB", "K":
		return int64(number * 1024), nil
	case "MB", "M":
		return int64(number * 1024 * 1024), nil
	case "GB", "G":
		return int64(number * 1024 * 1024 * 1024), nil
	case "TB", "T":
		return int64(number * 1024 * 1024 * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown size unit: %s", unit)
	}
}

// FormatSize formats bytes into a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
