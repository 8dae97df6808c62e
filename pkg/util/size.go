package util

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable size string (e.g., "10MB", "1.5GB") into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Define size units
	units := map[string]int64{
		"B":   1,
		"KB":  1024,
		"KIB": 1024,
		"MB":  1024 * 1024,
		"MIB": 1024 * 1024,
		"GB":  1024 * 1024 * 1024,
		"GIB": 1024 * 1024 * 1024,
		"TB":  1024 * 1024 * 1024 * 1024,
		"TIB": 1024 * 1024 * 1024 * 1024,
	}

	// Try to find a unit suffix, longest match first so "KIB" wins over "B"
	var numberPart string
	var unitPart string

	for _, unit := range []string{"KIB", "MIB", "GIB", "TIB", "KB", "MB", "GB", "TB", "B"} {
		if strings.HasSuffix(sizeStr, unit) {
			numberPart = strings.TrimSuffix(sizeStr, unit)
			unitPart = unit
			break
		}
	}

	// No unit suffix means plain bytes
	if unitPart == "" {
		numberPart = sizeStr
		unitPart = "B"
	}

	numberPart = strings.TrimSpace(numberPart)
	value, err := strconv.ParseFloat(numberPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", numberPart, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}

	return int64(value * float64(units[unitPart])), nil
}

// FormatBytes formats a byte count as a human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// ByteSize is an int64 byte count that unmarshals from either a bare
// number or a human-readable string ("250MB") in JSON and YAML configs.
type ByteSize int64

// String returns the human-readable representation.
func (b ByteSize) String() string {
	return FormatBytes(int64(b))
}

// UnmarshalJSON accepts numbers and size strings.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return b.fromValue(raw)
}

// UnmarshalYAML accepts numbers and size strings.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return b.fromValue(raw)
}

func (b *ByteSize) fromValue(raw interface{}) error {
	switch v := raw.(type) {
	case float64:
		*b = ByteSize(v)
	case int:
		*b = ByteSize(v)
	case int64:
		*b = ByteSize(v)
	case string:
		parsed, err := ParseSize(v)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
	default:
		return fmt.Errorf("invalid byte size value: %v", raw)
	}
	return nil
}
