package cloudcli

import (
	"regexp"
	"strconv"
	"strings"
)

// Each cloud vendor's du/ls output hides the byte count differently.
// The parsers live in one table so adding a vendor is one row, and so
// every pattern is unit-testable in isolation.

// sizeParser extracts a byte count from one vendor's CLI output.
type sizeParser struct {
	storageTypes []string
	parse        func(out string) (int64, bool)
}

var (
	awsTotalSize   = regexp.MustCompile(`Total Size:\s*([\d,]+)\s*Bytes`)
	awsZeroObjects = regexp.MustCompile(`Total Objects:\s*0\b`)
	ossSumSize     = regexp.MustCompile(`total object sum size:\s*(\d+)`)
	s3cmdSize      = regexp.MustCompile(`^\s*(\d+)\s+\d+\s+objects?`)
	cosBytes       = regexp.MustCompile(`\((\d+)\s*Bytes\)`)
	leadingDigits  = regexp.MustCompile(`^(\d+)`)
)

var sizeParsers = []sizeParser{
	{
		storageTypes: []string{"s3", "s3a", "s3n"},
		parse: func(out string) (int64, bool) {
			if m := awsTotalSize.FindStringSubmatch(out); m != nil {
				n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
				return n, err == nil
			}
			if awsZeroObjects.MatchString(out) {
				return 0, true
			}
			return 0, false
		},
	},
	{
		storageTypes: []string{"oss"},
		parse: func(out string) (int64, bool) {
			if m := ossSumSize.FindStringSubmatch(out); m != nil {
				n, err := strconv.ParseInt(m[1], 10, 64)
				return n, err == nil
			}
			return 0, false
		},
	},
	{
		storageTypes: []string{"s3cmd"},
		parse: func(out string) (int64, bool) {
			for _, line := range strings.Split(out, "\n") {
				if m := s3cmdSize.FindStringSubmatch(line); m != nil {
					n, err := strconv.ParseInt(m[1], 10, 64)
					return n, err == nil
				}
			}
			return 0, false
		},
	},
	{
		storageTypes: []string{"cos", "cosn"},
		parse: func(out string) (int64, bool) {
			if m := cosBytes.FindStringSubmatch(out); m != nil {
				n, err := strconv.ParseInt(m[1], 10, 64)
				return n, err == nil
			}
			return 0, false
		},
	},
	{
		storageTypes: []string{"hdfs", "gs"},
		parse: func(out string) (int64, bool) {
			if m := leadingDigits.FindStringSubmatch(strings.TrimSpace(out)); m != nil {
				n, err := strconv.ParseInt(m[1], 10, 64)
				return n, err == nil
			}
			return 0, false
		},
	},
	{
		storageTypes: []string{"azblob"},
		parse: func(out string) (int64, bool) {
			n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
			return n, err == nil
		},
	},
}

// ParseSize extracts a byte count from vendor CLI output. The second
// return is false for unknown storage types or unparseable output.
func ParseSize(storageType, output string) (int64, bool) {
	st := strings.ToLower(storageType)
	for _, p := range sizeParsers {
		for _, t := range p.storageTypes {
			if t == st {
				return p.parse(output)
			}
		}
	}
	return 0, false
}
