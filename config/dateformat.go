package config

import (
	"strings"
	"time"
)

// GoLayout converts a date format to a Go time layout. Go layouts pass
// through unchanged; Java-style patterns such as yyyy-MM-dd'T'HH:mm:ss are
// translated. An empty format selects time.DateOnly.
func GoLayout(format string) string {
	switch {
	case format == "":
		return time.DateOnly
	case strings.Contains(format, "2006") || strings.Contains(format, "15:04"):
		return format
	}

	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		c := runes[i]
		if c == '\'' {
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		b.WriteString(javaToken(c, n))
		i += n
	}
	return b.String()
}

// javaToken returns the Go layout element for a run of n pattern letters c.
func javaToken(c rune, n int) string {
	pick := func(short, long string) string {
		if n == 1 {
			return short
		}
		return long
	}
	switch c {
	case 'y', 'u':
		if n == 2 {
			return "06"
		}
		return "2006"
	case 'M':
		switch {
		case n >= 4:
			return "January"
		case n == 3:
			return "Jan"
		default:
			return pick("1", "01")
		}
	case 'd':
		return pick("2", "02")
	case 'D':
		return "002"
	case 'H':
		return "15"
	case 'h':
		return pick("3", "03")
	case 'm':
		return pick("4", "04")
	case 's':
		return pick("5", "05")
	case 'S':
		return strings.Repeat("0", n)
	case 'a':
		return "PM"
	case 'E':
		if n >= 4 {
			return "Monday"
		}
		return "Mon"
	case 'z':
		return "MST"
	case 'Z':
		return "-0700"
	case 'X':
		switch n {
		case 1:
			return "Z07"
		case 2:
			return "Z0700"
		default:
			return "Z07:00"
		}
	default:
		return strings.Repeat(string(c), n)
	}
}
