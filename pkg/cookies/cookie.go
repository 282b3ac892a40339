// Package cookies reads and writes Netscape-format cookie files and owns the
// current session credential used by extraction calls.
package cookies

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Header is the first line of every exported cookie file
	Header = "# Netscape HTTP Cookie File"

	httpOnlyPrefix = "#HttpOnly_"
)

// Cookie is one browser cookie
type Cookie struct {
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	Expires  int64  `json:"expires"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// IncludeSubdomains is the cookie-file flag column
func (c Cookie) IncludeSubdomains() bool {
	return strings.HasPrefix(c.Domain, ".")
}

// Expired reports whether the cookie expired before now
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires < now.Unix()
}

// Parse reads cookies in the Netscape cookie-file format. Comment lines and
// lines with fewer than seven fields are ignored.
func Parse(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}

		expires, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expiry %q: %w", lineNum, fields[4], err)
		}

		cookies = append(cookies, Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HTTPOnly: httpOnly,
			Expires:  expires,
			Name:     fields[5],
			Value:    strings.Join(fields[6:], "\t"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	return cookies, nil
}

// ParseFile parses the cookie file at path
func ParseFile(path string) ([]Cookie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Format serializes cookies in the Netscape cookie-file format
func Format(cookies []Cookie) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header + "\n")
	buf.WriteString("# This file is generated by ttharvest. Do not edit.\n\n")

	for _, c := range cookies {
		domain := c.Domain
		if c.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain,
			boolField(c.IncludeSubdomains()),
			c.Path,
			boolField(c.Secure),
			c.Expires,
			c.Name,
			c.Value,
		)
	}

	return buf.Bytes()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
