package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Email is a parsed email document. For plain-text files without headers
// only Body is populated.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}

// ExtractPDFText returns the plain text content of a PDF file.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// ParseJSONFile parses a JSON document into a generic map.
func ParseJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading json file: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing json: %w", err)
	}
	return doc, nil
}

// ParseEmail parses an .eml or plain-text email file. RFC 5322 parsing is
// attempted first; files without a proper header block fall back to a
// line-oriented header scan.
func ParseEmail(path string) (Email, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Email{}, fmt.Errorf("reading email file: %w", err)
	}

	if msg, err := mail.ReadMessage(bytes.NewReader(data)); err == nil {
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return Email{}, fmt.Errorf("reading email body: %w", err)
		}
		return Email{
			From:    msg.Header.Get("From"),
			To:      msg.Header.Get("To"),
			Subject: msg.Header.Get("Subject"),
			Date:    msg.Header.Get("Date"),
			Body:    string(body),
		}, nil
	}

	return parsePlainEmail(string(data)), nil
}

// parsePlainEmail scans leading header-shaped lines and treats everything
// after the first blank line as the body.
func parsePlainEmail(content string) Email {
	e := Email{Body: content}
	lines := strings.Split(content, "\n")
	bodyStart := 0

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "From:"):
			e.From = strings.TrimSpace(line[len("From:"):])
		case strings.HasPrefix(line, "To:"):
			e.To = strings.TrimSpace(line[len("To:"):])
		case strings.HasPrefix(line, "Subject:"):
			e.Subject = strings.TrimSpace(line[len("Subject:"):])
		case strings.HasPrefix(line, "Date:"):
			e.Date = strings.TrimSpace(line[len("Date:"):])
		}
		if strings.TrimSpace(line) == "" && i > 0 {
			bodyStart = i + 1
			break
		}
	}

	if bodyStart > 0 && bodyStart <= len(lines) {
		e.Body = strings.Join(lines[bodyStart:], "\n")
	}
	return e
}

// Map flattens the email into the shape stored as a content sample.
func (e Email) Map() map[string]any {
	return map[string]any{
		"from":    e.From,
		"to":      e.To,
		"subject": e.Subject,
		"date":    e.Date,
		"body":    e.Body,
	}
}
