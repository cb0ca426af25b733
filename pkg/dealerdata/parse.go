package dealerdata

import (
	"html"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

const priceHeader = "net unit price"

var (
	rowRe  = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellRe = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	tagRe  = regexp.MustCompile(`(?s)<[^>]+>`)
)

// decodeBody returns the response body as UTF-8 text, honoring the
// charset advertised in the Content-Type header. The portal serves
// windows-1252 on some pages.
func decodeBody(resp *http.Response) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "dealerdata: read response body")
	}

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return string(body), nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "dealerdata: unsupported charset %q", charset)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "dealerdata: decode %s body", charset)
	}
	return string(decoded), nil
}

// looksLikeLoginPage reports whether the portal answered with its login
// form instead of lookup results, which happens when the session cookie
// has expired.
func looksLikeLoginPage(page string) bool {
	lower := strings.ToLower(page)
	return strings.Contains(lower, `name="password"`) && strings.Contains(lower, "login")
}

// parsePriceFor scans the lookup results table for the row matching
// partNumber and returns the value of the "Net Unit Price" column.
// found is false when the table has no matching row, which is how the
// portal reports unknown part numbers.
func parsePriceFor(page, partNumber string) (price float64, found bool, err error) {
	want := strings.ToUpper(strings.TrimSpace(partNumber))
	priceCol := -1

	for _, row := range rowRe.FindAllStringSubmatch(page, -1) {
		cells := cellRe.FindAllStringSubmatch(row[1], -1)
		if len(cells) == 0 {
			continue
		}
		texts := make([]string, len(cells))
		for i, cell := range cells {
			texts[i] = cellText(cell[1])
		}

		if priceCol == -1 {
			for i, txt := range texts {
				if strings.EqualFold(txt, priceHeader) {
					priceCol = i
					break
				}
			}
			continue
		}

		if priceCol >= len(texts) || !rowMatches(texts, want) {
			continue
		}
		price, err := parsePrice(texts[priceCol])
		if err != nil {
			return 0, false, eris.Wrapf(ErrBadPrice, "part %s: %q", partNumber, texts[priceCol])
		}
		return price, true, nil
	}
	return 0, false, nil
}

// rowMatches reports whether any cell of the row equals the wanted part
// number. The portal varies which column carries it between result
// layouts.
func rowMatches(texts []string, want string) bool {
	for _, txt := range texts {
		if strings.ToUpper(txt) == want {
			return true
		}
	}
	return false
}

func cellText(raw string) string {
	text := html.UnescapeString(tagRe.ReplaceAllString(raw, " "))
	// &nbsp; decodes to U+00A0, which would break header and part
	// matching against plain-space strings.
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.TrimSpace(text)
}

// parsePrice converts a formatted price cell like "$1,234.56" to a
// float.
func parsePrice(cell string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", "\u00a0", " ").Replace(cell)
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return 0, eris.New("empty price cell")
	}
	return strconv.ParseFloat(clean, 64)
}
