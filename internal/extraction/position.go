package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

// Detection methods reported by DetectPosition.
const (
	MethodNumbered = "numbered"
	MethodBullet   = "bullet"
	MethodOrdinal  = "ordinal"
	MethodContext  = "context"
)

// ordinalWindow is how far after an ordinal word a variation may appear.
const ordinalWindow = 100

var numberedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(\d+)[\.\)]\s+(.+)$`),
	regexp.MustCompile(`^\s*\*\*(\d+)[\.\)]\*\*\s+(.+)$`),
	regexp.MustCompile(`^\s*#\s*(\d+)[:\.\-]\s+(.+)$`),
}

var bulletPattern = regexp.MustCompile(`^\s*[•●○▪▸►–—-]\s+(.+)$`)

// inlineBoldNumber splits "**1.** A **2.** B" onto separate lines.
var inlineBoldNumber = regexp.MustCompile(`[ \t]+(\*\*\d+[\.\)]\*\*\s)`)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"primero": 1, "primera": 1, "primer": 1,
	"segundo": 2, "segunda": 2,
	"tercero": 3, "tercera": 3, "tercer": 3,
	"cuarto": 4, "cuarta": 4,
	"quinto": 5, "quinta": 5,
	"sexto": 6, "sexta": 6,
	"septimo": 7, "septima": 7,
	"octavo": 8, "octava": 8,
	"noveno": 9, "novena": 9,
	"decimo": 10, "decima": 10,
}

var ordinalPattern = regexp.MustCompile(`\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|primer[oa]?|segund[oa]|tercer[oa]?|cuart[oa]|quint[oa]|sext[oa]|septim[oa]|octav[oa]|noven[oa]|decim[oa])\b`)

// Position describes where a brand sits in a response.
type Position struct {
	AppearsInList bool
	Position      *int
	TotalItems    *int
	Method        string
}

type listItem struct {
	number int
	body   string
}

// DetectPosition locates the first variation in numbered lists, bulleted lists,
// ordinal phrases and finally by its relative offset in the text. Bracketed
// citation markers like "[7]" are never read as positions. When the text holds
// a list that does not contain the brand no position is inferred.
func DetectPosition(text string, variations []string) Position {
	if strings.TrimSpace(text) == "" || len(variations) == 0 {
		return Position{}
	}

	lines := strings.Split(inlineBoldNumber.ReplaceAllString(text, "\n$1"), "\n")

	numbered := numberedItems(lines)
	for _, item := range numbered {
		if textnorm.ContainsAnyWord(variations, item.body) {
			return Position{
				AppearsInList: true,
				Position:      intPtr(item.number),
				TotalItems:    intPtr(len(numbered)),
				Method:        MethodNumbered,
			}
		}
	}

	bullets := bulletItems(lines)
	if len(bullets) >= 2 {
		for i, body := range bullets {
			if textnorm.ContainsAnyWord(variations, body) {
				return Position{
					AppearsInList: true,
					Position:      intPtr(i + 1),
					TotalItems:    intPtr(len(bullets)),
					Method:        MethodBullet,
				}
			}
		}
	}

	if n, ok := ordinalPosition(text, variations); ok {
		return Position{AppearsInList: true, Position: intPtr(n), Method: MethodOrdinal}
	}

	if len(numbered) >= 2 || len(bullets) >= 2 {
		return Position{}
	}

	offset := firstMatchOffset(text, variations)
	if offset < 0 {
		return Position{}
	}
	ratio := float64(utf8.RuneCountInString(text[:offset])) / float64(utf8.RuneCountInString(text))
	return Position{Position: intPtr(positionForRatio(ratio)), Method: MethodContext}
}

func numberedItems(lines []string) []listItem {
	var items []listItem
	for _, line := range lines {
		for _, re := range numberedPatterns {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				break
			}
			items = append(items, listItem{number: n, body: m[2]})
			break
		}
	}
	return items
}

func bulletItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			items = append(items, m[1])
		}
	}
	return items
}

func ordinalPosition(text string, variations []string) (int, bool) {
	folded := textnorm.Fold(text)
	for _, loc := range ordinalPattern.FindAllStringIndex(folded, -1) {
		n := ordinalWords[folded[loc[0]:loc[1]]]
		end := loc[1] + ordinalWindow
		if end > len(folded) {
			end = len(folded)
		}
		for end < len(folded) && !utf8.RuneStart(folded[end]) {
			end++
		}
		if textnorm.ContainsAnyWord(variations, folded[loc[1]:end]) {
			return n, true
		}
	}
	return 0, false
}

func firstMatchOffset(text string, variations []string) int {
	best := -1
	for _, v := range variations {
		spans := textnorm.WordBoundaryMatch(v, text)
		if len(spans) > 0 && (best < 0 || spans[0].Start < best) {
			best = spans[0].Start
		}
	}
	return best
}

func positionForRatio(r float64) int {
	switch {
	case r < 0.15:
		return 1
	case r < 0.30:
		return 3
	case r < 0.50:
		return 5
	case r < 0.70:
		return 8
	default:
		return 12
	}
}

func intPtr(v int) *int { return &v }
