// Package textnorm provides the canonical text forms used for brand matching:
// accent and case folding, whole-word search and brand variation generation.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minHostToken is the shortest host-derived variation worth searching for.
const minHostToken = 3

var saasPrefixes = []string{"get", "the", "my"}

// Span is a half-open byte interval [Start, End) into the original text.
type Span struct {
	Start int
	End   int
}

func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Fold lowercases s and removes combining diacritics.
func Fold(s string) string {
	out, _, err := transform.String(stripMarks(), strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// foldRune folds a single rune; combining marks fold to nothing.
func foldRune(r rune) string {
	if unicode.Is(unicode.Mn, r) {
		return ""
	}
	lower := string(unicode.ToLower(r))
	out, _, err := transform.String(stripMarks(), lower)
	if err != nil {
		return lower
	}
	return out
}

// foldIndexed folds s rune by rune and returns, for every byte of the folded
// string, the byte offset of the source rune it came from. The returned slice
// has one trailing entry equal to len(s).
func foldIndexed(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		f := foldRune(r)
		for j := 0; j < len(f); j++ {
			offsets = append(offsets, i)
		}
		b.WriteString(f)
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// WordBoundaryMatch finds every case- and accent-insensitive occurrence of
// needle in haystack that is delimited by non-alphanumeric runes or the text
// bounds. Spans index the original haystack.
func WordBoundaryMatch(needle, haystack string) []Span {
	n := Fold(strings.TrimSpace(needle))
	if n == "" || haystack == "" {
		return nil
	}
	folded, offsets := foldIndexed(haystack)

	var spans []Span
	from := 0
	for from <= len(folded)-len(n) {
		idx := strings.Index(folded[from:], n)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(n)
		if boundaryBefore(folded, start) && boundaryAfter(folded, end) {
			spans = append(spans, Span{Start: offsets[start], End: rawEnd(haystack, offsets, end)})
		}
		_, size := utf8.DecodeRuneInString(folded[start:])
		from = start + size
	}
	return spans
}

// rawEnd maps a folded end offset back to the end of the matching raw rune run.
func rawEnd(raw string, offsets []int, foldedEnd int) int {
	if foldedEnd >= len(offsets)-1 {
		return len(raw)
	}
	end := offsets[foldedEnd]
	// Swallow trailing combining marks that folded away.
	for end < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[end:])
		if !unicode.Is(unicode.Mn, r) {
			break
		}
		end += size
	}
	return end
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

// ContainsWord reports whether needle occurs in haystack as a whole word.
func ContainsWord(needle, haystack string) bool {
	return len(WordBoundaryMatch(needle, haystack)) > 0
}

// ContainsAnyWord reports whether any of the variations occurs as a whole word.
func ContainsAnyWord(variations []string, haystack string) bool {
	for _, v := range variations {
		if ContainsWord(v, haystack) {
			return true
		}
	}
	return false
}

// BrandVariations expands a domain and keyword list into the ordered, unique
// strings to search for.
func BrandVariations(domain string, keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(v string, minLen int) {
		v = strings.TrimSpace(v)
		if utf8.RuneCountInString(v) < minLen || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	if d := strings.TrimSpace(domain); d != "" {
		if strings.Contains(d, ".") {
			for _, v := range hostVariations(d) {
				add(v, minHostToken)
			}
		} else {
			add(d, 1)
			add(Fold(d), 1)
		}
	}

	for _, kw := range keywords {
		add(kw, 1)
		add(Fold(kw), 1)
	}
	return out
}

func hostVariations(domain string) []string {
	host := HostOf(domain)
	if host == "" {
		return nil
	}
	bare := strings.TrimPrefix(host, "www.")
	label := RegistrableLabel(bare)

	vars := []string{host, bare, label}
	for _, prefix := range saasPrefixes {
		if strings.HasPrefix(label, prefix) && len(label) > len(prefix) {
			vars = append(vars, strings.TrimPrefix(label, prefix))
			break
		}
	}
	return vars
}

// HostOf lowercases a domain or URL and strips scheme, port, path and query.
func HostOf(s string) string {
	h := strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	if i := strings.Index(h, ":"); i >= 0 {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}

// RegistrableLabel returns the label before the public suffix
// ("app.getquipu.co.uk" -> "getquipu"). Hosts unknown to the suffix list fall
// back to their leftmost label.
func RegistrableLabel(host string) string {
	host = strings.TrimPrefix(HostOf(host), "www.")
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return strings.SplitN(etld1, ".", 2)[0]
	}
	return strings.SplitN(host, ".", 2)[0]
}
