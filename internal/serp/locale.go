package serp

import "strings"

// Locale is the set of search parameters derived from a project's country.
type Locale struct {
	CountryCode  string
	Location     string
	GL           string
	HL           string
	GoogleDomain string
}

var locales = map[string]Locale{
	"US": {CountryCode: "US", Location: "United States", GL: "us", HL: "en", GoogleDomain: "google.com"},
	"CA": {CountryCode: "CA", Location: "Canada", GL: "ca", HL: "en", GoogleDomain: "google.ca"},
	"GB": {CountryCode: "GB", Location: "United Kingdom", GL: "uk", HL: "en", GoogleDomain: "google.co.uk"},
	"IE": {CountryCode: "IE", Location: "Ireland", GL: "ie", HL: "en", GoogleDomain: "google.ie"},
	"AU": {CountryCode: "AU", Location: "Australia", GL: "au", HL: "en", GoogleDomain: "google.com.au"},
	"ES": {CountryCode: "ES", Location: "Spain", GL: "es", HL: "es", GoogleDomain: "google.es"},
	"MX": {CountryCode: "MX", Location: "Mexico", GL: "mx", HL: "es", GoogleDomain: "google.com.mx"},
	"AR": {CountryCode: "AR", Location: "Argentina", GL: "ar", HL: "es", GoogleDomain: "google.com.ar"},
	"CO": {CountryCode: "CO", Location: "Colombia", GL: "co", HL: "es", GoogleDomain: "google.com.co"},
	"CL": {CountryCode: "CL", Location: "Chile", GL: "cl", HL: "es", GoogleDomain: "google.cl"},
	"PE": {CountryCode: "PE", Location: "Peru", GL: "pe", HL: "es", GoogleDomain: "google.com.pe"},
	"FR": {CountryCode: "FR", Location: "France", GL: "fr", HL: "fr", GoogleDomain: "google.fr"},
	"DE": {CountryCode: "DE", Location: "Germany", GL: "de", HL: "de", GoogleDomain: "google.de"},
	"IT": {CountryCode: "IT", Location: "Italy", GL: "it", HL: "it", GoogleDomain: "google.it"},
	"PT": {CountryCode: "PT", Location: "Portugal", GL: "pt", HL: "pt", GoogleDomain: "google.pt"},
	"BR": {CountryCode: "BR", Location: "Brazil", GL: "br", HL: "pt", GoogleDomain: "google.com.br"},
	"NL": {CountryCode: "NL", Location: "Netherlands", GL: "nl", HL: "nl", GoogleDomain: "google.nl"},
}

// LocaleFor expands a country code into search parameters. Unknown countries
// fall back to the US table entry. A non-empty language overrides HL.
func LocaleFor(countryCode, language string) Locale {
	code := normalizeCountryCode(countryCode)
	loc, ok := locales[code]
	if !ok {
		loc = locales["US"]
	}
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "" {
		loc.HL = lang
	}
	return loc
}

// Supported reports whether a country has its own table entry.
func Supported(countryCode string) bool {
	_, ok := locales[normalizeCountryCode(countryCode)]
	return ok
}

func normalizeCountryCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		normalized = "US"
	}
	if normalized == "UK" {
		normalized = "GB"
	}
	return normalized
}
