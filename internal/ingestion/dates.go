package ingestion

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateLayout is the rendering used wherever a parsed date is stored as text.
const DateLayout = "2006-01-02"

// dayFirstLayouts are tried verbatim against the trimmed input before any
// free-form parsing: dd/MM/yyyy, d/M/yyyy, dd-MM-yyyy, d-M-yyyy and the
// two digit year variants.
var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02/01/06",
	"2/1/06",
	"02-01-06",
	"2-1-06",
}

// monthLayouts carry month precision only: MMMM yyyy, MMM yyyy, MM/yyyy,
// MM-yy, M/yyyy, M-yy, plus year-first forms. Month names are rewritten
// to "Jan" form before these run.
var monthLayouts = []string{
	"Jan 2006",
	"01/2006",
	"01-06",
	"1/2006",
	"1-06",
	"2006-01",
	"2006/01",
}

var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sept": time.September, "sep": time.September, "set": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

var englishMonths = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// fillerWords are dropped from free-form text: Spanish connectors and
// weekday names in both languages.
var fillerWords = map[string]struct{}{
	"de": {}, "del": {},
	"lunes": {}, "martes": {}, "miercoles": {}, "jueves": {}, "viernes": {}, "sabado": {}, "domingo": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
}

// localeProfile is the static stand-in for a culture: the month names it
// understands and the layouts its free-form parser accepts.
type localeProfile struct {
	name     string
	explicit []string
	months   map[string]time.Month
	layouts  []string
}

var spanishGeneralLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2 Jan 2006",
	"2-Jan-2006",
	"2/Jan/2006",
	"2 Jan 06",
	"2-Jan-06",
	"Jan 2 2006",
}

var (
	localeMexico = localeProfile{
		name:     "es-MX",
		explicit: dayFirstLayouts,
		months:   spanishMonths,
		layouts:  spanishGeneralLayouts,
	}
	localeSpain = localeProfile{
		name:     "es-ES",
		explicit: dayFirstLayouts,
		months:   spanishMonths,
		layouts: append(append([]string(nil), spanishGeneralLayouts...),
			"02.01.2006",
			"2.1.2006",
			"2.1.06",
		),
	}
	// localeAmbient replaces the host culture with a fixed day-first
	// profile that reads English month names, so results do not depend on
	// the machine the service runs on.
	localeAmbient = localeProfile{
		name:     "ambient",
		explicit: dayFirstLayouts,
		months:   englishMonths,
		layouts:  spanishGeneralLayouts,
	}
	localeInvariant = localeProfile{
		name:   "invariant",
		months: englishMonths,
		layouts: []string{
			"2006-01-02",
			"2006/01/02",
			"2006-1-2",
			"01/02/2006",
			"1/2/2006",
			"1-2-2006",
			"1/2/06",
			"Jan 2 2006",
			"Jan 2 06",
			"2 Jan 2006",
			"20060102",
		},
	}

	dateLocales  = []localeProfile{localeMexico, localeSpain, localeAmbient}
	monthLocales = []localeProfile{localeMexico, localeSpain, localeAmbient, localeInvariant}
)

var (
	// timeSuffixPattern matches a trailing time of day with optional
	// meridiem and zone; it is discarded before parsing.
	timeSuffixPattern = regexp.MustCompile(`(?:\s+|t)\d{1,2}:\d{2}(?::\d{2}(?:[.,]\d+)?)?\s*(?:[ap]\s?m)?\s*(?:z|utc|gmt|[+-]\d{2}:?\d{2})?$`)
	letterDotPattern  = regexp.MustCompile(`(\pL)\.`)
	spacePattern      = regexp.MustCompile(`\s+`)
	wordPattern       = regexp.MustCompile(`\pL+`)
	serialPattern     = regexp.MustCompile(`^\d{5}(?:\.\d+)?$`)
)

// ParseFlexibleDate reads a calendar date from spreadsheet text. Day-first
// numeric layouts are tried first for every locale profile, then each
// profile's free-form layouts, then the invariant profile. Time of day and
// zone are ignored. The result is midnight UTC.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}

	for _, locale := range dateLocales {
		if t, ok := parseWithLayouts(trimmed, locale.explicit); ok {
			return t, true
		}
	}

	for _, locale := range dateLocales {
		if t, ok := locale.parse(trimmed); ok {
			return t, true
		}
	}

	if t, ok := localeInvariant.parse(trimmed); ok {
		return t, true
	}

	if t, ok := parseExcelSerial(trimmed); ok {
		return t, true
	}

	return time.Time{}, false
}

// ParseMonthValue resolves the month a row belongs to. It never fails:
// after the full date parsers it tries month-level layouts, then a bare
// month number 1-12 in the fallback's year, and finally the first day of
// the fallback's month.
func ParseMonthValue(raw string, fallback time.Time) time.Time {
	fallbackMonth := time.Date(fallback.Year(), fallback.Month(), 1, 0, 0, 0, 0, time.UTC)

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallbackMonth
	}

	if t, ok := ParseFlexibleDate(trimmed); ok {
		return t
	}

	for _, locale := range monthLocales {
		if t, ok := parseWithLayouts(locale.prepare(trimmed), monthLayouts); ok {
			return t
		}
	}

	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= 12 {
		return time.Date(fallback.Year(), time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	}

	return fallbackMonth
}

// FormatDate renders t as yyyy-MM-dd.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func (l localeProfile) parse(raw string) (time.Time, bool) {
	return parseWithLayouts(l.prepare(raw), l.layouts)
}

// prepare lowercases and folds accents, drops the time of day, filler
// words and punctuation after abbreviations, and rewrites month names the
// profile knows as "Jan".."Dec".
func (l localeProfile) prepare(raw string) string {
	s := foldAccents(strings.ToLower(strings.TrimSpace(raw)))
	s = strings.ReplaceAll(s, "a. m.", "am")
	s = strings.ReplaceAll(s, "p. m.", "pm")
	s = strings.ReplaceAll(s, "a.m.", "am")
	s = strings.ReplaceAll(s, "p.m.", "pm")
	s = timeSuffixPattern.ReplaceAllString(s, "")
	s = letterDotPattern.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", " ")

	s = wordPattern.ReplaceAllStringFunc(s, func(word string) string {
		if _, filler := fillerWords[word]; filler {
			return ""
		}
		if month, ok := l.months[word]; ok {
			return month.String()[:3]
		}
		return word
	})

	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func parseWithLayouts(value string, layouts []string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseExcelSerial accepts the day serials Excel stores for date cells
// whose number format was lost on export.
func parseExcelSerial(value string) (time.Time, bool) {
	if !serialPattern.MatchString(value) {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
