package timeline

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Catalog keys.
const (
	keyToday     = "Today"
	keyYesterday = "Yesterday"
	keyUndated   = "Undated"
	keyDate      = "date.long"
)

var supported = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

var labels = buildCatalog()

var weekdays = map[language.Tag][7]string{
	language.English: {"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	language.German:  {"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
	language.French:  {"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
	language.Spanish: {"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"},
}

var months = map[language.Tag][12]string{
	language.English: {"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
	language.German:  {"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli", "August", "September", "Oktober", "November", "Dezember"},
	language.French:  {"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
	language.Spanish: {"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
}

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	// The date pattern takes weekday, month, day and year, all preformatted
	// so the printer does not apply digit grouping to the year.
	entries := map[language.Tag]map[string]string{
		language.English: {
			keyToday:     "Today",
			keyYesterday: "Yesterday",
			keyUndated:   "Undated",
			keyDate:      "%[1]s, %[2]s %[3]s, %[4]s",
		},
		language.German: {
			keyToday:     "Heute",
			keyYesterday: "Gestern",
			keyUndated:   "Ohne Datum",
			keyDate:      "%[1]s, %[3]s. %[2]s %[4]s",
		},
		language.French: {
			keyToday:     "Aujourd'hui",
			keyYesterday: "Hier",
			keyUndated:   "Sans date",
			keyDate:      "%[1]s %[3]s %[2]s %[4]s",
		},
		language.Spanish: {
			keyToday:     "Hoy",
			keyYesterday: "Ayer",
			keyUndated:   "Sin fecha",
			keyDate:      "%[1]s, %[3]s de %[2]s de %[4]s",
		},
	}
	for tag, msgs := range entries {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic("timeline: invalid catalog entry " + key + ": " + err.Error())
			}
		}
	}
	return b
}

// MatchLanguage resolves a language code such as "de-AT" to the closest
// supported language, defaulting to English.
func MatchLanguage(code string) language.Tag {
	tag, err := language.Parse(code)
	if err != nil {
		return language.English
	}
	_, idx, _ := matcher.Match(tag)
	return supported[idx]
}

type labeler struct {
	tag     language.Tag
	printer *message.Printer
	title   cases.Caser
}

func newLabeler(tag language.Tag) *labeler {
	return &labeler{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(labels)),
		title:   cases.Title(tag, cases.NoLower),
	}
}

func (l *labeler) today() string { return l.printer.Sprintf(keyToday) }

func (l *labeler) yesterday() string { return l.printer.Sprintf(keyYesterday) }

func (l *labeler) undated() string { return l.printer.Sprintf(keyUndated) }

// date renders an absolute day such as "Monday, March 4, 2024" or
// "Lundi 4 mars 2024". Only the first word is capitalised.
func (l *labeler) date(t time.Time) string {
	weekday := weekdays[l.tag][t.Weekday()]
	month := months[l.tag][t.Month()-1]
	s := l.printer.Sprintf(keyDate, weekday, month, strconv.Itoa(t.Day()), strconv.Itoa(t.Year()))

	first, rest, found := strings.Cut(s, " ")
	if !found {
		return l.title.String(s)
	}
	return l.title.String(first) + " " + rest
}
