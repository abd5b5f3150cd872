package catalog

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// SpanishDate renders "12 de marzo de 2024".
func SpanishDate(date time.Time) string {
	return fmt.Sprintf("%d de %s de %d", date.Day(), spanishMonths[date.Month()-1], date.Year())
}

// AppendPaymentPhrase appends " para el {date}" to description.
func AppendPaymentPhrase(description string, date time.Time) string {
	return description + " para el " + SpanishDate(date)
}
