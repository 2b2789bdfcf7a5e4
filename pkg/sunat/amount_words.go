package sunat

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	wordsUnits = [...]string{"", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE"}
	wordsTeens = [...]string{"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISEIS", "DIECISIETE", "DIECIOCHO", "DIECINUEVE"}
	wordsTwent = [...]string{"VEINTE", "VEINTIUNO", "VEINTIDOS", "VEINTITRES", "VEINTICUATRO", "VEINTICINCO", "VEINTISEIS", "VEINTISIETE", "VEINTIOCHO", "VEINTINUEVE"}
	wordsTens  = [...]string{"", "", "", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA"}
	wordsHund  = [...]string{"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS", "SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS"}
)

// AmountInWords devuelve el texto de la leyenda 1000, por ejemplo
// "SON: CIENTO DIECIOCHO CON 00/100 SOLES". Los importes se redondean a 2 decimales.
func AmountInWords(amount decimal.Decimal, currency string) string {
	amount = amount.Abs().Round(2)
	integer := amount.Truncate(0)
	cents := amount.Sub(integer).Mul(decimal.NewFromInt(100)).IntPart()

	name, ok := CurrencyNames[strings.ToUpper(currency)]
	if !ok {
		name = strings.ToUpper(currency)
	}
	return fmt.Sprintf("SON: %s CON %02d/100 %s", IntegerInWords(integer.IntPart()), cents, name)
}

// IntegerInWords convierte un entero no negativo a su expresión en letras (español, mayúsculas, sin tildes).
func IntegerInWords(n int64) string {
	if n <= 0 {
		return "CERO"
	}
	var parts []string
	if millions := n / 1_000_000; millions > 0 {
		if millions == 1 {
			parts = append(parts, "UN MILLON")
		} else {
			parts = append(parts, apocope(IntegerInWords(millions))+" MILLONES")
		}
		n %= 1_000_000
	}
	if thousands := n / 1000; thousands > 0 {
		if thousands == 1 {
			parts = append(parts, "MIL")
		} else {
			parts = append(parts, apocope(hundredsInWords(int(thousands)))+" MIL")
		}
		n %= 1000
	}
	if n > 0 {
		parts = append(parts, hundredsInWords(int(n)))
	}
	return strings.Join(parts, " ")
}

// hundredsInWords cubre 1..999.
func hundredsInWords(n int) string {
	if n == 100 {
		return "CIEN"
	}
	var parts []string
	if h := n / 100; h > 0 {
		parts = append(parts, wordsHund[h])
	}
	rest := n % 100
	switch {
	case rest == 0:
	case rest < 10:
		parts = append(parts, wordsUnits[rest])
	case rest < 20:
		parts = append(parts, wordsTeens[rest-10])
	case rest < 30:
		parts = append(parts, wordsTwent[rest-20])
	default:
		t := wordsTens[rest/10]
		if u := rest % 10; u > 0 {
			t += " Y " + wordsUnits[u]
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// apocope: "UNO" delante de MIL/MILLONES se escribe "UN" (VEINTIUN MIL, TREINTA Y UN MILLONES).
func apocope(s string) string {
	if strings.HasSuffix(s, "UNO") {
		return strings.TrimSuffix(s, "O")
	}
	return s
}
