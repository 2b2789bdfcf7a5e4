package sunat

import (
	"fmt"
	"strings"
)

// rucPrefixes prefijos válidos de un RUC: persona natural (10), no domiciliado (15, 17), persona jurídica (20).
var rucPrefixes = []string{"10", "15", "17", "20"}

// ValidateRUC verifica forma del RUC: 11 dígitos y prefijo válido.
// El dígito verificador no se exige: los entornos BETA de la SUNAT usan RUCs de prueba que no lo cumplen.
func ValidateRUC(ruc string) error {
	if len(ruc) != 11 || !IsDigits(ruc) {
		return fmt.Errorf("sunat: el RUC debe tener 11 dígitos, se recibió %q", ruc)
	}
	for _, p := range rucPrefixes {
		if strings.HasPrefix(ruc, p) {
			return nil
		}
	}
	return fmt.Errorf("sunat: prefijo de RUC inválido %q", ruc[:2])
}

// IsDigits indica si s es no vacío y contiene solo dígitos 0-9.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rucWeights factores del módulo 11 para los 10 primeros dígitos del RUC.
var rucWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// RUCCheckDigitValid indica si el último dígito del RUC corresponde al módulo 11 de los anteriores.
func RUCCheckDigitValid(ruc string) bool {
	if len(ruc) != 11 || !IsDigits(ruc) {
		return false
	}
	sum := 0
	for i, w := range rucWeights {
		sum += int(ruc[i]-'0') * w
	}
	dv := 11 - sum%11
	switch dv {
	case 10:
		dv = 0
	case 11:
		dv = 1
	}
	return int(ruc[10]-'0') == dv
}
