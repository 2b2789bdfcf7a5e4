package sunat_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/facturador-sunat/pkg/sunat"
)

func TestIntegerInWords(t *testing.T) {
	cases := map[int64]string{
		0:         "CERO",
		1:         "UNO",
		15:        "QUINCE",
		21:        "VEINTIUNO",
		31:        "TREINTA Y UNO",
		100:       "CIEN",
		101:       "CIENTO UNO",
		118:       "CIENTO DIECIOCHO",
		1000:      "MIL",
		21000:     "VEINTIUN MIL",
		101000:    "CIENTO UN MIL",
		1_000_000: "UN MILLON",
		2_531_001: "DOS MILLONES QUINIENTOS TREINTA Y UN MIL UNO",
	}
	for n, want := range cases {
		assert.Equal(t, want, sunat.IntegerInWords(n), "n=%d", n)
	}
}

func TestAmountInWords(t *testing.T) {
	assert.Equal(t, "SON: CIENTO DIECIOCHO CON 00/100 SOLES",
		sunat.AmountInWords(decimal.RequireFromString("118"), "PEN"))
	assert.Equal(t, "SON: MIL CIENTO OCHENTA CON 50/100 SOLES",
		sunat.AmountInWords(decimal.RequireFromString("1180.50"), "PEN"))
	assert.Equal(t, "SON: DOS CON 05/100 DOLARES AMERICANOS",
		sunat.AmountInWords(decimal.RequireFromString("2.049"), "usd"))
}
