package sunat

import (
	"errors"
	"fmt"
)

// Errores de construcción y firma (corregibles por el llamador, nunca se reintentan).
var (
	ErrUnsupportedDocumentKind = errors.New("sunat: tipo de comprobante no soportado")
	ErrInvalidDocument         = errors.New("sunat: comprobante inválido")
	ErrInsertionPointMissing   = errors.New("sunat: no se encontró el ext:ExtensionContent vacío para la firma")
)

// KeyReadError la llave o el certificado no se pudo leer desde la ruta indicada.
type KeyReadError struct {
	Path string
	Err  error
}

func (e *KeyReadError) Error() string {
	return fmt.Sprintf("sunat: leer material de firma %s: %v", e.Path, e.Err)
}

func (e *KeyReadError) Unwrap() error { return e.Err }

// SigningError falló la operación criptográfica (llave no RSA, par llave/certificado distinto, etc.).
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sunat: firma (%s): %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// PackagingError error local de E/S al generar o guardar el ZIP. El llamador puede reintentar.
type PackagingError struct {
	File string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("sunat: empaquetar %s: %v", e.File, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// TransportError falla de red. OutcomeUnknown=true significa que la petición llegó a salir
// y no se sabe si SUNAT la registró: consultar el estado antes de reenviar.
type TransportError struct {
	Endpoint       string
	OutcomeUnknown bool
	Err            error
}

func (e *TransportError) Error() string {
	state := "no entregado"
	if e.OutcomeUnknown {
		state = "resultado desconocido"
	}
	return fmt.Sprintf("sunat: transporte %s (%s): %v", e.Endpoint, state, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError SUNAT rechazó las credenciales SOL.
type AuthenticationError struct {
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Code == "" {
		return "sunat: autenticación rechazada: " + e.Message
	}
	return fmt.Sprintf("sunat: autenticación rechazada [%s]: %s", e.Code, e.Message)
}

// IsOutcomeUnknown indica si err es un TransportError con resultado desconocido.
func IsOutcomeUnknown(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.OutcomeUnknown
}
