package signer

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// CanonicalDocument forma canónica exacta del XML y su digest. No se modifica una vez creada.
type CanonicalDocument struct {
	Algorithm   string // algoritmo C14N aplicado
	Canonical   []byte
	DigestValue string // SHA-256 en Base64
}

// Canonicalizer envuelve un canonicalizador de goxmldsig. El mismo valor se usa para el digest
// del documento, para el SignedInfo y para la verificación, así nunca divergen.
type Canonicalizer struct {
	c14n      dsig.Canonicalizer
	algorithm string
}

// NewCanonicalizer C14N 1.0 inclusivo sin comentarios (el que valida SUNAT).
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{c14n: dsig.MakeC14N10RecCanonicalizer(), algorithm: AlgC14N}
}

// NewExclusiveCanonicalizer C14N exclusivo sin comentarios.
func NewExclusiveCanonicalizer() *Canonicalizer {
	return &Canonicalizer{c14n: dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList(""), algorithm: AlgExcC14N}
}

// Algorithm URI del algoritmo para CanonicalizationMethod y el Transform de la Reference.
func (c *Canonicalizer) Algorithm() string { return c.algorithm }

// Canonicalize devuelve la forma canónica del elemento raíz del documento.
func (c *Canonicalizer) Canonicalize(xmlBytes []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("sunat: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("sunat: documento sin raíz")
	}
	return c.CanonicalizeElement(root)
}

// CanonicalizeElement canonicaliza el elemento en el contexto de su documento: las declaraciones
// de namespace heredadas de los ancestros se copian al elemento antes de serializarlo.
func (c *Canonicalizer) CanonicalizeElement(el *etree.Element) ([]byte, error) {
	out, err := c.c14n.Canonicalize(detach(el))
	if err != nil {
		return nil, fmt.Errorf("sunat: canonicalizar %s: %w", el.FullTag(), err)
	}
	return out, nil
}

// Digest canonicaliza el documento y calcula su SHA-256 en Base64.
func (c *Canonicalizer) Digest(xmlBytes []byte) (*CanonicalDocument, error) {
	canonical, err := c.Canonicalize(xmlBytes)
	if err != nil {
		return nil, err
	}
	return &CanonicalDocument{
		Algorithm:   c.algorithm,
		Canonical:   canonical,
		DigestValue: digestB64(canonical),
	}, nil
}

func digestB64(b []byte) string {
	h := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(h[:])
}

// detach copia el elemento sin padre e incorpora las declaraciones xmlns visibles desde él.
// La declaración más cercana gana.
func detach(el *etree.Element) *etree.Element {
	cp := el.Copy()
	declared := make(map[string]bool)
	for _, a := range cp.Attr {
		if isNSDecl(a) {
			declared[a.FullKey()] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNSDecl(a) || declared[a.FullKey()] {
				continue
			}
			declared[a.FullKey()] = true
			cp.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return cp
}

func isNSDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}
