package query

import "time"

// ---------- Paginación por cursor (keyset) ----------

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// CursorPagination describe una página de resultados más recientes primero.
// BeforeID es un cursor keyset: sólo se devuelven eventos estrictamente anteriores
// a ese evento en el orden total (createdAt desc, id desc).
type CursorPagination struct {
	Limit      int
	BeforeID   string
	BeforeTime time.Time // cero = sin filtro temporal
	Kind       string    // vacío = todos los tipos
}

// Normalize aplica el límite por defecto y el máximo. Los negativos se rechazan antes.
// BeforeTime se redondea al milisegundo siguiente si trae fracción: createdAt se
// guarda en milisegundos, así "< T" equivale a "< ceil(T)" en todos los backends.
func (p CursorPagination) Normalize() CursorPagination {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	if !p.BeforeTime.IsZero() {
		p.BeforeTime = ceilMillis(p.BeforeTime)
	}
	return p
}

func ceilMillis(t time.Time) time.Time {
	ms := time.UnixMilli(t.UnixMilli()).UTC()
	if t.Sub(ms) > 0 {
		ms = ms.Add(time.Millisecond)
	}
	return ms
}
