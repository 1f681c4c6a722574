package locator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/lancet/internal/browser"
)

// Kind tags the variant a Strategy holds.
type Kind int

const (
	KindXPath Kind = iota
	KindCSS
	KindText
	KindTestID
)

func (k Kind) String() string {
	switch k {
	case KindXPath:
		return "xpath"
	case KindCSS:
		return "css"
	case KindText:
		return "text"
	case KindTestID:
		return "testid"
	default:
		return "unknown"
	}
}

// Strategy is how an element is found: a structural XPath, a CSS selector,
// its visible text, or its data-testid attribute.
type Strategy struct {
	Kind  Kind
	Value string
	// Exact makes a Text strategy match the whole normalized text instead
	// of a substring. Written as text="..." in locator strings.
	Exact bool
}

func XPath(expr string) Strategy     { return Strategy{Kind: KindXPath, Value: expr} }
func CSS(selector string) Strategy   { return Strategy{Kind: KindCSS, Value: selector} }
func Text(needle string) Strategy    { return Strategy{Kind: KindText, Value: needle} }
func ExactText(text string) Strategy { return Strategy{Kind: KindText, Value: text, Exact: true} }
func TestID(id string) Strategy      { return Strategy{Kind: KindTestID, Value: id} }

func (s Strategy) String() string {
	if s.Kind == KindText && s.Exact {
		return `text="` + s.Value + `"`
	}
	return s.Kind.String() + "=" + s.Value
}

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{"xpath=", KindXPath},
	{"css=", KindCSS},
	{"text=", KindText},
	{"testid=", KindTestID},
}

// Parse reads a locator string. Prefixed forms name their strategy;
// unprefixed strings starting with "/", "(", ".." or "html/" are XPath and
// anything else is CSS.
func Parse(s string) (Strategy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Strategy{}, errors.New("locator must not be empty")
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(s, p.prefix) {
			continue
		}
		value := strings.TrimSpace(s[len(p.prefix):])
		if p.kind == KindText && len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
			if strings.TrimSpace(value) == "" {
				return Strategy{}, fmt.Errorf("locator %q has an empty value", s)
			}
			return ExactText(value), nil
		}
		if value == "" {
			return Strategy{}, fmt.Errorf("locator %q has an empty value", s)
		}
		return Strategy{Kind: p.kind, Value: value}, nil
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") || strings.HasPrefix(s, "..") || strings.HasPrefix(s, "html/") {
		return XPath(s), nil
	}
	return CSS(s), nil
}

// Compile lowers the strategy to a query the provider evaluates natively.
func (s Strategy) Compile() (browser.Query, error) {
	switch s.Kind {
	case KindXPath:
		if strings.TrimSpace(s.Value) == "" {
			return browser.Query{}, errors.New("empty xpath expression")
		}
		return browser.Query{Syntax: browser.SyntaxXPath, Expr: s.Value}, nil
	case KindCSS:
		if strings.TrimSpace(s.Value) == "" {
			return browser.Query{}, errors.New("empty css selector")
		}
		return browser.Query{Syntax: browser.SyntaxCSS, Expr: s.Value}, nil
	case KindText:
		needle := normalizeSpace(s.Value)
		if needle == "" {
			return browser.Query{}, errors.New("empty text needle")
		}
		return browser.Query{Syntax: browser.SyntaxXPath, Expr: textXPath(needle, s.Exact)}, nil
	case KindTestID:
		if s.Value == "" {
			return browser.Query{}, errors.New("empty test id")
		}
		return browser.Query{Syntax: browser.SyntaxCSS, Expr: `[data-testid=` + cssString(s.Value) + `]`}, nil
	default:
		return browser.Query{}, fmt.Errorf("unknown locator kind %d", s.Kind)
	}
}

const (
	upperASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerASCII = "abcdefghijklmnopqrstuvwxyz"
)

// nonRendered elements never count as text matches.
const nonRendered = "self::script or self::style or self::noscript or self::template or self::head or self::title"

// textXPath matches the innermost rendered elements whose normalized text
// contains needle, ignoring ASCII case. Exact matching compares the whole
// normalized text and stays case sensitive.
//
// Both sides fold only ASCII letters: htmlquery's translate() indexes its
// alphabets by byte, so non-ASCII pairs cannot be listed there, and the
// needle must not be folded further than the document is.
func textXPath(needle string, exact bool) string {
	var cond string
	if exact {
		cond = "normalize-space(.)=" + xpathLiteral(needle)
	} else {
		cond = fmt.Sprintf("contains(translate(normalize-space(.),'%s','%s'),%s)",
			upperASCII, lowerASCII, xpathLiteral(lowerASCIIOnly(needle)))
	}
	return fmt.Sprintf("//*[not(%s)][%s][not(.//*[not(%s)][%s])]", nonRendered, cond, nonRendered, cond)
}

// lowerASCIIOnly lowercases A-Z and leaves every other rune untouched,
// mirroring translate() over upperASCII/lowerASCII.
func lowerASCIIOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// xpathLiteral quotes s as an XPath 1.0 string literal, falling back to
// concat() when s contains both quote characters.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + part + `"`)
	}
	b.WriteString(")")
	return b.String()
}

// cssString quotes s as a CSS double-quoted string.
func cssString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\a `)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
