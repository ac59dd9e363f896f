// Package maildecode turns arbitrarily mis-encoded mail headers and bodies
// into best-effort readable text. No single decode step is trusted: a fixed
// fallback chain runs until one stage produces text that passes the garble
// detector, and callers receive a degraded flag when none does.
package maildecode

import (
	"io"
	"mime"
	"strings"
	"unicode"
	"unicode/utf8"

	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Decode stages, recorded for observability.
const (
	StageStandard    = "standard"
	StageCharset     = "charset_fallback"
	StageSubstituted = "substitution"
	StageRaw         = "raw"
)

// Result is the outcome of one decode. Degraded means every stage failed and
// Text is the original raw input; the UI should warn instead of rendering it
// as trustworthy.
type Result struct {
	Text     string
	Stage    string
	Degraded bool
}

// fallbackEncodings is the fixed reinterpretation sequence tried when the
// standard decode fails. Order matters: the first non-garbled result wins.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"euc-kr", korean.EUCKR},
	{"shift_jis", japanese.ShiftJIS},
	{"gbk", simplifiedchinese.GBK},
	{"iso-8859-1", charmap.ISO8859_1},
}

// substitutions maps stray bytes that survive charset confusion in practice.
var substitutions = strings.NewReplacer(
	"Â ", " ",
	"â€™", "'",
	"â€œ", "\"",
	"â€", "\"",
	"â€“", "-",
	"â€¦", "...",
	"Ã©", "é",
	"Ã¼", "ü",
)

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	},
}

// Header decodes an RFC 2047 header value through the fallback chain.
func Header(raw string) Result {
	if decoded, err := wordDecoder.DecodeHeader(raw); err == nil && !IsGarbled(decoded) {
		return Result{Text: decoded, Stage: StageStandard}
	}
	return fallback(raw)
}

// Body decodes body bytes. The declared charset is attempted first; when it
// is missing, wrong, or produces garbage, the fallback chain takes over.
func Body(raw []byte, declaredCharset string) Result {
	if declaredCharset != "" {
		if reader, err := htmlcharset.NewReaderLabel(declaredCharset, strings.NewReader(string(raw))); err == nil {
			if decoded, err := io.ReadAll(reader); err == nil && !IsGarbled(string(decoded)) {
				return Result{Text: string(decoded), Stage: StageStandard}
			}
		}
	}
	if utf8.Valid(raw) && !IsGarbled(string(raw)) {
		return Result{Text: string(raw), Stage: StageStandard}
	}
	return fallback(string(raw))
}

func fallback(raw string) Result {
	for _, candidate := range fallbackEncodings {
		decoded, err := candidate.enc.NewDecoder().String(raw)
		if err != nil {
			continue
		}
		if !IsGarbled(decoded) {
			return Result{Text: decoded, Stage: StageCharset + ":" + candidate.name}
		}
	}

	substituted := substitutions.Replace(raw)
	if substituted != raw && !IsGarbled(substituted) {
		return Result{Text: substituted, Stage: StageSubstituted}
	}

	// Nothing worked; hand back the original and let the caller warn.
	return Result{Text: raw, Stage: StageRaw, Degraded: true}
}

// IsGarbled reports whether text looks like a failed decode: any Unicode
// replacement character, a run of three or more question marks, or more
// than 5% control characters.
func IsGarbled(text string) bool {
	if text == "" {
		return false
	}
	if strings.ContainsRune(text, utf8.RuneError) {
		return true
	}
	if strings.Contains(text, "???") {
		return true
	}

	total := 0
	control := 0
	for _, r := range text {
		total++
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	return total > 0 && control*100 > total*5
}
