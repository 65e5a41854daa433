package identifier

import (
	"strings"
	"unicode"
)

// hiragana → Hepburn. Katakana is shifted onto hiragana before lookup.
var hepburn = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "i", 'ゑ': "e", 'を': "o", 'ん': "n",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゔ': "vu",
}

// small ya/yu/yo combine with the preceding -i syllable.
var smallY = map[rune]string{'ゃ': "a", 'ゅ': "u", 'ょ': "o"}

const (
	katakanaFirst = 'ァ'
	katakanaLast  = 'ヶ'
	kanaShift     = 'ァ' - 'ぁ'
	smallTsu      = 'っ'
	longVowel     = 'ー'
)

func toHiragana(r rune) rune {
	if r >= katakanaFirst && r <= katakanaLast {
		return r - kanaShift
	}
	return r
}

// romanize transliterates kana to uppercase Hepburn. ASCII letters and digits
// pass through; everything else is dropped.
func romanize(s string) string {
	var out []string
	geminate := false

	for _, raw := range s {
		r := toHiragana(raw)
		switch {
		case r == longVowel:
			continue
		case r == smallTsu:
			geminate = true
			continue
		}

		if tail, ok := smallY[r]; ok {
			n := len(out)
			if n > 0 && strings.HasSuffix(out[n-1], "i") && len(out[n-1]) > 1 {
				prev := strings.TrimSuffix(out[n-1], "i")
				if strings.HasSuffix(prev, "sh") || strings.HasSuffix(prev, "ch") || strings.HasSuffix(prev, "j") {
					out[n-1] = prev + tail
				} else {
					out[n-1] = prev + "y" + tail
				}
			} else {
				out = append(out, "y"+tail)
			}
			continue
		}

		syl, ok := hepburn[r]
		if !ok {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				syl = string(r)
			} else {
				geminate = false
				continue
			}
		}
		if geminate {
			switch {
			case strings.HasPrefix(syl, "ch"):
				syl = "t" + syl
			case syl != "" && !strings.ContainsRune("aeioun", rune(syl[0])):
				syl = syl[:1] + syl
			}
			geminate = false
		}
		out = append(out, syl)
	}
	return strings.ToUpper(strings.Join(out, ""))
}
