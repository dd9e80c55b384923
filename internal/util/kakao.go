package util

import (
	"strings"
	"unicode/utf8"
)

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
	// KakaoFoldRunes is roughly where KakaoTalk folds a message behind '전체보기'.
	KakaoFoldRunes = 500
)

// 카카오톡 '전체보기'용 제로폭 문자를 채워 메시지를 확장.
func ApplyKakaoSeeMorePadding(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	message := strings.TrimSpace(instruction)

	var builder strings.Builder
	builder.Grow(len(text) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(message) + 2)

	builder.WriteString(message)
	builder.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		builder.WriteByte('\n')
	}
	builder.WriteString(text)

	return builder.String()
}

// 첫 줄에 중복된 헤더가 있으면 제거한다.
func StripLeadingHeader(text, header string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(header) == "" {
		return text
	}
	for _, sep := range []string{"\r\n\r\n", "\n\n", "\r\n", "\n", ""} {
		if candidate := header + sep; strings.HasPrefix(text, candidate) {
			return strings.TrimPrefix(text, candidate)
		}
	}
	return text
}

// SeeMoreIfLong keeps short replies as they are. Longer ones show only header
// in the chat preview and move the body behind '전체보기'.
func SeeMoreIfLong(text, header string) string {
	if utf8.RuneCountInString(text) <= KakaoFoldRunes {
		return text
	}
	return ApplyKakaoSeeMorePadding(StripLeadingHeader(text, header), header)
}
