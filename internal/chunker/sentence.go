package chunker

import "unicode/utf8"

// sentenceSpan 全文中的一个句子片段
// Start和End是原文中的字节偏移量，Text == text[Start:End]
type sentenceSpan struct {
	Start int
	End   int
	Text  string
}

// 句子结束符，兼容中英文标点
var sentenceDelimiters = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '；': true,
	'\n': true,
}

// splitSentences 将文本按句子边界切分为连续片段
// 片段严格覆盖原文：所有片段按顺序拼接等于原文本身
func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0
	i := 0

	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !sentenceDelimiters[r] {
			continue
		}

		// 结束符后的空白归入当前句子，下一句从实际内容开始
		// 这样句子边界和页面边界对齐，分块起点不会落在前一页的尾部空白上
		for i < len(text) {
			c := text[i]
			if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
				break
			}
			i++
		}

		spans = append(spans, sentenceSpan{
			Start: start,
			End:   i,
			Text:  text[start:i],
		})
		start = i
	}

	// 末尾可能有不以结束符结尾的残句
	if start < len(text) {
		spans = append(spans, sentenceSpan{
			Start: start,
			End:   len(text),
			Text:  text[start:],
		})
	}

	return spans
}

// splitOversized 将超过大小上限的片段在rune边界处硬切分
// 保证返回的每个片段都不超过maxSize字节
func splitOversized(spans []sentenceSpan, maxSize int) []sentenceSpan {
	var result []sentenceSpan

	for _, span := range spans {
		if len(span.Text) <= maxSize {
			result = append(result, span)
			continue
		}

		start := span.Start
		for start < span.End {
			end := start + maxSize
			if end >= span.End {
				end = span.End
			} else {
				// 回退到rune边界，避免截断多字节字符
				for end > start && !utf8.RuneStart(span.Text[end-span.Start]) {
					end--
				}
				if end == start {
					end = start + maxSize
				}
			}

			result = append(result, sentenceSpan{
				Start: start,
				End:   end,
				Text:  span.Text[start-span.Start : end-span.Start],
			})
			start = end
		}
	}

	return result
}
