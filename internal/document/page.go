package document

import (
	"errors"
	"sort"
	"strings"
)

// 页面序列相关错误
var (
	ErrNoPages          = errors.New("page set is empty")
	ErrUnorderedOffsets = errors.New("page offsets are not in non-decreasing order")
)

// Page 文档中的一页文本
// 由上游文档解析服务构造，对本系统只读
type Page struct {
	PageNum int    // 页码，文档内唯一且按文档顺序递增
	Offset  int    // 该页首字符在整篇拼接文本中的字节偏移量
	Text    string // 页面原始文本，可能为空
}

// SplitPage 语义分块结果
// 每个分块归属到它在原文中起始位置所在的页面
type SplitPage struct {
	PageNum int    // 分块归属的页码
	Text    string // 分块文本内容
}

// PageSet 有序页面序列
// 提供全文拼接和偏移量到页码的归属查询
type PageSet struct {
	pages []Page
}

// NewPageSet 根据有序页面创建页面序列
// 要求偏移量单调不减，否则返回错误
func NewPageSet(pages []Page) (*PageSet, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	for i := 1; i < len(pages); i++ {
		if pages[i].Offset < pages[i-1].Offset {
			return nil, ErrUnorderedOffsets
		}
	}

	// 复制一份，避免调用方后续修改影响内部状态
	copied := make([]Page, len(pages))
	copy(copied, pages)

	return &PageSet{pages: copied}, nil
}

// BuildPages 按拼接顺序为页面文本分配偏移量
// 偏移量等于所有前序页面文本长度之和
func BuildPages(texts []string) []Page {
	pages := make([]Page, len(texts))
	offset := 0
	for i, text := range texts {
		pages[i] = Page{
			PageNum: i,
			Offset:  offset,
			Text:    text,
		}
		offset += len(text)
	}
	return pages
}

// Len 返回页面数量
func (ps *PageSet) Len() int {
	return len(ps.pages)
}

// Pages 返回页面副本
func (ps *PageSet) Pages() []Page {
	copied := make([]Page, len(ps.pages))
	copy(copied, ps.pages)
	return copied
}

// JoinText 按顺序拼接所有页面文本，不插入任何分隔符
// 拼接结果就是分块器处理的全文
func (ps *PageSet) JoinText() string {
	var sb strings.Builder
	for _, p := range ps.pages {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// HasText 检查页面序列是否包含非空白文本
func (ps *PageSet) HasText() bool {
	for _, p := range ps.pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// FindPage 返回包含指定偏移量的页面的页码
// 等价于顺序扫描：offset落在pages[i].Offset与pages[i+1].Offset之间时返回pages[i].PageNum，
// 落在最后一页范围内或之后时返回最后一页的页码。
// 偏移量小于首页偏移时归属到首页（钳制策略）。
func (ps *PageSet) FindPage(offset int) int {
	if offset < ps.pages[0].Offset {
		return ps.pages[0].PageNum
	}

	// 二分查找第一个Offset大于offset的页面，前一个页面即为所属页
	idx := sort.Search(len(ps.pages), func(i int) bool {
		return ps.pages[i].Offset > offset
	})
	if idx == 0 {
		return ps.pages[0].PageNum
	}
	return ps.pages[idx-1].PageNum
}
