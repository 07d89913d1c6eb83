// Package paginate slices an already-filtered collection into pages.
package paginate

// DefaultPageSize is used when a non-positive page size is requested.
const DefaultPageSize = 10

// MaxWindow is the number of page links rendered around the current page.
const MaxWindow = 5

// Page is one page of items. StartIndex is inclusive and EndIndex exclusive,
// both relative to the full collection.
type Page[T any] struct {
	Items         []T  `json:"items"`
	TotalItems    int  `json:"totalItems"`
	TotalPages    int  `json:"totalPages"`
	CurrentPage   int  `json:"currentPage"`
	StartIndex    int  `json:"startIndex"`
	EndIndex      int  `json:"endIndex"`
	CanGoNext     bool `json:"canGoNext"`
	CanGoPrevious bool `json:"canGoPrevious"`
}

// Empty reports whether the collection has no items at all.
func (p Page[T]) Empty() bool {
	return p.TotalItems == 0
}

// Paginate returns page currentPage of items. The page is clamped to
// [1, TotalPages] and there is always at least one page.
func Paginate[T any](items []T, pageSize, currentPage int) Page[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	n := len(items)
	totalPages := (n + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	currentPage = clamp(currentPage, 1, totalPages)

	start := (currentPage - 1) * pageSize
	end := start + pageSize
	if end > n {
		end = n
	}

	return Page[T]{
		Items:         append(make([]T, 0, end-start), items[start:end]...),
		TotalItems:    n,
		TotalPages:    totalPages,
		CurrentPage:   currentPage,
		StartIndex:    start,
		EndIndex:      end,
		CanGoNext:     currentPage < totalPages,
		CanGoPrevious: currentPage > 1,
	}
}

// Window returns at most size page numbers centred on current and shifted to
// stay inside [1, total].
func Window(current, total, size int) []int {
	if total < 1 {
		total = 1
	}
	if size < 1 {
		size = MaxWindow
	}
	current = clamp(current, 1, total)

	start := current - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > total {
		end = total
		start = end - size + 1
		if start < 1 {
			start = 1
		}
	}

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
