package catalog

// CreateBookRequest carries the externally assigned identifier plus the
// bibliographic fields. New books start AVAILABLE.
type CreateBookRequest struct {
	ID     string `json:"id" binding:"required"`
	Title  string `json:"title" binding:"required"`
	Author string `json:"author" binding:"required"`
	Year   int    `json:"year" binding:"required"`
}

type UpdateBookRequest struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	Year   *int    `json:"year,omitempty"`
}

// ChangeStatusRequest is the catalog-maintenance path for the administrative
// statuses (and for bringing a book back to AVAILABLE). AVAILABLE/LENT flips
// driven by lending never go through here.
type ChangeStatusRequest struct {
	Status Status `json:"status" binding:"required"`
	Reason string `json:"reason,omitempty"`
}

type ListResult struct {
	Items      []Book `json:"items"`
	Total      int64  `json:"total"`
	NextOffset int    `json:"next_offset"`
}
