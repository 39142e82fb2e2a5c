package persistence

import (
	"fmt"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"gorm.io/gorm"
)

// transferSortColumns whitelists the columns a transfer list can be ordered
// by. Only these strings are ever interpolated into SQL.
var transferSortColumns = map[transfer.SortField]string{
	transfer.SortByCreatedAt: "created_at",
	transfer.SortByUpdatedAt: "updated_at",
}

// keyset orders rows by (column, id) so a page boundary stays stable while
// rows are inserted concurrently.
type keyset struct {
	column string
	dir    string
	cmp    string
}

// transferKeyset resolves the sort field, falling back to created_at
func transferKeyset(field transfer.SortField, ascending bool) keyset {
	col, ok := transferSortColumns[field]
	if !ok {
		col = transferSortColumns[transfer.SortByCreatedAt]
	}
	if ascending {
		return keyset{column: col, dir: "ASC", cmp: ">"}
	}
	return keyset{column: col, dir: "DESC", cmp: "<"}
}

// After skips every row up to and including the cursor position
func (k keyset) After(q *gorm.DB, cursor *shared.Cursor) *gorm.DB {
	if cursor == nil {
		return q
	}
	return q.Where(fmt.Sprintf("(%[1]s %[2]s ? OR (%[1]s = ? AND id %[2]s ?))", k.column, k.cmp),
		cursor.SortValue, cursor.SortValue, cursor.ID)
}

// Order applies the sort column with id as tie-breaker
func (k keyset) Order(q *gorm.DB) *gorm.DB {
	return q.Order(k.column + " " + k.dir).Order("id " + k.dir)
}
