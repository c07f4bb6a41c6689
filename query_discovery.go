package mallard

import (
	"fmt"
	"strings"

	"github.com/jward/mallard/internal/store"
)

// Pagination controls offset+limit paging on search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByName             SortField = "name"
	SortByKind             SortField = "kind"
	SortByModule           SortField = "module"
	SortByRefCount         SortField = "ref_count"
	SortByExternalRefCount SortField = "external_ref_count"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// DeclarationResult extends Declaration with reference counts.
type DeclarationResult struct {
	store.Declaration
	Module           string // "Project.Component"
	RefCount         int
	ExternalRefCount int // refs from other modules
}

// PagedResult wraps a page of results with the total count before paging.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int
}

// DeclarationFilter narrows SearchDeclarations. All fields are optional.
type DeclarationFilter struct {
	Kinds         []string // match any of these kinds
	Accessibility string
	Module        string // "Project.Component"
	ParentKey     string // direct children of this declaration
	Unreferenced  bool   // only declarations with no references
}

func declarationSortColumn(field SortField) string {
	switch field {
	case SortByKind:
		return "d.kind"
	case SortByModule:
		return "module_key"
	case SortByRefCount:
		return "ref_count"
	case SortByExternalRefCount:
		return "external_ref_count"
	default:
		return "d.name"
	}
}

func sortDirection(order SortOrder) string {
	if order == Desc {
		return "DESC"
	}
	return "ASC"
}

const declarationResultCols = `d.id, d.module_id, d.key, COALESCE(d.parent_key, ''), d.name, d.qualified_name, d.kind,
	COALESCE(d.accessibility, ''), COALESCE(d.as_type, ''), d.is_array,
	d.start_line, d.start_col, d.end_line, d.end_col, d.name_line, d.name_col,
	m.project || '.' || m.component AS module_key,
	(SELECT COUNT(*) FROM references_ r WHERE r.target_key = d.key) AS ref_count,
	(SELECT COUNT(*) FROM references_ r WHERE r.target_key = d.key AND r.module_id != d.module_id) AS external_ref_count`

// SearchDeclarations performs glob-style search on declaration names.
// '*' is the wildcard; matching ignores case.
func (q *QueryBuilder) SearchDeclarations(pattern string, filter DeclarationFilter, sort Sort, page Pagination) (*PagedResult[DeclarationResult], error) {
	page = page.normalize()

	var where []string
	var args []any

	if pattern != "" && pattern != "*" {
		likePattern := strings.ReplaceAll(escapeLike(pattern), "*", "%")
		where = append(where, "d.name LIKE ? ESCAPE '\\'")
		args = append(args, likePattern)
	}
	if len(filter.Kinds) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Kinds)-1) + "?"
		where = append(where, "d.kind COLLATE NOCASE IN ("+placeholders+")")
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}
	if filter.Accessibility != "" {
		where = append(where, "d.accessibility = ? COLLATE NOCASE")
		args = append(args, filter.Accessibility)
	}
	if filter.Module != "" {
		where = append(where, "(m.project || '.' || m.component) = ? COLLATE NOCASE")
		args = append(args, filter.Module)
	}
	if filter.ParentKey != "" {
		where = append(where, "d.parent_key = ?")
		args = append(args, filter.ParentKey)
	}
	if filter.Unreferenced {
		where = append(where, "NOT EXISTS (SELECT 1 FROM references_ r WHERE r.target_key = d.key)")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countSQL := `SELECT COUNT(*) FROM declarations d JOIN modules m ON m.id = d.module_id ` + whereClause
	var totalCount int
	if err := q.store.DB().QueryRow(countSQL, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("search declarations: count: %w", err)
	}

	dataSQL := fmt.Sprintf(
		`SELECT %s
		 FROM declarations d
		 JOIN modules m ON m.id = d.module_id
		 %s
		 ORDER BY %s %s, d.id
		 LIMIT ? OFFSET ?`,
		declarationResultCols, whereClause, declarationSortColumn(sort.Field), sortDirection(sort.Order),
	)
	dataArgs := append(append([]any{}, args...), page.Limit, page.Offset)

	rows, err := q.store.DB().Query(dataSQL, dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("search declarations: query: %w", err)
	}
	defer rows.Close()

	items := []DeclarationResult{}
	for rows.Next() {
		var r DeclarationResult
		d := &r.Declaration
		if err := rows.Scan(
			&d.ID, &d.ModuleID, &d.Key, &d.ParentKey, &d.Name, &d.QualifiedName, &d.Kind,
			&d.Accessibility, &d.AsType, &d.IsArray,
			&d.StartLine, &d.StartCol, &d.EndLine, &d.EndCol, &d.NameLine, &d.NameCol,
			&r.Module, &r.RefCount, &r.ExternalRefCount,
		); err != nil {
			return nil, fmt.Errorf("search declarations: scan: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search declarations: rows: %w", err)
	}

	return &PagedResult[DeclarationResult]{Items: items, TotalCount: totalCount}, nil
}

// escapeLike escapes SQL LIKE special characters (% and _) with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
