package store

import "fmt"

// ModulesReferencing returns the IDs of modules holding references into
// any of the given modules ("Project.Component" keys). The given modules
// themselves are excluded.
func (s *Store) ModulesReferencing(moduleKeys []string) ([]int64, error) {
	if len(moduleKeys) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(moduleKeys))
	args := stringsToArgs(moduleKeys)
	query := `SELECT DISTINCT r.module_id
		FROM references_ r
		JOIN modules m ON m.id = r.module_id
		WHERE r.target_module IN (` + placeholders + `)
		  AND (m.project || '.' || m.component) NOT IN (` + placeholders + `)
		ORDER BY r.module_id`
	rows, err := s.db.Query(query, append(args, args...)...)
	if err != nil {
		return nil, fmt.Errorf("modules referencing: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan module id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteModuleData removes the declarations, annotations, references and
// findings recorded for the given modules, keeping the module rows.
func (s *Store) DeleteModuleData(moduleIDs []int64) error {
	if len(moduleIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := deleteModuleDataTx(tx, moduleIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteModuleDataTx(ex execer, moduleIDs []int64) error {
	placeholders := placeholderList(len(moduleIDs))
	args := int64sToArgs(moduleIDs)
	queries := []string{
		"DELETE FROM findings WHERE module_id IN (" + placeholders + ")",
		"DELETE FROM references_ WHERE module_id IN (" + placeholders + ")",
		"DELETE FROM annotations WHERE declaration_id IN (SELECT id FROM declarations WHERE module_id IN (" + placeholders + "))",
		"DELETE FROM declarations WHERE module_id IN (" + placeholders + ")",
	}
	for _, q := range queries {
		if _, err := ex.Exec(q, args...); err != nil {
			return fmt.Errorf("delete module data: %w", err)
		}
	}
	return nil
}
