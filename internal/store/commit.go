package store

import "fmt"

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Rows of the modules marked for replacement
// are deleted first. Fake (negative) IDs are remapped to real IDs.
//
// Insert order respects FK dependencies:
//  1. Declarations (depend on module_id, which is already real)
//  2. Annotations (depend on declaration_id)
//  3. References (depend on module_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	if len(batch.Replace) > 0 {
		if err := deleteModuleDataTx(tx, batch.Replace); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	fakeToReal := make(map[int64]int64)

	for _, d := range batch.Declarations {
		fakeID := d.ID
		realID, err := insertDeclarationTx(tx, &d)
		if err != nil {
			return fmt.Errorf("commit batch: declaration %s: %w", d.Key, err)
		}
		fakeToReal[fakeID] = realID
	}

	for _, a := range batch.Annotations {
		if a.DeclarationID < 0 {
			realID, ok := fakeToReal[a.DeclarationID]
			if !ok {
				return fmt.Errorf("commit batch: annotation %s: unknown declaration %d", a.Name, a.DeclarationID)
			}
			a.DeclarationID = realID
		}
		if _, err := insertAnnotationTx(tx, &a); err != nil {
			return fmt.Errorf("commit batch: annotation %s: %w", a.Name, err)
		}
	}

	for _, r := range batch.References {
		if _, err := insertReferenceTx(tx, &r); err != nil {
			return fmt.Errorf("commit batch: reference %q: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}
