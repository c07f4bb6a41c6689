// Package mallard provides the semantic core of a VBA toolchain: module
// parsing, declaration resolution, reference binding, inspections and
// token-exact declaration deletion, with a SQLite snapshot for queries.
//
// # Pipeline
//
// An [Engine] moves each module through the lifecycle tracked by its
// parse state manager:
//
//  1. Load: read exported component files (.bas, .cls, .frm, .doccls),
//     parse them in parallel and publish the trees. Unchanged text is
//     detected by content hash and skipped.
//
//  2. Resolve: collect declarations per module, with the parallel or the
//     sequential resolver, then bind every identifier to the declaration
//     it names.
//
//  3. Inspect: run the built-in inspections and any Risor inspection
//     scripts over the bound snapshot.
//
//  4. Persist: write declarations, references and findings to SQLite.
//
// # Usage
//
//	e, err := mallard.New(".mallard/mallard.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.LoadDirectory(ctx, "path/to/export")
//	err = e.Resolve(ctx)
//	results, err := e.Inspect(ctx)
//	stats, err := e.Persist(ctx)
//
//	decls, err := e.Query().DeclarationsNamed("Compute")
//
// # Incremental Resolution
//
// Reloading a module queues only that module. When its declaration
// signature changes, the modules referencing it are resolved and bound
// again (blast radius); a module that gains names pulls in every module,
// since an unresolved name elsewhere may now bind. [Engine.Persist] applies
// the same rule against the stored snapshot so unchanged modules are not
// rewritten.
//
// # Scripts
//
// Inspections can be written in Risor. Every inspect/*.risor script under
// the embedded scripts tree or the configured scripts directory becomes an
// inspection named after its file: inspect/empty_procedure.risor is
// EmptyProcedure. See the internal/runtime package for the globals exposed
// to scripts.
package mallard
