// Package domain defines the value types shared by the text dispatch engine:
// recipients, rendered messages, delivery observations, send results and
// batches.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags double as the audit log and API field names
//   - Pure helper methods only (status predicates, field lookups)
package domain
