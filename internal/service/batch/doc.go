// Package batch implements the lifecycle of an uploaded recipient batch:
// upload and preview, template edits, detached sends, cancellation and
// results.
//
// The service layer depends on the Repository interface defined here and
// never imports from api/. Implementations live in repository/memory/ and
// repository/redis/.
package batch
