// Package core holds the transaction ingestion logic, independent of HTTP
// and storage.
//
// # Upload pipeline
//
//  1. [CleanInput] strips a byte-order mark and repairs invalid UTF-8.
//  2. The delimited parser maps each row onto an [IngestRecord].
//  3. Each record is normalized: amount and location are parsed, the
//     location is resolved to a coarse zone, and the local timestamp is
//     converted to UTC.
//  4. [Reconcile] keeps the last row per transaction id and splits the batch
//     into inserts and updates with one existence query.
//  5. Inserts and updates run concurrently; either failing fails the upload.
//
// With Options.StrictParsing unset, rows that cannot be normalized are
// skipped and reported in [UploadResult.Skipped]; an empty or unreadable
// file saves nothing. With it set, both are client errors.
//
// # Errors
//
// Errors leaving [Service] are [*Error] values, apart from
// [ErrTooManyUploads]. [KindOf] classifies both so the boundary layer can
// answer with invalid input, not found, busy, or internal. [MapError] adds a
// user message and support code.
package core
