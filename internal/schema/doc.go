// Package schema defines the task record stored by daysync and the rules a
// record must satisfy before it reaches durable storage.
//
// # Task Records
//
// A record is a flat JSON object:
//
//	{
//	  "id": "0b6f1a52-6d4f-4f0e-9a0a-3c1f6d1f2b7e",
//	  "date": "2026-10-16 (Fri)",
//	  "title": "Daily task - 2026-10-16 (Fri)",
//	  "content": "...",
//	  "createdAt": "2026-10-16 09:30:00"
//	}
//
// The date and createdAt fields are display strings, not canonical
// timestamps. Lookups by day match the date string exactly. SortKey derives
// a sortable timestamp from createdAt for recency ordering.
//
// # Validation
//
// Validate enforces the write-boundary rules:
//   - id is a canonical 36 character UUID
//   - date, title, content and createdAt are non-empty
//   - title is at most 500 characters, content at most 50,000
//
// Lengths count characters, not bytes. Failures are reported as a
// *ValidationError listing every violated rule.
//
// # Legacy Records
//
// LegacyRecord is the lenient shape found in pre-database local storage.
// Normalize fills in missing identity and timestamps so the result can be
// validated with the strict rules.
package schema
