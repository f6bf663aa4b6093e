// Package tempmedia manages short-lived uploaded media: files are accepted
// and stored under a time-to-live, later transferred onto a permanent owning
// entity after validation, and reclaimed by a cleanup sweep once expired or
// consumed.
//
// The package is built from small interfaces wired together explicitly:
// a Repository persists temp media rows and the permanent collections
// transfers write to, a BlobStore holds the uploaded bytes, and an EventSink
// receives best-effort notifications after state changes commit. Service
// owns the record lifecycle, TransferService moves validated items onto any
// MediaOwner, and Sweeper reclaims storage concurrently with live traffic.
package tempmedia
