// Package book reconstructs full order books from snapshot and incremental
// feeds.
//
// Each subscription key owns a price-level cache. A snapshot replaces the
// cache; an incremental event upserts levels, and a zero amount deletes one.
// Nothing is emitted for a key until its first snapshot has arrived.
// Applying the same incremental twice yields the same book.
//
// Which side a level belongs to is fixed per venue by a Partition rule:
// BySign (positive amount is a bid) or ByTag (explicit side).
package book
