// Package pairing keeps the registry of paired LightwaveRF remotes.
//
// The registry holds at most six entries, each a remote identity plus the
// switch byte it was learned from. It is persisted as a fixed 49-byte
// region in a byte-addressed Store:
//
//	offset 0       pairing count (0..6)
//	offset 1 + 8i  slot i: identity[6], switch id, paired flag
//
// Entries are appended in slot order, never reordered and never removed
// one at a time; EraseAll clears the whole region.
//
// # Usage
//
//	reg := pairing.NewRegistry(pairing.NewSQLiteStore(db, pairing.RegionSize))
//	if err := reg.Load(ctx); err != nil {
//	    return err
//	}
//	outcome, entry, err := reg.Learn(ctx, transceiver, 0)
package pairing
