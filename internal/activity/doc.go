// Package activity keeps a log of the last message seen from each
// remote/switch pair.
//
// The log lives in the remote_activity table of the bridge database. It is
// rebuilt from radio traffic and is never authoritative: the pairing
// registry decides whether a remote is trusted, this package only remembers
// what was heard. The bridge records every decoded message here and serves
// the list_remotes request from it.
//
// Usage:
//
//	rec := activity.NewRecorder(db)
//	err := rec.Record(ctx, activity.Entry{
//	    RemoteID: msg.Remote().String(),
//	    SwitchID: msg.SwitchID(),
//	    Command:  msg.Command().String(),
//	})
//	recent, err := rec.List(ctx, 20)
package activity
