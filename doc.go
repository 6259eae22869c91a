// Package treesync pushes a local directory tree to a remote storage
// location and keeps the remote in step with it.
//
// Every sync compares a content-hash snapshot of the tree with the snapshot
// last known to be fully reflected on the remote, and transfers only the
// difference. The transfer plan is persisted before any work starts and is
// updated after every operation, so an interrupted sync resumes where it
// stopped instead of starting over.
//
// Example usage:
//
//	remote, err := s3.New(s3.Config{Bucket: "notes", Prefix: "laptop"})
//	if err != nil {
//	    return err
//	}
//	state, err := file.Open("/var/lib/treesync/notes.json")
//	if err != nil {
//	    return err
//	}
//
//	client, err := treesync.New(
//	    treesync.WithTree("notes", "/home/me/notes"),
//	    treesync.WithProvider(remote),
//	    treesync.WithStore(state),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	result, err := client.Sync(ctx)
package treesync
