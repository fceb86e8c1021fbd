/*
Package tablelog emulates appendable, crash-safe table files on object stores
that offer neither appends nor atomic overwrite.

A table "users.db" is the union of two things:

	users.db                      base snapshot
	~users.db/rec-417-1700000000123.adb
	~users.db/rec-12-1700000000456.adb   append records

Reading merges the base with every record ordered by the millisecond stamp in
its name. Writing a snapshot replaces the base and then deletes records older
than the moment the write began, at most 999 per call; anything appended while
the snapshot was being written survives for the next pass.

CrashSafeWriteSnapshot writes "users.db~" first and renames it over the base.
On stores whose rename refuses to overwrite, the old base is unlinked just
before the rename.

Log works against any types.Adapter. The Dropbox adapter carries its own
version of the five operations and reuses the naming helpers from this
package.
*/
package tablelog
